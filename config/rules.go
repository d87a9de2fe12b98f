package config

import (
	"regexp"

	"gopkg.in/yaml.v2"
)

// ProcessingRules configures the five-stage record pipeline. Stage order is
// fixed by the processor; configuration only selects which stages apply.
type ProcessingRules struct {
	FieldTypes   map[string]FieldType     `yaml:"field_types"`
	TextCleaning map[string]CleaningRules `yaml:"text_cleaning"`
	Transforms   TransformList            `yaml:"transformations"`
	Validations  map[string]Validation    `yaml:"validations"`
	DropFields   []string                 `yaml:"drop_fields"`
}

// FieldType declares a target type for coercion. Format carries the layout
// for date and datetime fields.
type FieldType struct {
	Type   string `yaml:"type"`
	Format string `yaml:"format"`
}

// CleaningRules are per-field text cleaning toggles plus ordered
// pattern-substitution rules.
type CleaningRules struct {
	Trim               bool            `yaml:"trim"`
	Lowercase          bool            `yaml:"lowercase"`
	Uppercase          bool            `yaml:"uppercase"`
	RemoveNewlines     bool            `yaml:"remove_newlines"`
	RemoveExtraSpaces  bool            `yaml:"remove_extra_spaces"`
	RemoveSpecialChars bool            `yaml:"remove_special_chars"`
	RegexReplace       ReplacementList `yaml:"regex_replace"`
}

// Replacement is one pattern-substitution rule.
type Replacement struct {
	Pattern     string
	Replacement string
}

// ReplacementList preserves the declared order of regex_replace rules.
type ReplacementList []Replacement

func (r *ReplacementList) UnmarshalYAML(unmarshal func(any) error) error {
	var ms yaml.MapSlice
	if err := unmarshal(&ms); err != nil {
		return err
	}
	pairs, err := mapSliceStrings(ms, "processing_rules.text_cleaning.regex_replace")
	if err != nil {
		return err
	}
	out := make(ReplacementList, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, Replacement{Pattern: p[0], Replacement: p[1]})
	}
	*r = out
	return nil
}

// Transform derives or overwrites one field from an expression.
type Transform struct {
	Field      string
	Expression string
}

// TransformList preserves declaration order so a later expression may
// reference a field created by an earlier one.
type TransformList []Transform

func (t *TransformList) UnmarshalYAML(unmarshal func(any) error) error {
	var ms yaml.MapSlice
	if err := unmarshal(&ms); err != nil {
		return err
	}
	pairs, err := mapSliceStrings(ms, "processing_rules.transformations")
	if err != nil {
		return err
	}
	out := make(TransformList, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, Transform{Field: p[0], Expression: p[1]})
	}
	*t = out
	return nil
}

// Validation holds per-field validation rules. Min and Max apply to numeric
// values; MinLength and MaxLength to the string form.
type Validation struct {
	Required  bool     `yaml:"required"`
	MinLength *int     `yaml:"min_length"`
	MaxLength *int     `yaml:"max_length"`
	Min       *float64 `yaml:"min"`
	Max       *float64 `yaml:"max"`
	Pattern   string   `yaml:"pattern"`
}

var validFieldTypes = map[string]bool{
	"int": true, "float": true, "string": true,
	"boolean": true, "date": true, "datetime": true,
}

func (p *ProcessingRules) validate() error {
	for field, ft := range p.FieldTypes {
		if !validFieldTypes[ft.Type] {
			return errf("processing_rules.field_types."+field, "unknown type %q", ft.Type)
		}
	}
	for field, rules := range p.TextCleaning {
		for _, rep := range rules.RegexReplace {
			if _, err := regexp.Compile(rep.Pattern); err != nil {
				return errf("processing_rules.text_cleaning."+field, "bad pattern %q: %v", rep.Pattern, err)
			}
		}
	}
	for field, v := range p.Validations {
		if v.Pattern != "" {
			if _, err := regexp.Compile(v.Pattern); err != nil {
				return errf("processing_rules.validations."+field, "bad pattern %q: %v", v.Pattern, err)
			}
		}
	}
	for _, tr := range p.Transforms {
		if tr.Expression == "" {
			return errf("processing_rules.transformations."+tr.Field, "empty expression")
		}
	}
	return nil
}

// mapSliceStrings converts an ordered YAML mapping into key/value pairs.
func mapSliceStrings(ms yaml.MapSlice, field string) ([][2]string, error) {
	out := make([][2]string, 0, len(ms))
	for _, item := range ms {
		key, ok := item.Key.(string)
		if !ok {
			return nil, errf(field, "keys must be strings")
		}
		val, ok := item.Value.(string)
		if !ok {
			return nil, errf(field, "value for %q must be a string", key)
		}
		out = append(out, [2]string{key, val})
	}
	return out, nil
}
