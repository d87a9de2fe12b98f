// Package process runs raw records through the fixed five-stage pipeline:
// type coercion, text cleaning, validation, transformation, field drop.
// The stage order is not configurable and every stage is deterministic, so
// processing is idempotent for an already-processed record.
package process

import (
	"log/slog"
	"regexp"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"webharvest/config"
	"webharvest/models"
)

// Processor applies a compiled rule set to records. Compile once per run;
// the processor itself is stateless across records.
type Processor struct {
	rules *config.ProcessingRules

	cleaners    map[string]*cleaner
	validators  map[string]*validator
	transforms  []transformProgram
	dropFields  []string
}

type transformProgram struct {
	field   string
	program *vm.Program
}

// New compiles the rule set. Bad regex patterns or transformation
// expressions are configuration errors and fail before any record is seen.
func New(rules *config.ProcessingRules) (*Processor, error) {
	p := &Processor{
		rules:      rules,
		cleaners:   make(map[string]*cleaner),
		validators: make(map[string]*validator),
	}
	if rules == nil {
		return p, nil
	}
	p.dropFields = rules.DropFields

	for field, cr := range rules.TextCleaning {
		c, err := compileCleaner(cr)
		if err != nil {
			return nil, &config.ConfigError{Field: "processing_rules.text_cleaning." + field, Reason: err.Error()}
		}
		p.cleaners[field] = c
	}

	for field, v := range rules.Validations {
		compiled, err := compileValidator(v)
		if err != nil {
			return nil, &config.ConfigError{Field: "processing_rules.validations." + field, Reason: err.Error()}
		}
		p.validators[field] = compiled
	}

	for _, tr := range rules.Transforms {
		program, err := expr.Compile(tr.Expression,
			expr.AllowUndefinedVariables(),
			expr.Function("coalesce", coalesce),
		)
		if err != nil {
			return nil, &config.ConfigError{
				Field:  "processing_rules.transformations." + tr.Field,
				Reason: err.Error(),
			}
		}
		p.transforms = append(p.transforms, transformProgram{field: tr.Field, program: program})
	}
	return p, nil
}

// Process runs every record through the pipeline, preserving input order.
// Dropped records are counted in stats but not emitted.
func (p *Processor) Process(records []models.RawRecord, stats *models.RunStats) []models.ProcessedRecord {
	out := make([]models.ProcessedRecord, 0, len(records))
	for _, raw := range records {
		rec, dropped := p.ProcessOne(raw)
		if dropped {
			stats.RecordsDropped++
			continue
		}
		out = append(out, rec)
		stats.ItemsProcessed++
	}
	return out
}

// ProcessOne applies the five stages to a single record. The dropped
// return is true when a required-field validation failed.
func (p *Processor) ProcessOne(raw models.RawRecord) (models.ProcessedRecord, bool) {
	fields := make(map[string]any, len(raw.Fields))
	for k, v := range raw.Fields {
		fields[k] = v
	}
	if p.rules == nil {
		return models.ProcessedRecord{Fields: fields, Source: raw.Source}, false
	}

	// Stage 1: type coercion. Failure unsets the field, never the record.
	for field, ft := range p.rules.FieldTypes {
		v, ok := fields[field]
		if !ok || v == nil || models.IsUnset(v) {
			continue
		}
		fields[field] = coerce(v, ft)
	}

	// Stage 2: text cleaning. String values only.
	for field, c := range p.cleaners {
		s, ok := fields[field].(string)
		if !ok {
			continue
		}
		fields[field] = c.apply(s)
	}

	// Stage 3: validation. A required failure discards the record; any
	// other failure unsets the offending field.
	for field, v := range p.validators {
		value := fields[field]
		if v.required && isMissing(value) {
			slog.Debug("record dropped: required field missing", slog.String("field", field))
			return models.ProcessedRecord{}, true
		}
		if isMissing(value) {
			continue
		}
		if !v.check(value) {
			fields[field] = models.Unset
		}
	}

	// Stage 4: transformations, in declaration order, over the current
	// record state. A failing expression unsets only its target field.
	if len(p.transforms) > 0 {
		env := exprEnv(fields)
		for _, tr := range p.transforms {
			result, err := expr.Run(tr.program, env)
			if err != nil {
				slog.Debug("transformation failed",
					slog.String("field", tr.field),
					slog.Any("error", err),
				)
				fields[tr.field] = models.Unset
				env[tr.field] = nil
				continue
			}
			fields[tr.field] = result
			env[tr.field] = result
		}
	}

	// Stage 5: field drop, last so dropped fields stayed visible to
	// stage 4 expressions.
	for _, field := range p.dropFields {
		delete(fields, field)
	}

	return models.ProcessedRecord{Fields: fields, Source: raw.Source}, false
}

// exprEnv exposes the record to expressions as plain values; unset fields
// appear as nil so expressions can apply their own defaults.
func exprEnv(fields map[string]any) map[string]any {
	env := make(map[string]any, len(fields))
	for k, v := range fields {
		if models.IsUnset(v) {
			env[k] = nil
			continue
		}
		env[k] = v
	}
	return env
}

// coalesce returns its first non-nil, non-empty argument, or nil.
func coalesce(args ...any) (any, error) {
	for _, a := range args {
		if a == nil {
			continue
		}
		if s, ok := a.(string); ok && s == "" {
			continue
		}
		return a, nil
	}
	return nil, nil
}

func isMissing(v any) bool {
	if v == nil || models.IsUnset(v) {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

type validator struct {
	required  bool
	minLength *int
	maxLength *int
	min       *float64
	max       *float64
	pattern   *regexp.Regexp
}

func compileValidator(v config.Validation) (*validator, error) {
	out := &validator{
		required:  v.Required,
		minLength: v.MinLength,
		maxLength: v.MaxLength,
		min:       v.Min,
		max:       v.Max,
	}
	if v.Pattern != "" {
		// Anchored at the start: a pattern constrains the head of the
		// value unless it anchors the tail itself.
		re, err := regexp.Compile("^(?:" + v.Pattern + ")")
		if err != nil {
			return nil, err
		}
		out.pattern = re
	}
	return out, nil
}

// check validates a present value; required-presence is handled by the
// caller.
func (v *validator) check(value any) bool {
	s := stringForm(value)
	if v.minLength != nil && len(s) < *v.minLength {
		return false
	}
	if v.maxLength != nil && len(s) > *v.maxLength {
		return false
	}
	if v.min != nil || v.max != nil {
		n, ok := numericForm(value)
		if !ok {
			return false
		}
		if v.min != nil && n < *v.min {
			return false
		}
		if v.max != nil && n > *v.max {
			return false
		}
	}
	if v.pattern != nil && !v.pattern.MatchString(s) {
		return false
	}
	return true
}
