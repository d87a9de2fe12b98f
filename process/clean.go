package process

import (
	"regexp"
	"strings"

	"webharvest/config"
)

var (
	newlineRuns  = regexp.MustCompile(`[\r\n]+`)
	specialChars = regexp.MustCompile(`[^\w\s-]`)
)

// cleaner is one field's compiled cleaning chain. Operations apply in a
// fixed order with regex_replace last, in declaration order.
type cleaner struct {
	rules    config.CleaningRules
	replacts []replacement
}

type replacement struct {
	re   *regexp.Regexp
	with string
}

func compileCleaner(rules config.CleaningRules) (*cleaner, error) {
	c := &cleaner{rules: rules}
	for _, rep := range rules.RegexReplace {
		re, err := regexp.Compile(rep.Pattern)
		if err != nil {
			return nil, err
		}
		c.replacts = append(c.replacts, replacement{re: re, with: rep.Replacement})
	}
	return c, nil
}

func (c *cleaner) apply(s string) string {
	if c.rules.Trim {
		s = strings.TrimSpace(s)
	}
	if c.rules.Lowercase {
		s = strings.ToLower(s)
	}
	if c.rules.Uppercase {
		s = strings.ToUpper(s)
	}
	if c.rules.RemoveNewlines {
		s = newlineRuns.ReplaceAllString(s, " ")
	}
	if c.rules.RemoveExtraSpaces {
		s = strings.Join(strings.Fields(s), " ")
	}
	if c.rules.RemoveSpecialChars {
		s = specialChars.ReplaceAllString(s, "")
	}
	for _, rep := range c.replacts {
		s = rep.re.ReplaceAllString(s, rep.with)
	}
	return s
}
