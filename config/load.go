package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Load reads, parses, and validates a YAML job document.
func Load(path string) (*JobConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse unmarshals a job document and applies defaults.
func Parse(data []byte) (*JobConfig, error) {
	var cfg JobConfig
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, &ConfigError{Reason: err.Error()}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *JobConfig) applyDefaults() {
	if c.JobType == "" {
		c.JobType = c.Type()
	}
	if c.UserAgent == "" {
		c.UserAgent = RandomUserAgent()
	}
	if c.API != nil {
		if c.API.Method == "" {
			c.API.Method = "GET"
		}
		c.API.Body = normalizeBody(c.API.Body)
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "csv"
	}
	if c.OutputDir == "" {
		c.OutputDir = "output"
	}
}

// normalizeBody rewrites the interface-keyed maps yaml.v2 produces for
// nested mappings into string-keyed ones, so the request body can be
// marshaled as JSON.
func normalizeBody(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = jsonValue(v)
	}
	return out
}

func jsonValue(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = jsonValue(val)
		}
		return out
	case map[string]any:
		return normalizeBody(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = jsonValue(e)
		}
		return out
	default:
		return v
	}
}
