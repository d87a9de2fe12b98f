// Package config holds the declarative job configuration consumed by the
// scraping engine. A job document is loaded once per run and treated as
// immutable afterwards.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Job types select exactly one scraping strategy per run.
const (
	JobStatic   = "static"
	JobRendered = "rendered"
	JobAPI      = "api"
)

// ConfigError is the only fatal error class: it is surfaced before any
// network activity and aborts the run.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func errf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// JobConfig is the parsed job document.
type JobConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	JobType     string `yaml:"job_type"`
	// Dynamic is the legacy toggle for job_type: rendered.
	Dynamic bool `yaml:"dynamic"`

	URLs []string   `yaml:"urls"`
	API  *APIConfig `yaml:"api_config"`

	Selectors  *SelectorConfig   `yaml:"selectors"`
	Pagination *PaginationConfig `yaml:"pagination"`
	Login      *LoginConfig      `yaml:"login_config"`
	Processing *ProcessingRules  `yaml:"processing_rules"`

	Proxies       []string `yaml:"proxies"`
	RequestDelay  float64  `yaml:"request_delay"` // seconds
	MaxRetries    int      `yaml:"max_retries"`
	UserAgent     string   `yaml:"user_agent"`
	RespectRobots bool     `yaml:"respect_robots"`

	// Rendered-strategy settings.
	WaitForSelector string  `yaml:"wait_for_selector"`
	WaitTime        float64 `yaml:"wait_time"` // seconds
	Headless        *bool   `yaml:"headless"`

	PageLoadTimeout int    `yaml:"page_load_timeout"` // seconds
	OutputFormat    string `yaml:"output_format"`
	OutputDir       string `yaml:"output_dir"`
}

// SelectorConfig declares how items and fields are located on a page.
type SelectorConfig struct {
	Type   string                   `yaml:"type"` // css or xpath, default css
	Item   string                   `yaml:"item"`
	Fields map[string]FieldSelector `yaml:"fields"`
}

// FieldSelector is either a bare locator (text content is extracted) or a
// structured entry naming an attribute to extract instead.
type FieldSelector struct {
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr"`
}

// UnmarshalYAML accepts both the scalar and the structured form.
func (f *FieldSelector) UnmarshalYAML(unmarshal func(any) error) error {
	var scalar string
	if err := unmarshal(&scalar); err == nil {
		f.Selector = scalar
		f.Attr = ""
		return nil
	}
	type plain FieldSelector
	var p plain
	if err := unmarshal(&p); err != nil {
		return err
	}
	*f = FieldSelector(p)
	return nil
}

// APIConfig describes the structured-request strategy.
type APIConfig struct {
	BaseURL       string            `yaml:"base_url"`
	Endpoints     []string          `yaml:"endpoints"`
	Method        string            `yaml:"method"`
	Params        map[string]string `yaml:"params"`
	Headers       map[string]string `yaml:"headers"`
	Body          map[string]any    `yaml:"body"`
	DataPath      string            `yaml:"data_path"`
	FieldMappings map[string]string `yaml:"field_mappings"`
	// NextPath points at a continuation cursor inside the response; when it
	// resolves to a non-empty value the cursor is appended to the endpoint
	// as CursorParam.
	NextPath    string `yaml:"next_path"`
	CursorParam string `yaml:"cursor_param"`
}

// PaginationConfig drives repeated page fetches. MaxPages zero means
// unlimited.
type PaginationConfig struct {
	NextPageSelector string `yaml:"next_page_selector"`
	MaxPages         int    `yaml:"max_pages"`
}

// LoginConfig describes the one-time login sequence performed by the
// rendered strategy before the first page.
type LoginConfig struct {
	LoginURL           string  `yaml:"login_url"`
	UsernameSelector   string  `yaml:"username_selector"`
	PasswordSelector   string  `yaml:"password_selector"`
	SubmitSelector     string  `yaml:"submit_selector"`
	Username           string  `yaml:"username"`
	Password           string  `yaml:"password"`
	SuccessSelector    string  `yaml:"success_selector"`
	SuccessURLContains string  `yaml:"success_url_contains"`
	WaitAfterLogin     float64 `yaml:"wait_after_login"` // seconds
}

// Delay returns the configured inter-request delay.
func (c *JobConfig) Delay() time.Duration {
	return time.Duration(c.RequestDelay * float64(time.Second))
}

// Wait returns the rendered-strategy settle time.
func (c *JobConfig) Wait() time.Duration {
	return time.Duration(c.WaitTime * float64(time.Second))
}

// Timeout returns the page-load timeout.
func (c *JobConfig) Timeout() time.Duration {
	if c.PageLoadTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.PageLoadTimeout) * time.Second
}

// Type resolves the active strategy, honoring the legacy dynamic flag.
func (c *JobConfig) Type() string {
	if c.JobType != "" {
		return c.JobType
	}
	if c.Dynamic {
		return JobRendered
	}
	if c.API != nil {
		return JobAPI
	}
	return JobStatic
}

// Validate checks the structural invariants of a job document. All
// violations are ConfigError values.
func (c *JobConfig) Validate() error {
	switch c.Type() {
	case JobStatic, JobRendered:
		if len(c.URLs) == 0 {
			return errf("urls", "at least one source URL is required")
		}
		for _, raw := range c.URLs {
			parsed, err := url.Parse(raw)
			if err != nil || parsed.Host == "" {
				return errf("urls", "invalid source URL %q", raw)
			}
		}
		if c.Selectors == nil {
			return errf("selectors", "required for %s jobs", c.Type())
		}
		if err := c.Selectors.validate(); err != nil {
			return err
		}
	case JobAPI:
		if c.API == nil {
			return errf("api_config", "required for api jobs")
		}
		if err := c.API.validate(); err != nil {
			return err
		}
	default:
		return errf("job_type", "unknown job type %q", c.JobType)
	}

	if c.RequestDelay < 0 {
		return errf("request_delay", "cannot be negative")
	}
	if c.MaxRetries < 0 {
		return errf("max_retries", "cannot be negative")
	}
	if c.Pagination != nil && c.Pagination.MaxPages < 0 {
		return errf("pagination.max_pages", "cannot be negative")
	}
	if c.WaitTime < 0 {
		return errf("wait_time", "cannot be negative")
	}
	for _, raw := range c.Proxies {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Host == "" {
			return errf("proxies", "invalid proxy URL %q", raw)
		}
	}
	switch c.OutputFormat {
	case "", "csv", "json", "sqlite", "both":
	default:
		return errf("output_format", "must be csv, json, sqlite, or both")
	}
	if c.Login != nil {
		if err := c.Login.validate(); err != nil {
			return err
		}
	}
	if c.Processing != nil {
		if err := c.Processing.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SelectorConfig) validate() error {
	switch s.Type {
	case "", "css", "xpath":
	default:
		return errf("selectors.type", "must be css or xpath, got %q", s.Type)
	}
	if s.Item == "" {
		return errf("selectors.item", "item locator is required")
	}
	if len(s.Fields) == 0 {
		return errf("selectors.fields", "at least one field is required")
	}
	for name, field := range s.Fields {
		if field.Selector == "" {
			return errf("selectors.fields."+name, "locator is required")
		}
	}
	return nil
}

// Language returns the selector language with the css default applied.
func (s *SelectorConfig) Language() string {
	if s.Type == "" {
		return "css"
	}
	return s.Type
}

func (a *APIConfig) validate() error {
	if a.BaseURL == "" && len(a.Endpoints) == 0 {
		return errf("api_config", "base_url or endpoints are required")
	}
	if a.BaseURL != "" {
		parsed, err := url.Parse(a.BaseURL)
		if err != nil || parsed.Host == "" {
			return errf("api_config.base_url", "invalid URL %q", a.BaseURL)
		}
	}
	switch a.Method {
	case "", "GET", "POST", "PUT", "DELETE", "PATCH", "HEAD":
	default:
		return errf("api_config.method", "unsupported method %q", a.Method)
	}
	if a.NextPath != "" && a.CursorParam == "" {
		return errf("api_config.cursor_param", "required when next_path is set")
	}
	if len(a.FieldMappings) == 0 {
		return errf("api_config.field_mappings", "at least one mapping is required")
	}
	return nil
}

// Targets expands the endpoint list against the base URL.
func (a *APIConfig) Targets() []string {
	if len(a.Endpoints) == 0 {
		return []string{a.BaseURL}
	}
	out := make([]string, 0, len(a.Endpoints))
	for _, ep := range a.Endpoints {
		out = append(out, a.BaseURL+ep)
	}
	return out
}

func (l *LoginConfig) validate() error {
	switch {
	case l.LoginURL == "":
		return errf("login_config.login_url", "required")
	case l.UsernameSelector == "" || l.PasswordSelector == "" || l.SubmitSelector == "":
		return errf("login_config", "username, password, and submit selectors are required")
	case l.Username == "" || l.Password == "":
		return errf("login_config", "credentials must not be empty")
	case l.SuccessSelector == "" && l.SuccessURLContains == "":
		return errf("login_config", "a success selector or URL substring is required")
	}
	return nil
}
