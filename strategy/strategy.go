// Package strategy implements the three interchangeable fetch/extract
// backends: static documents, rendered documents, and APIs. All variants
// share one contract: FetchPage never returns an error for ordinary
// fetch/parse failures (those become a failed page outcome), and only
// configuration problems detected before any network activity fail
// construction.
package strategy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"webharvest/config"
	"webharvest/fetchretry"
	"webharvest/models"
	"webharvest/proxyring"
	"webharvest/robots"
	"webharvest/selector"
)

// Strategy fetches one page worth of raw records plus the locator for the
// next page.
type Strategy interface {
	FetchPage(ctx context.Context, target string) models.PageResult
	Close() error
}

// Deps are the injected collaborator capabilities. Transport overrides the
// HTTP transport for the static and api variants (used by tests); Renderer
// is required for rendered jobs.
type Deps struct {
	Ring      *proxyring.Ring
	Robots    *robots.Checker
	Renderer  Renderer
	Transport http.RoundTripper
}

// New builds the single active variant for the job.
func New(cfg *config.JobConfig, plan *selector.Plan, deps Deps) (Strategy, error) {
	if deps.Ring == nil {
		deps.Ring = &proxyring.Ring{}
	}
	switch cfg.Type() {
	case config.JobStatic:
		return newStatic(cfg, plan, deps)
	case config.JobRendered:
		if deps.Renderer == nil {
			return nil, fmt.Errorf("rendered job requires a renderer")
		}
		return newRendered(cfg, plan, deps)
	case config.JobAPI:
		return newAPI(cfg, deps)
	}
	return nil, &config.ConfigError{Field: "job_type", Reason: "unknown job type " + cfg.JobType}
}

// retryPolicy derives the shared retry policy from the job config. The
// one-second base doubles per attempt, matching the engine's documented
// backoff.
func retryPolicy(cfg *config.JobConfig) fetchretry.Policy {
	return fetchretry.Policy{
		MaxRetries: cfg.MaxRetries,
		Delay:      time.Second,
		MaxDelay:   30 * time.Second,
	}
}
