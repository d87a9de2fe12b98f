package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"webharvest/config"
	"webharvest/fetchretry"
	"webharvest/models"
	"webharvest/robots"
	"webharvest/selector"
)

const (
	loginElementTimeout = 10 * time.Second
	clickWaitTimeout    = 5 * time.Second
)

// Rendered drives a browser-like renderer: load, settle, extract from the
// rendered document. Pagination advances by activating the next-page
// control rather than computing a URL.
type Rendered struct {
	cfg      *config.JobConfig
	plan     *selector.Plan
	renderer Renderer
	robots   *robots.Checker
	retry    fetchretry.Policy

	loggedIn bool
}

func newRendered(cfg *config.JobConfig, plan *selector.Plan, deps Deps) (*Rendered, error) {
	if plan == nil {
		return nil, &config.ConfigError{Field: "selectors", Reason: "required for rendered jobs"}
	}
	return &Rendered{
		cfg:      cfg,
		plan:     plan,
		renderer: deps.Renderer,
		robots:   deps.Robots,
		retry:    retryPolicy(cfg),
	}, nil
}

// FetchPage loads target in the renderer, waits for the configured
// readiness condition, extracts records from the rendered document, and
// attempts to advance to the next page by clicking the configured control.
func (r *Rendered) FetchPage(ctx context.Context, target string) models.PageResult {
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" {
		slog.Error("malformed target", slog.String("url", target))
		return models.PageResult{Outcome: models.OutcomeFailed, ErrorCategory: "invalid_url"}
	}
	if !r.robots.Allowed(target) {
		return models.PageResult{Outcome: models.OutcomeRobotsSkipped}
	}

	if r.cfg.Login != nil && !r.loggedIn {
		if err := r.login(ctx); err != nil {
			slog.Error("login failed", slog.Any("error", err))
			return models.PageResult{Outcome: models.OutcomeFailed, ErrorCategory: "login"}
		}
		r.loggedIn = true
	}

	// Pagination clicks already leave the renderer on the target page;
	// reloading would lose state on sites that render from session storage.
	if current, err := r.renderer.CurrentURL(ctx); err != nil || current != target {
		loadErr := r.retry.Do(ctx, func(attempt int) fetchretry.Result {
			return fetchretry.Classify(r.renderer.Load(ctx, target), 0)
		})
		if loadErr != nil {
			slog.Warn("page render failed",
				slog.String("url", target),
				slog.Any("error", loadErr),
			)
			return models.PageResult{Outcome: models.OutcomeFailed, ErrorCategory: fetchretry.Label(loadErr)}
		}
	}
	r.settle(ctx)

	page, err := r.renderer.HTML(ctx)
	if err != nil {
		slog.Warn("reading rendered document failed", slog.String("url", target), slog.Any("error", err))
		return models.PageResult{Outcome: models.OutcomeFailed, ErrorCategory: "render"}
	}
	records, err := r.plan.Extract(page, target)
	if err != nil {
		slog.Warn("extraction failed", slog.String("url", target), slog.Any("error", err))
		return models.PageResult{Outcome: models.OutcomeFailed, ErrorCategory: "parse"}
	}
	slog.Debug("page rendered and scraped",
		slog.String("url", target),
		slog.Int("items", len(records)),
	)

	return models.PageResult{
		Records:    records,
		NextTarget: r.clickNext(ctx, target),
		Outcome:    models.OutcomeOK,
	}
}

// settle waits for the configured readiness condition, falling back to a
// fixed delay.
func (r *Rendered) settle(ctx context.Context) {
	if r.cfg.WaitForSelector != "" {
		wait := r.cfg.Wait()
		if wait <= 0 {
			wait = clickWaitTimeout
		}
		if err := r.renderer.WaitVisible(ctx, r.cfg.WaitForSelector, wait); err != nil {
			slog.Warn("readiness condition not met",
				slog.String("selector", r.cfg.WaitForSelector),
				slog.Any("error", err),
			)
		}
		return
	}
	r.renderer.Sleep(ctx, r.cfg.Wait())
}

// clickNext activates the next-page control and reports the URL the
// document settled on, or "" when pagination is exhausted.
func (r *Rendered) clickNext(ctx context.Context, current string) string {
	if r.cfg.Pagination == nil || r.cfg.Pagination.NextPageSelector == "" {
		return ""
	}
	if err := r.renderer.Click(ctx, r.cfg.Pagination.NextPageSelector); err != nil {
		slog.Debug("next page control not available", slog.Any("error", err))
		return ""
	}
	r.settle(ctx)

	next, err := r.renderer.CurrentURL(ctx)
	if err != nil || next == "" || next == current {
		return ""
	}
	slog.Debug("advanced to next page", slog.String("url", next))
	return next
}

// login performs the one-time login sequence: navigate, fill credentials,
// submit, verify by readiness condition or URL substring.
func (r *Rendered) login(ctx context.Context) error {
	lc := r.cfg.Login
	slog.Info("logging in", slog.String("url", lc.LoginURL))

	if err := r.renderer.Load(ctx, lc.LoginURL); err != nil {
		return fmt.Errorf("load login page: %w", err)
	}
	r.renderer.Sleep(ctx, r.cfg.Wait())

	if err := r.renderer.Fill(ctx, lc.UsernameSelector, lc.Username); err != nil {
		return fmt.Errorf("fill username: %w", err)
	}
	if err := r.renderer.Fill(ctx, lc.PasswordSelector, lc.Password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	if err := r.renderer.Click(ctx, lc.SubmitSelector); err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}
	r.renderer.Sleep(ctx, time.Duration(lc.WaitAfterLogin*float64(time.Second)))

	if lc.SuccessSelector != "" {
		if err := r.renderer.WaitVisible(ctx, lc.SuccessSelector, loginElementTimeout); err == nil {
			return nil
		} else if lc.SuccessURLContains == "" {
			return fmt.Errorf("success element %q not visible: %w", lc.SuccessSelector, err)
		}
	}
	if lc.SuccessURLContains != "" {
		current, err := r.renderer.CurrentURL(ctx)
		if err != nil {
			return fmt.Errorf("read current url: %w", err)
		}
		if !strings.Contains(current, lc.SuccessURLContains) {
			return fmt.Errorf("url %q does not contain %q after login", current, lc.SuccessURLContains)
		}
	}
	return nil
}

// Close releases the renderer session.
func (r *Rendered) Close() error {
	return r.renderer.Close()
}
