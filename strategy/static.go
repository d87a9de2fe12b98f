package strategy

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"webharvest/config"
	"webharvest/fetchretry"
	"webharvest/models"
	"webharvest/proxyring"
	"webharvest/robots"
	"webharvest/selector"
)

// Static fetches plain documents and applies the extraction plan to the
// retrieved markup. A run's fetches are strictly sequential, so one capture
// slot per collector is enough.
type Static struct {
	cfg    *config.JobConfig
	plan   *selector.Plan
	next   *selector.Locator
	ring   *proxyring.Ring
	robots *robots.Checker
	retry  fetchretry.Policy

	collector *colly.Collector

	// per-fetch capture, reset before every attempt
	body     []byte
	status   int
	fetchErr error
}

func newStatic(cfg *config.JobConfig, plan *selector.Plan, deps Deps) (*Static, error) {
	if plan == nil {
		return nil, &config.ConfigError{Field: "selectors", Reason: "required for static jobs"}
	}

	var next *selector.Locator
	if cfg.Pagination != nil && cfg.Pagination.NextPageSelector != "" {
		var err error
		next, err = selector.CompileLocator(cfg.Selectors.Language(), cfg.Pagination.NextPageSelector)
		if err != nil {
			return nil, err
		}
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout())
	// Robots policy is applied by the checker before each fetch so skipped
	// pages get their own outcome; colly's built-in handling would surface
	// them as errors instead.
	collector.IgnoreRobotsTxt = true

	if deps.Transport != nil {
		collector.WithTransport(deps.Transport)
	} else {
		collector.WithTransport(&http.Transport{
			Proxy: deps.Ring.ProxyFunc(),
			DialContext: (&net.Dialer{
				Timeout:   cfg.Timeout(),
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        16,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		})
	}

	s := &Static{
		cfg:       cfg,
		plan:      plan,
		next:      next,
		ring:      deps.Ring,
		robots:    deps.Robots,
		retry:     retryPolicy(cfg),
		collector: collector,
	}

	collector.OnResponse(func(r *colly.Response) {
		s.status = r.StatusCode
		s.body = r.Body
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			s.status = r.StatusCode
		}
		s.fetchErr = err
	})
	return s, nil
}

// FetchPage fetches target, applies the plan, and resolves the next-page
// locator. Ordinary failures become a failed outcome; robots denials a
// skipped outcome.
func (s *Static) FetchPage(ctx context.Context, target string) models.PageResult {
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" {
		slog.Error("malformed target", slog.String("url", target))
		return models.PageResult{Outcome: models.OutcomeFailed, ErrorCategory: "invalid_url"}
	}
	if !s.robots.Allowed(target) {
		return models.PageResult{Outcome: models.OutcomeRobotsSkipped}
	}

	// Each attempt borrows and reports its own proxy, so consecutive
	// failures count per entry and retries rotate to a healthier one.
	fetchErr := s.retry.Do(ctx, func(attempt int) fetchretry.Result {
		entry := s.ring.Next()
		s.body, s.status, s.fetchErr = nil, 0, nil
		if err := s.collector.Visit(target); err != nil && s.fetchErr == nil {
			s.fetchErr = err
		}
		res := fetchretry.Classify(s.fetchErr, s.status)
		s.ring.Report(entry, res.Class == fetchretry.Success)
		return res
	})

	if fetchErr != nil {
		slog.Warn("page fetch failed",
			slog.String("url", target),
			slog.String("category", fetchretry.Label(fetchErr)),
			slog.Any("error", fetchErr),
		)
		return models.PageResult{Outcome: models.OutcomeFailed, ErrorCategory: fetchretry.Label(fetchErr)}
	}

	page := string(s.body)
	records, err := s.plan.Extract(page, target)
	if err != nil {
		slog.Warn("extraction failed", slog.String("url", target), slog.Any("error", err))
		return models.PageResult{Outcome: models.OutcomeFailed, ErrorCategory: "parse"}
	}
	slog.Debug("page scraped",
		slog.String("url", target),
		slog.Int("items", len(records)),
	)

	var next string
	if s.next != nil {
		next = s.next.Href(page, target)
	}
	return models.PageResult{Records: records, NextTarget: next, Outcome: models.OutcomeOK}
}

// Close is a no-op for the static variant; the transport is shared with the
// process-wide client pool and released with the run.
func (s *Static) Close() error { return nil }
