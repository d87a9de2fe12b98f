// Package engine coordinates a run: it compiles the job into its working
// parts, drives pagination, processes the collected records, and reports
// run statistics.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"webharvest/config"
	"webharvest/models"
	"webharvest/paginate"
	"webharvest/process"
	"webharvest/proxyring"
	"webharvest/robots"
	"webharvest/selector"
	"webharvest/strategy"
)

// Options carry injected collaborators. Renderer is required for rendered
// jobs; Transport overrides the HTTP transport for static and api jobs.
type Options struct {
	Renderer  strategy.Renderer
	Transport http.RoundTripper
	Metrics   *Metrics
}

// Result is the outcome of a completed run.
type Result struct {
	Records []models.ProcessedRecord
	Stats   *models.RunStats
	// Columns is the output column order derived from the job config.
	Columns []string
	// Proxies is the final health state of the proxy pool.
	Proxies []proxyring.Status
}

// Run executes one job end to end. Only configuration problems surface as
// errors; fetch and parse failures are absorbed into the statistics.
func Run(ctx context.Context, cfg *config.JobConfig, opts Options) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var plan *selector.Plan
	if cfg.Selectors != nil {
		var err error
		plan, err = selector.Compile(cfg.Selectors)
		if err != nil {
			return nil, err
		}
	}

	processor, err := process.New(cfg.Processing)
	if err != nil {
		return nil, err
	}

	ring, err := proxyring.New(cfg.Proxies)
	if err != nil {
		return nil, &config.ConfigError{Field: "proxies", Reason: err.Error()}
	}
	checker := robots.NewChecker(cfg.RespectRobots, cfg.UserAgent, nil)

	strat, err := strategy.New(cfg, plan, strategy.Deps{
		Ring:      ring,
		Robots:    checker,
		Renderer:  opts.Renderer,
		Transport: opts.Transport,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := strat.Close(); err != nil {
			slog.Warn("closing strategy", slog.Any("error", err))
		}
	}()

	sources := cfg.URLs
	if cfg.Type() == config.JobAPI {
		sources = cfg.API.Targets()
	}

	stats := models.NewRunStats()
	controller := &paginate.Controller{
		Strategy: strat,
		Delay:    cfg.Delay(),
		MaxPages: pageBudget(cfg, len(sources)),
		Stats:    stats,
	}

	slog.Info("run starting",
		slog.String("job", cfg.Name),
		slog.String("job_type", cfg.Type()),
		slog.Int("sources", len(sources)),
	)

	raw := controller.Run(ctx, sources)
	records := processor.Process(raw, stats)
	stats.Finalize()

	report(opts.Metrics, stats)
	slog.Info("run finished",
		slog.String("job", cfg.Name),
		slog.Int("pages_scraped", stats.PagesScraped),
		slog.Int("pages_failed", stats.PagesFailed),
		slog.Int("items", len(records)),
		slog.Duration("duration", stats.Duration),
	)

	return &Result{
		Records: records,
		Stats:   stats,
		Columns: outputColumns(cfg, plan),
		Proxies: ring.Snapshot(),
	}, nil
}

// pageBudget resolves the effective page limit. Without a pagination block
// the run visits exactly the configured sources; an explicit zero means
// unlimited.
func pageBudget(cfg *config.JobConfig, sources int) int {
	if cfg.Pagination == nil {
		return sources
	}
	return cfg.Pagination.MaxPages
}

// outputColumns derives the stable column order: extracted fields sorted by
// name, transformation targets appended in declaration order, dropped
// fields removed.
func outputColumns(cfg *config.JobConfig, plan *selector.Plan) []string {
	var columns []string
	switch {
	case plan != nil:
		columns = plan.FieldNames()
	case cfg.API != nil:
		for name := range cfg.API.FieldMappings {
			columns = append(columns, name)
		}
		sort.Strings(columns)
	}

	if cfg.Processing == nil {
		return columns
	}
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}
	for _, tr := range cfg.Processing.Transforms {
		if !present[tr.Field] {
			columns = append(columns, tr.Field)
			present[tr.Field] = true
		}
	}
	dropped := make(map[string]bool, len(cfg.Processing.DropFields))
	for _, f := range cfg.Processing.DropFields {
		dropped[f] = true
	}
	kept := columns[:0]
	for _, c := range columns {
		if !dropped[c] {
			kept = append(kept, c)
		}
	}
	return kept
}

// report mirrors the run statistics into the Prometheus collectors.
func report(m *Metrics, stats *models.RunStats) {
	if m == nil {
		return
	}
	m.AddPages(string(models.OutcomeOK), stats.PagesScraped)
	m.AddPages(string(models.OutcomeFailed), stats.PagesFailed)
	m.AddPages(string(models.OutcomeRobotsSkipped), stats.RobotsSkipped)
	m.AddItems(stats.ItemsExtracted, stats.ItemsProcessed, stats.RecordsDropped)
	for category, n := range stats.ErrorsByType {
		m.AddError(category, n)
	}
	m.ObserveRun(stats.Duration)
}

// Summary renders a human-readable run report.
func Summary(res *Result) string {
	s := res.Stats
	rate := 0.0
	attempted := s.PagesScraped + s.PagesFailed
	if attempted > 0 {
		rate = float64(s.PagesScraped) / float64(attempted) * 100
	}
	out := fmt.Sprintf(
		"pages=%d failed=%d robots_skipped=%d success=%.1f%% extracted=%d processed=%d dropped=%d duration=%s",
		s.PagesScraped, s.PagesFailed, s.RobotsSkipped, rate,
		s.ItemsExtracted, s.ItemsProcessed, s.RecordsDropped, s.Duration.Round(time.Millisecond),
	)
	return out
}
