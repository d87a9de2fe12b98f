package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"webharvest/config"
	"webharvest/engine"
	"webharvest/storage"
	"webharvest/strategy"
	"webharvest/strategy/rodriver"
)

func main() {
	configDefault, _ := config.EnvString("WEBHARVEST_CONFIG")
	outputDefault, _ := config.EnvString("WEBHARVEST_OUTPUT")
	metricsDefault, _ := config.EnvString("WEBHARVEST_METRICS_ADDR")
	pagesDefault := -1
	if value, ok, err := config.EnvInt("WEBHARVEST_PAGES"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid WEBHARVEST_PAGES: %v\n", err)
		os.Exit(1)
	} else if ok {
		pagesDefault = value
	}

	configPath := flag.String("config", configDefault, "Path to the job configuration file (YAML)")
	outputDir := flag.String("output", outputDefault, "Output directory (overrides output_dir)")
	outputFormat := flag.String("format", "", "Output format: csv, json, sqlite, or both (overrides output_format)")
	maxPages := flag.Int("pages", pagesDefault, "Maximum pages to fetch (overrides pagination.max_pages, 0 = unlimited)")
	delayMs := flag.Int("delay", -1, "Delay between page fetches (milliseconds, overrides request_delay)")
	maxRetries := flag.Int("max-retries", -1, "Maximum retry attempts per page (overrides max_retries)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: webharvest -config job.yaml [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading configuration", slog.Any("error", err))
		os.Exit(1)
	}
	applyOverrides(cfg, *outputDir, *outputFormat, *maxPages, *delayMs, *maxRetries)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing current page")
	}()

	opts := engine.Options{Metrics: engine.NewMetrics()}

	if cfg.Type() == config.JobRendered {
		renderer, err := newRenderer(cfg)
		if err != nil {
			slog.Error("starting browser", slog.Any("error", err))
			os.Exit(1)
		}
		opts.Renderer = renderer
	}

	var metricsServer *http.Server
	if *metricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    *metricsAddr,
			Handler: promhttp.HandlerFor(opts.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", *metricsAddr))
	}

	result, err := engine.Run(ctx, cfg, opts)
	if err != nil {
		slog.Error("run failed", slog.Any("error", err))
		os.Exit(1)
	}

	outputPath := ""
	if len(result.Records) > 0 {
		writer, err := storage.New(storage.Options{
			Format:  cfg.OutputFormat,
			Dir:     cfg.OutputDir,
			JobName: cfg.Name,
			Columns: result.Columns,
		})
		if err != nil {
			slog.Error("creating writer", slog.Any("error", err))
			os.Exit(1)
		}
		if err := writer.Write(result.Records); err != nil {
			slog.Error("writing output", slog.Any("error", err))
			writer.Close()
			os.Exit(1)
		}
		if err := writer.Validate(); err != nil {
			slog.Error("output validation failed", slog.Any("error", err))
		}
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
			os.Exit(1)
		}
		outputPath = cfg.OutputDir
	} else {
		slog.Warn("no records collected, skipping output")
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(cfg.Name, result, outputPath)
}

func applyOverrides(cfg *config.JobConfig, outputDir, outputFormat string, maxPages, delayMs, maxRetries int) {
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if outputFormat != "" {
		cfg.OutputFormat = strings.ToLower(outputFormat)
	}
	if maxPages >= 0 {
		if cfg.Pagination == nil {
			cfg.Pagination = &config.PaginationConfig{}
		}
		cfg.Pagination.MaxPages = maxPages
	}
	if delayMs >= 0 {
		cfg.RequestDelay = float64(delayMs) / 1000
	}
	if maxRetries >= 0 {
		cfg.MaxRetries = maxRetries
	}
}

// newRenderer launches the browser for rendered jobs. The first configured
// proxy is applied at the browser level; per-page rotation is not possible
// inside a single browser session.
func newRenderer(cfg *config.JobConfig) (strategy.Renderer, error) {
	headless := true
	if cfg.Headless != nil {
		headless = *cfg.Headless
	}
	proxy := ""
	if len(cfg.Proxies) > 0 {
		if parsed, err := url.Parse(cfg.Proxies[0]); err == nil {
			proxy = parsed.Host
		}
	}
	return rodriver.New(rodriver.Options{
		Headless:  headless,
		UserAgent: cfg.UserAgent,
		Proxy:     proxy,
	})
}

func printSummary(job string, result *engine.Result, outputPath string) {
	s := result.Stats
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Printf("Run complete: %s\n", job)

	fmt.Printf("  Pages scraped:  %d\n", s.PagesScraped)
	fmt.Printf("  Pages failed:   %d\n", s.PagesFailed)
	if s.RobotsSkipped > 0 {
		fmt.Printf("  Robots skipped: %d\n", s.RobotsSkipped)
	}
	fmt.Printf("  Items:          %d extracted, %d processed, %d dropped\n",
		s.ItemsExtracted, s.ItemsProcessed, s.RecordsDropped)
	if len(s.ErrorsByType) > 0 {
		fmt.Printf("  Error types:    %v\n", s.ErrorsByType)
	}
	itemsPerSec := 0.0
	if s.Duration.Seconds() > 0 {
		itemsPerSec = float64(s.ItemsProcessed) / s.Duration.Seconds()
	}
	fmt.Printf("  Duration:       %v\n", s.Duration.Round(time.Millisecond))
	fmt.Printf("  Items/sec:      %.2f\n", itemsPerSec)
	if outputPath != "" {
		fmt.Printf("  Output dir:     %s\n", outputPath)
	}
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
