package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hanlab/newscrawl/internal/aggregator"
	"github.com/hanlab/newscrawl/internal/clock/system"
	"github.com/hanlab/newscrawl/internal/config"
	"github.com/hanlab/newscrawl/internal/crawler"
	"github.com/hanlab/newscrawl/internal/diagnostics"
	"github.com/hanlab/newscrawl/internal/extractor"
	"github.com/hanlab/newscrawl/internal/logging"
	"github.com/hanlab/newscrawl/internal/orchestrator"
	"github.com/hanlab/newscrawl/internal/pipeline"
	"github.com/hanlab/newscrawl/internal/resolver"
	"github.com/hanlab/newscrawl/internal/robots"
)

func newCrawlCmd() *cobra.Command {
	var (
		keyword  string
		sources  []string
		maxItems int
		useOr    bool
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one keyword crawl across the configured sources",
		Long: `Searches each requested source for the keyword, deduplicates the
discovered article URLs, extracts title and body from each page, and prints
a summary. Persistence is enabled when db.dsn is configured.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd.Context(), keyword, sources, maxItems, useOr)
		},
	}

	cmd.Flags().StringVarP(&keyword, "keyword", "k", "", "search keyword (required)")
	cmd.Flags().StringSliceVarP(&sources, "sources", "s", nil, "sources to search (default from config)")
	cmd.Flags().IntVarP(&maxItems, "max", "m", 0, "max articles per source (default from config)")
	cmd.Flags().BoolVar(&useOr, "any-term", false, "match any keyword term instead of all of them")
	_ = cmd.MarkFlagRequired("keyword")

	return cmd
}

func runCrawl(ctx context.Context, keyword string, sources []string, maxItems int, useOr bool) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(sources) == 0 {
		sources = cfg.Crawler.Sources
	}
	if maxItems <= 0 {
		maxItems = cfg.Crawler.MaxItemsPerSource
	}

	req := crawler.NewCrawlRequest(keyword, sources, maxItems)
	if useOr {
		req.Operator = crawler.OperatorOr
	}

	p, cleanup, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := p.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("run crawl: %w", err)
	}

	printReport(report)
	return nil
}

// buildPipeline assembles the crawl stages from configuration. The returned
// cleanup closes the browser and any database pool.
func buildPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger) (*pipeline.Pipeline, func(), error) {
	clk := system.New()

	gate := robots.New(robots.Config{
		UserAgent:       cfg.Crawler.UserAgent,
		FetchTimeout:    time.Duration(cfg.Robots.FetchTimeoutSec) * time.Second,
		TTL:             time.Duration(cfg.Robots.CacheTTLMin) * time.Minute,
		FailTTL:         time.Duration(cfg.Robots.FailTTLMin) * time.Minute,
		DefaultInterval: time.Duration(cfg.Robots.DefaultIntervalMs) * time.Millisecond,
		MaxCrawlDelay:   time.Duration(cfg.Robots.MaxCrawlDelaySec) * time.Second,
	}, nil, clk, logger.Named("robots"))

	diags, err := diagnostics.NewSink(cfg.Diagnostics.Dir, logger.Named("diagnostics"))
	if err != nil {
		return nil, nil, fmt.Errorf("init diagnostics sink: %w", err)
	}

	fetcher := resolver.NewPageFetcher(resolver.FetchConfig{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   time.Duration(cfg.Resolver.FetchTimeoutSec) * time.Second,
	})

	builtin := resolver.Builtin()
	resolvers := make(map[string]crawler.SearchResolver, len(builtin))
	profiles := make(map[string]extractor.Profile, len(builtin))
	for name, src := range builtin {
		resolvers[name] = resolver.New(src, fetcher, gate, diags, logger.Named("resolver").With(zap.String("source", name)))
		profiles[name] = extractor.Profile{
			TitleSelectors: src.TitleSelectors,
			BodySelectors:  src.BodySelectors,
		}
	}

	retryCfg := crawler.RetryConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retry.BackoffInitialMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Retry.BackoffMaxMs) * time.Millisecond,
		Jitter:      cfg.Retry.Jitter,
	}

	ext, err := extractor.New(extractor.Config{
		UserAgent:          cfg.Crawler.UserAgent,
		MaxConcurrency:     cfg.Extractor.MaxParallel,
		NavTimeout:         time.Duration(cfg.Extractor.NavTimeoutSec) * time.Second,
		SelectorTimeout:    time.Duration(cfg.Extractor.SelectorTimeoutMs) * time.Millisecond,
		QualityThreshold:   cfg.Extractor.QualityThreshold,
		MaxBodyRunes:       cfg.Extractor.MaxBodyRunes,
		CaptureScreenshots: cfg.Extractor.CaptureScreenshots,
		Retry:              retryCfg,
	}, profiles, gate, diags, clk, logger.Named("extractor"))
	if err != nil {
		return nil, nil, fmt.Errorf("init extractor: %w", err)
	}

	var sink crawler.ArticleSink
	var store *aggregator.ArticleStore
	if cfg.DB.DSN != "" {
		store, err = aggregator.NewArticleStore(ctx, aggregator.StoreConfig{
			DSN:             cfg.DB.DSN,
			Table:           cfg.DB.Table,
			BatchSize:       cfg.DB.BatchSize,
			MaxConns:        int32(cfg.DB.MaxConns),
			MinConns:        int32(cfg.DB.MinConns),
			MaxConnLifetime: time.Duration(cfg.DB.ConnLifetimeMin) * time.Minute,
		}, logger.Named("store"))
		if err != nil {
			ext.Close()
			return nil, nil, fmt.Errorf("init article store: %w", err)
		}
		sink = store
	}

	orc := orchestrator.New(resolvers, logger.Named("orchestrator"))
	p, err := pipeline.New(orc, ext, sink, nil, pipeline.Config{Timeout: cfg.RequestTimeout()}, logger.Named("pipeline"))
	if err != nil {
		ext.Close()
		store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		ext.Close()
		store.Close()
	}
	return p, cleanup, nil
}

func printReport(report *pipeline.Report) {
	fmt.Printf("request %s: %d candidates, %d results, %d persisted in %s\n",
		report.RequestID, report.Candidates, len(report.Results), report.Persisted, report.Elapsed.Round(time.Millisecond))

	for _, r := range report.Results {
		fmt.Printf("  [%s] %-16s %s\n", r.Status, r.Source, r.CanonicalURL)
		if r.Title != "" {
			fmt.Printf("      %s (%d chars, %d attempts)\n", r.Title, r.ContentLength, r.Attempts)
		}
	}

	if len(report.SourceErrors) > 0 {
		names := make([]string, 0, len(report.SourceErrors))
		for name := range report.SourceErrors {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  source %s failed: %v\n", name, report.SourceErrors[name])
		}
	}
	if report.PersistErr != nil {
		fmt.Printf("  persistence failed: %v\n", report.PersistErr)
	}
}
