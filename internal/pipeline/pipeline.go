// Package pipeline runs one crawl request end to end: fan-out discovery,
// cross-source deduplication, bounded extraction, aggregation and optional
// persistence and classification.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hanlab/newscrawl/internal/aggregator"
	"github.com/hanlab/newscrawl/internal/crawler"
	"github.com/hanlab/newscrawl/internal/orchestrator"
)

// Config controls one pipeline instance.
type Config struct {
	// Timeout bounds a whole request. Zero means the caller's context
	// alone decides.
	Timeout time.Duration
}

// Report is the outcome of one crawl request. Extraction results are always
// present for whatever completed, even when some sources or the sink failed.
type Report struct {
	RequestID string
	Keyword   string
	// SourceErrors maps a source name to its discovery failure. Sources
	// absent from the map completed discovery.
	SourceErrors map[string]error
	// Candidates is the deduplicated cross-source candidate count that
	// went into extraction.
	Candidates int
	Results    []crawler.ExtractionResult
	// Classifications is keyed by canonical URL and only populated for
	// successful extractions when a classifier is configured.
	Classifications map[string]crawler.Classification
	// Persisted is the number of rows the sink accepted.
	Persisted  int
	PersistErr error
	Elapsed    time.Duration
}

// Pipeline wires the crawl stages together. Sink and classifier are
// optional; a nil value skips that stage.
type Pipeline struct {
	orc        *orchestrator.Orchestrator
	extractor  crawler.Extractor
	sink       crawler.ArticleSink
	classifier crawler.Classifier
	cfg        Config
	logger     *zap.Logger
}

// New builds a pipeline. Orchestrator and extractor are required.
func New(orc *orchestrator.Orchestrator, ext crawler.Extractor, sink crawler.ArticleSink, classifier crawler.Classifier, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if orc == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if ext == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		orc:        orc,
		extractor:  ext,
		sink:       sink,
		classifier: classifier,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Run executes one crawl request. It returns an error only when the request
// itself is unusable; stage-level failures are recorded in the report.
func (p *Pipeline) Run(ctx context.Context, req crawler.CrawlRequest) (*Report, error) {
	started := time.Now()
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	report := &Report{
		RequestID:    req.ID,
		Keyword:      req.Keyword,
		SourceErrors: make(map[string]error),
	}

	bySource, err := p.orc.SearchAll(ctx, req)
	if err != nil {
		return nil, err
	}

	var candidates []crawler.CandidateURL
	for name, sr := range bySource {
		if sr.Err != nil {
			report.SourceErrors[name] = sr.Err
			continue
		}
		candidates = append(candidates, sr.Candidates...)
	}
	candidates = aggregator.DedupeCandidates(candidates)
	report.Candidates = len(candidates)

	p.logger.Info("discovery settled",
		zap.String("request_id", req.ID),
		zap.String("keyword", req.Keyword),
		zap.Int("candidates", len(candidates)),
		zap.Int("failed_sources", len(report.SourceErrors)),
	)

	report.Results = aggregator.Aggregate(p.extractAll(ctx, candidates))
	p.classify(ctx, report)
	p.persist(ctx, report)

	report.Elapsed = time.Since(started)
	p.logger.Info("crawl request finished",
		zap.String("request_id", req.ID),
		zap.Int("results", len(report.Results)),
		zap.Int("persisted", report.Persisted),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// extractAll fans extraction out one goroutine per candidate. The
// extractor's own semaphore bounds real page-render concurrency, so the
// goroutines are cheap waiters.
func (p *Pipeline) extractAll(ctx context.Context, candidates []crawler.CandidateURL) []crawler.ExtractionResult {
	results := make([]crawler.ExtractionResult, len(candidates))
	var wg sync.WaitGroup
	for i, candidate := range candidates {
		wg.Add(1)
		go func(i int, candidate crawler.CandidateURL) {
			defer wg.Done()
			results[i] = p.extractor.Extract(ctx, candidate)
		}(i, candidate)
	}
	wg.Wait()
	return results
}

func (p *Pipeline) classify(ctx context.Context, report *Report) {
	if p.classifier == nil {
		return
	}
	report.Classifications = make(map[string]crawler.Classification)
	for _, r := range report.Results {
		if r.Status != crawler.StatusSuccess {
			continue
		}
		c, err := p.classifier.Classify(ctx, r.Title, r.Body)
		if err != nil {
			p.logger.Warn("classification failed",
				zap.String("url", r.CanonicalURL),
				zap.Error(err),
			)
			continue
		}
		report.Classifications[r.CanonicalURL] = c
	}
}

func (p *Pipeline) persist(ctx context.Context, report *Report) {
	if p.sink == nil || len(report.Results) == 0 {
		return
	}
	n, err := p.sink.UpsertBatch(ctx, report.Results)
	report.Persisted = n
	if err != nil {
		report.PersistErr = err
		p.logger.Error("persisting results failed",
			zap.String("request_id", report.RequestID),
			zap.Int("persisted", n),
			zap.Error(err),
		)
	}
}
