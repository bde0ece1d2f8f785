// Package extractor turns candidate article URLs into structured
// title/body content using a headless browser. Page renders are gated by a
// process-wide concurrency semaphore; every per-URL operation is wrapped in
// the retry executor and every failure mode folds into a result status.
package extractor

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hanlab/newscrawl/internal/crawler"
	"github.com/hanlab/newscrawl/internal/diagnostics"
	"github.com/hanlab/newscrawl/internal/metrics"
)

// Profile is one source's extraction selector chains, ranked most-specific
// to most-generic.
type Profile struct {
	TitleSelectors []string
	BodySelectors  []string
}

// Config controls extraction behavior.
type Config struct {
	UserAgent string
	// MaxConcurrency caps simultaneous page renders. Headless tabs are
	// resource-heavy; unbounded render concurrency exhausts the host.
	MaxConcurrency int
	// NavTimeout bounds one navigate+extract attempt end to end.
	NavTimeout time.Duration
	// SelectorTimeout bounds one selector attempt so a non-matching
	// selector fails fast instead of stalling the task.
	SelectorTimeout time.Duration
	// QualityThreshold is the minimum body length (in runes) a selector's
	// concatenated text must reach to be accepted.
	QualityThreshold int
	// MaxBodyRunes truncates accepted bodies.
	MaxBodyRunes int
	// CaptureScreenshots adds a screenshot to quality-rejection snapshots.
	CaptureScreenshots bool

	Retry crawler.RetryConfig
}

func (c *Config) applyDefaults() {
	if c.UserAgent == "" {
		c.UserAgent = "newscrawl/1.0"
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 5
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.SelectorTimeout <= 0 {
		c.SelectorTimeout = 2 * time.Second
	}
	if c.QualityThreshold <= 0 {
		c.QualityThreshold = 50
	}
	if c.MaxBodyRunes <= 0 {
		c.MaxBodyRunes = 3000
	}
}

// minTitleRunes rejects selector hits that are obviously not a headline
// (icon labels, section names).
const minTitleRunes = 10

// pageSession is one rendered page. The chromedp implementation backs it in
// production; tests substitute fakes.
type pageSession interface {
	Navigate(ctx context.Context) error
	Text(ctx context.Context, selector string) (string, error)
	TextAll(ctx context.Context, selector string) (string, error)
	PageTitle(ctx context.Context) (string, error)
	FinalURL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
}

// sessionFactory opens a session for one URL. The returned func releases
// the session's resources and must be called on every exit path.
type sessionFactory func(ctx context.Context, rawURL string) (pageSession, func(), error)

// SnapshotSink receives quality-rejection diagnostics.
type SnapshotSink interface {
	WriteSnapshot(ctx context.Context, snap diagnostics.Snapshot) (string, error)
}

// Extractor implements crawler.Extractor over a shared headless browser.
type Extractor struct {
	cfg      Config
	profiles map[string]Profile
	gate     crawler.RobotsGate
	diags    SnapshotSink
	retry    *crawler.RetryExecutor
	clock    crawler.Clock
	logger   *zap.Logger

	sem        chan struct{}
	newSession sessionFactory
	browser    *browserRuntime
}

// New starts a headless browser and returns an extractor bound to it.
func New(cfg Config, profiles map[string]Profile, gate crawler.RobotsGate, diags SnapshotSink, clock crawler.Clock, logger *zap.Logger) (*Extractor, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	browser, err := newBrowserRuntime(cfg.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("start headless browser: %w", err)
	}
	e := newWithSessions(cfg, profiles, gate, diags, clock, logger, browser.openSession)
	e.browser = browser
	return e, nil
}

// newWithSessions wires an extractor over an arbitrary session factory.
// Tests use it to avoid a real browser.
func newWithSessions(cfg Config, profiles map[string]Profile, gate crawler.RobotsGate, diags SnapshotSink, clock crawler.Clock, logger *zap.Logger, factory sessionFactory) *Extractor {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		cfg:        cfg,
		profiles:   profiles,
		gate:       gate,
		diags:      diags,
		retry:      crawler.NewRetryExecutor(cfg.Retry, logger),
		clock:      clock,
		logger:     logger,
		sem:        make(chan struct{}, cfg.MaxConcurrency),
		newSession: factory,
	}
}

// Close tears the browser down.
func (e *Extractor) Close() {
	if e.browser != nil {
		e.browser.close()
	}
}

// attemptOutcome is what one navigate+extract attempt produced. A quality
// rejection is a content-level outcome, not an error, so the retry loop
// never re-runs it.
type attemptOutcome struct {
	rejected      bool
	title         string
	body          string
	titleSelector string
	bodySelector  string
	finalURL      string
}

// Extract resolves one candidate to a terminal ExtractionResult. It never
// returns an error; see the status field.
func (e *Extractor) Extract(ctx context.Context, candidate crawler.CandidateURL) crawler.ExtractionResult {
	result := crawler.ExtractionResult{
		Source:       candidate.Source,
		CanonicalURL: candidate.CanonicalURL,
		Rank:         candidate.Rank,
		Status:       crawler.StatusPending,
	}
	target := candidate.RawURL
	if target == "" {
		target = candidate.CanonicalURL
	}

	if e.gate != nil {
		if decision := e.gate.Check(ctx, target); !decision.Allowed {
			metrics.RobotsDeniedTotal.Inc()
			return e.finish(result, crawler.StatusFailed, 0, crawler.ErrPolicyDenied.Error())
		}
		if err := e.gate.Wait(ctx, target); err != nil {
			return e.finish(result, crawler.StatusFailed, 0, err.Error())
		}
	}

	release, err := e.acquireSlot(ctx)
	if err != nil {
		return e.finish(result, crawler.StatusFailed, 0, err.Error())
	}
	defer release()

	result.Status = crawler.StatusFetching

	var outcome attemptOutcome
	stats, err := e.retry.Run(ctx, func(attemptCtx context.Context) error {
		out, attemptErr := e.attempt(attemptCtx, candidate, target)
		if attemptErr != nil {
			return attemptErr
		}
		outcome = out
		return nil
	}, crawler.IsTransient)

	if stats.Attempts > 1 {
		metrics.ExtractionRetriesTotal.Add(float64(stats.Attempts - 1))
	}
	if err != nil {
		e.logger.Warn("extraction failed",
			zap.String("url", candidate.CanonicalURL),
			zap.Int("attempts", stats.Attempts),
			zap.Error(err),
		)
		return e.finish(result, crawler.StatusFailed, stats.Attempts, err.Error())
	}

	result.FinalURL = outcome.finalURL
	if outcome.rejected {
		return e.finish(result, crawler.StatusQualityRejected, stats.Attempts, "no selector passed the quality gate")
	}

	result.Title = outcome.title
	result.Body = truncateRunes(outcome.body, e.cfg.MaxBodyRunes)
	result.TitleSelector = outcome.titleSelector
	result.BodySelector = outcome.bodySelector
	result.ContentLength = utf8.RuneCountInString(result.Body)
	return e.finish(result, crawler.StatusSuccess, stats.Attempts, "")
}

// attempt performs one navigate+extract pass. Errors it returns are
// candidates for retry; a quality rejection comes back as a nil-error
// outcome so it is never retried.
func (e *Extractor) attempt(ctx context.Context, candidate crawler.CandidateURL, target string) (attemptOutcome, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.NavTimeout)
	defer cancel()

	session, closeSession, err := e.newSession(attemptCtx, target)
	if err != nil {
		return attemptOutcome{}, fmt.Errorf("open page session: %w", err)
	}
	defer closeSession()

	if err := session.Navigate(attemptCtx); err != nil {
		return attemptOutcome{}, fmt.Errorf("navigate %s: %w", target, err)
	}

	metrics.ExtractionsInFlight.Inc()
	defer metrics.ExtractionsInFlight.Dec()

	profile := e.profiles[candidate.Source]
	outcome := attemptOutcome{}
	if outcome.finalURL, err = session.FinalURL(attemptCtx); err != nil {
		outcome.finalURL = target
	}

	outcome.title, outcome.titleSelector = e.extractTitle(attemptCtx, session, profile)
	outcome.body, outcome.bodySelector = e.extractBody(attemptCtx, session, profile)

	if outcome.bodySelector == "" || outcome.title == "" {
		if attemptCtx.Err() != nil {
			// The attempt ran out of time mid-chain; let the retry
			// executor decide, not the quality gate.
			return attemptOutcome{}, fmt.Errorf("selector chain interrupted: %w", attemptCtx.Err())
		}
		outcome.rejected = true
		e.captureRejection(ctx, session, candidate, outcome.finalURL)
	}
	return outcome, nil
}

// extractTitle walks the title chain, falling back to the page title with
// any " - site" suffix trimmed, the way news pages decorate it.
func (e *Extractor) extractTitle(ctx context.Context, session pageSession, profile Profile) (string, string) {
	for _, selector := range profile.TitleSelectors {
		text, err := e.boundedText(ctx, session.Text, selector)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if utf8.RuneCountInString(text) >= minTitleRunes {
			return text, selector
		}
	}

	pageTitle, err := session.PageTitle(ctx)
	if err != nil {
		return "", ""
	}
	pageTitle = strings.TrimSpace(pageTitle)
	if idx := strings.Index(pageTitle, " - "); idx > 0 {
		pageTitle = strings.TrimSpace(pageTitle[:idx])
	}
	if pageTitle == "" {
		return "", ""
	}
	return pageTitle, "page-title"
}

// extractBody walks the body chain under the quality gate: a selector whose
// concatenated text is too short is treated as non-matching (an ad, menu or
// caption hit) and the chain continues.
func (e *Extractor) extractBody(ctx context.Context, session pageSession, profile Profile) (string, string) {
	for _, selector := range profile.BodySelectors {
		text, err := e.boundedText(ctx, session.TextAll, selector)
		if err != nil {
			continue
		}
		text = normalizeWhitespace(text)
		if utf8.RuneCountInString(text) >= e.cfg.QualityThreshold {
			return text, selector
		}
	}
	return "", ""
}

func (e *Extractor) boundedText(ctx context.Context, fn func(context.Context, string) (string, error), selector string) (string, error) {
	selectorCtx, cancel := context.WithTimeout(ctx, e.cfg.SelectorTimeout)
	defer cancel()
	return fn(selectorCtx, selector)
}

func (e *Extractor) captureRejection(ctx context.Context, session pageSession, candidate crawler.CandidateURL, finalURL string) {
	if e.diags == nil {
		return
	}
	snap := diagnostics.Snapshot{
		Source: candidate.Source,
		URL:    finalURL,
		Reason: "quality gate rejected every selector",
	}
	if title, err := session.PageTitle(ctx); err == nil {
		snap.PageTitle = title
	}
	if html, err := session.HTML(ctx); err == nil {
		snap.HTML = []byte(html)
	}
	if e.cfg.CaptureScreenshots {
		if shot, err := session.Screenshot(ctx); err == nil {
			snap.Screenshot = shot
		}
	}
	if _, err := e.diags.WriteSnapshot(ctx, snap); err != nil {
		e.logger.Debug("rejection snapshot write failed", zap.Error(err))
	}
}

func (e *Extractor) acquireSlot(ctx context.Context) (func(), error) {
	select {
	case e.sem <- struct{}{}:
		return func() { <-e.sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire extraction slot: %w", ctx.Err())
	}
}

func (e *Extractor) finish(result crawler.ExtractionResult, status crawler.ExtractionStatus, attempts int, errText string) crawler.ExtractionResult {
	result.Status = status
	result.Attempts = attempts
	result.ErrorText = errText
	result.ExtractedAt = e.now()
	metrics.ExtractionsTotal.WithLabelValues(result.Source, string(status)).Inc()
	return result
}

func (e *Extractor) now() time.Time {
	if e.clock != nil {
		return e.clock.Now()
	}
	return time.Now()
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

// normalizeWhitespace collapses the run-on blank lines a concatenated DOM
// text dump produces, without disturbing paragraph breaks.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
