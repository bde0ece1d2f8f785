package crawler

import (
	"context"
	"time"
)

// SearchResolver discovers candidate article URLs on one source for a
// keyword. Selector drift and empty search pages are reported as an empty
// slice, never an error; the error return carries only cancellation and
// policy denials for the caller's per-source bookkeeping.
type SearchResolver interface {
	Search(ctx context.Context, keyword string, op TermOperator, maxItems int) ([]CandidateURL, error)
}

// Extractor turns one candidate URL into an ExtractionResult. It never
// returns an error: every failure mode is folded into the result status.
type Extractor interface {
	Extract(ctx context.Context, candidate CandidateURL) ExtractionResult
}

// RobotsDecision is the answer the robots gate gives for one URL.
type RobotsDecision struct {
	Allowed    bool
	CrawlDelay time.Duration
}

// RobotsGate answers robots.txt allow/deny questions and paces requests per
// origin. Implementations are safe for concurrent use and are injected
// explicitly so tests can build isolated instances.
type RobotsGate interface {
	Check(ctx context.Context, rawURL string) RobotsDecision
	Wait(ctx context.Context, rawURL string) error
}

// ArticleSink is the persistence collaborator. It receives batches of
// terminal results keyed by canonical URL and upserts them downstream.
type ArticleSink interface {
	UpsertBatch(ctx context.Context, results []ExtractionResult) (int, error)
}

// Classifier is the sentiment/summary collaborator. It receives extracted
// title/body text and returns labels; this core treats it as a black box.
type Classifier interface {
	Classify(ctx context.Context, title, body string) (Classification, error)
}

// Clock returns the current time. Injected so tests control timestamps.
type Clock interface {
	Now() time.Time
}
