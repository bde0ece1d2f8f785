package crawler

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TermOperator controls how a multi-term keyword is combined in a source's
// search query.
type TermOperator string

// Supported term operators.
const (
	OperatorAnd TermOperator = "AND"
	OperatorOr  TermOperator = "OR"
)

// CrawlRequest describes one user-initiated search across news sources.
// It lives for the duration of the request and is never persisted here.
type CrawlRequest struct {
	ID                string       `json:"id"`
	Keyword           string       `json:"keyword"`
	Sources           []string     `json:"sources"`
	MaxItemsPerSource int          `json:"max_items_per_source"`
	Operator          TermOperator `json:"operator"`
}

// NewCrawlRequest builds a request with a fresh ID and defaulted operator.
func NewCrawlRequest(keyword string, sources []string, maxItems int) CrawlRequest {
	return CrawlRequest{
		ID:                uuid.NewString(),
		Keyword:           keyword,
		Sources:           sources,
		MaxItemsPerSource: maxItems,
		Operator:          OperatorAnd,
	}
}

// Validate rejects requests that cannot be dispatched. Unknown source names
// are checked by the orchestrator, which owns the resolver registry.
func (r CrawlRequest) Validate() error {
	if strings.TrimSpace(r.Keyword) == "" {
		return fmt.Errorf("keyword is required")
	}
	if len(r.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	if r.MaxItemsPerSource <= 0 {
		return fmt.Errorf("max_items_per_source must be positive, got %d", r.MaxItemsPerSource)
	}
	switch r.Operator {
	case OperatorAnd, OperatorOr, "":
	default:
		return fmt.Errorf("unknown term operator %q", r.Operator)
	}
	return nil
}

// CandidateURL is one article link discovered on a source's search surface.
type CandidateURL struct {
	Source       string `json:"source"`
	RawURL       string `json:"raw_url"`
	CanonicalURL string `json:"canonical_url"`
	Rank         int    `json:"rank"`
}

// ExtractionStatus is the lifecycle state of one candidate's extraction.
type ExtractionStatus string

// Extraction lifecycle states. Success, QualityRejected and Failed are
// terminal; the others are observable only while a task is in flight.
const (
	StatusPending         ExtractionStatus = "pending"
	StatusFetching        ExtractionStatus = "fetching"
	StatusExtracting      ExtractionStatus = "extracting"
	StatusSuccess         ExtractionStatus = "success"
	StatusQualityRejected ExtractionStatus = "quality_rejected"
	StatusFailed          ExtractionStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s ExtractionStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusQualityRejected, StatusFailed:
		return true
	default:
		return false
	}
}

// ExtractionResult is the outcome of extracting one candidate URL.
// A result is owned by the task that produced it until it is handed to the
// aggregator; no result is mutated by more than one goroutine.
type ExtractionResult struct {
	Source        string           `json:"source"`
	CanonicalURL  string           `json:"canonical_url"`
	FinalURL      string           `json:"final_url,omitempty"`
	Rank          int              `json:"rank"`
	Title         string           `json:"title,omitempty"`
	Body          string           `json:"body,omitempty"`
	TitleSelector string           `json:"title_selector,omitempty"`
	BodySelector  string           `json:"body_selector,omitempty"`
	Status        ExtractionStatus `json:"status"`
	ContentLength int              `json:"content_length"`
	Attempts      int              `json:"attempts"`
	ExtractedAt   time.Time        `json:"extracted_at"`
	ErrorText     string           `json:"error_text,omitempty"`
}

// Classification is the label set the sentiment collaborator returns for one
// successfully extracted article. This core never computes it.
type Classification struct {
	Sentiment  string  `json:"sentiment"`
	Summary    string  `json:"summary,omitempty"`
	Confidence float64 `json:"confidence"`
}
