// Package resolver discovers candidate article URLs on configured news
// sources. Each source carries a ranked selector fallback chain; the first
// selector that matches anything wins, and results from different selectors
// are never merged.
package resolver

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/hanlab/newscrawl/internal/crawler"
	"github.com/hanlab/newscrawl/internal/diagnostics"
	"github.com/hanlab/newscrawl/internal/metrics"
)

// defaultOverCollect is how many times maxItems worth of raw links are
// gathered before the allow-list filter runs, absorbing filter attrition.
const defaultOverCollect = 3

// Fetcher fetches one search surface.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// SnapshotSink receives selector-drift diagnostics.
type SnapshotSink interface {
	WriteSnapshot(ctx context.Context, snap diagnostics.Snapshot) (string, error)
}

// Resolver implements crawler.SearchResolver for one source.
type Resolver struct {
	src         Source
	fetcher     Fetcher
	gate        crawler.RobotsGate
	diags       SnapshotSink
	logger      *zap.Logger
	overCollect int
	requestID   string
}

// New builds a resolver. The gate and snapshot sink may be nil (no robots
// enforcement, no diagnostics), which tests use for isolation.
func New(src Source, fetcher Fetcher, gate crawler.RobotsGate, diags SnapshotSink, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		src:         src,
		fetcher:     fetcher,
		gate:        gate,
		diags:       diags,
		logger:      logger.With(zap.String("source", src.Name)),
		overCollect: defaultOverCollect,
	}
}

// WithRequestID tags this resolver's diagnostics with a crawl request ID.
func (r *Resolver) WithRequestID(id string) *Resolver {
	clone := *r
	clone.requestID = id
	return &clone
}

// Search discovers up to maxItems candidate article URLs for the keyword.
// Selector misses and empty pages yield an empty slice; the error return
// carries only cancellation and robots denials.
func (r *Resolver) Search(ctx context.Context, keyword string, op crawler.TermOperator, maxItems int) ([]crawler.CandidateURL, error) {
	metrics.SearchesTotal.WithLabelValues(r.src.Name).Inc()
	if maxItems <= 0 {
		return nil, nil
	}

	target := r.src.DiscoveryURL(keyword, op)
	if r.gate != nil {
		if decision := r.gate.Check(ctx, target); !decision.Allowed {
			metrics.RobotsDeniedTotal.Inc()
			r.logger.Warn("search surface denied by robots policy", zap.String("url", target))
			return nil, fmt.Errorf("search %s: %w", target, crawler.ErrPolicyDenied)
		}
		if err := r.gate.Wait(ctx, target); err != nil {
			return nil, fmt.Errorf("pace search fetch: %w", err)
		}
	}

	body, err := r.fetcher.Fetch(ctx, target)
	if err != nil {
		r.logger.Warn("search fetch failed", zap.String("url", target), zap.Error(err))
		return nil, fmt.Errorf("fetch search surface: %w", err)
	}

	var raw []string
	var pageTitle string
	budget := maxItems * r.overCollect

	if r.src.UsesFeed() {
		raw, err = feedLinks(body, budget)
		if err != nil {
			r.logger.Warn("feed parse failed", zap.String("url", target), zap.Error(err))
			r.snapshot(ctx, target, "", body, "feed parse failed")
			return nil, nil
		}
	} else {
		doc, parseErr := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if parseErr != nil {
			r.logger.Warn("search page parse failed", zap.String("url", target), zap.Error(parseErr))
			r.snapshot(ctx, target, "", body, "search page parse failed")
			return nil, nil
		}
		pageTitle = strings.TrimSpace(doc.Find("title").First().Text())
		raw = r.linksFromChain(doc, target, budget)
	}

	candidates := r.filterCandidates(raw, maxItems)
	if len(candidates) == 0 {
		metrics.SearchesEmptyTotal.WithLabelValues(r.src.Name).Inc()
		r.logger.Warn("no extractable candidates found",
			zap.String("url", target),
			zap.Int("raw_links", len(raw)),
		)
		r.snapshot(ctx, target, pageTitle, body, "selector chain exhausted or all candidates filtered")
		return nil, nil
	}

	metrics.CandidatesTotal.WithLabelValues(r.src.Name).Add(float64(len(candidates)))
	r.logger.Info("candidates resolved",
		zap.Int("count", len(candidates)),
		zap.Int("raw_links", len(raw)),
	)
	return candidates, nil
}

// linksFromChain walks the ranked selector chain strictly in order and stops
// at the first selector matching at least one element. A generic fallback
// like a bare anchor selector matches hundreds of navigation links, so later
// selectors must never pollute an earlier selector's hit.
func (r *Resolver) linksFromChain(doc *goquery.Document, baseURL string, budget int) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	for _, selector := range r.src.LinkSelectors {
		matched := doc.Find(selector)
		if matched.Length() == 0 {
			continue
		}

		links := make([]string, 0, matched.Length())
		matched.EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			href, ok := sel.Attr("href")
			if !ok || strings.TrimSpace(href) == "" {
				return true
			}
			if base != nil {
				if ref, refErr := url.Parse(href); refErr == nil {
					href = base.ResolveReference(ref).String()
				}
			}
			links = append(links, href)
			return len(links) < budget
		})

		r.logger.Debug("selector matched",
			zap.String("selector", selector),
			zap.Int("elements", matched.Length()),
			zap.Int("links", len(links)),
		)
		return links
	}
	return nil
}

// filterCandidates canonicalizes, applies the article allow-list, dedupes
// within the source, and truncates to maxItems in discovery order.
func (r *Resolver) filterCandidates(raw []string, maxItems int) []crawler.CandidateURL {
	seen := make(map[string]struct{}, len(raw))
	out := make([]crawler.CandidateURL, 0, maxItems)

	for _, link := range raw {
		canonical, err := crawler.CanonicalURL(link)
		if err != nil {
			continue
		}
		if !r.src.Allows(canonical) {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, crawler.CandidateURL{
			Source:       r.src.Name,
			RawURL:       link,
			CanonicalURL: canonical,
			Rank:         len(out),
		})
		if len(out) >= maxItems {
			break
		}
	}
	return out
}

func (r *Resolver) snapshot(ctx context.Context, pageURL, pageTitle string, body []byte, reason string) {
	if r.diags == nil {
		return
	}
	if _, err := r.diags.WriteSnapshot(ctx, diagnostics.Snapshot{
		RequestID: r.requestID,
		Source:    r.src.Name,
		URL:       pageURL,
		PageTitle: pageTitle,
		Reason:    reason,
		HTML:      body,
	}); err != nil {
		r.logger.Debug("snapshot write failed", zap.Error(err))
	}
}
