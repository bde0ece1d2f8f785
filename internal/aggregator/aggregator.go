// Package aggregator merges per-source extraction output into one
// deduplicated, deterministically ordered result set and persists it.
package aggregator

import (
	"sort"

	"github.com/hanlab/newscrawl/internal/crawler"
)

// DedupeCandidates drops candidates whose canonical URL was already seen.
// The first occurrence wins, so when two sources surface the same article
// the earlier source's rank is kept.
func DedupeCandidates(candidates []crawler.CandidateURL) []crawler.CandidateURL {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]crawler.CandidateURL, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.CanonicalURL]; dup {
			continue
		}
		seen[c.CanonicalURL] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Aggregate collapses duplicate canonical URLs, keeping the result with the
// lowest rank, and orders the output by source then rank. Running it twice
// over its own output is a no-op.
func Aggregate(results []crawler.ExtractionResult) []crawler.ExtractionResult {
	best := make(map[string]crawler.ExtractionResult, len(results))
	for _, r := range results {
		prev, ok := best[r.CanonicalURL]
		if !ok || r.Rank < prev.Rank {
			best[r.CanonicalURL] = r
		}
	}
	out := make([]crawler.ExtractionResult, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].CanonicalURL < out[j].CanonicalURL
	})
	return out
}
