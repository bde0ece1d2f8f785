// Package metrics exposes the crawl pipeline's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchesTotal counts search-page resolutions per source.
	SearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newscrawl_searches_total",
		Help: "Search resolutions attempted, by source.",
	}, []string{"source"})

	// SearchesEmptyTotal counts resolutions that yielded no candidates,
	// the leading indicator of selector drift.
	SearchesEmptyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newscrawl_searches_empty_total",
		Help: "Search resolutions that produced zero candidates, by source.",
	}, []string{"source"})

	// CandidatesTotal counts candidate URLs that survived the allow-list.
	CandidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newscrawl_candidates_total",
		Help: "Candidate article URLs discovered, by source.",
	}, []string{"source"})

	// RobotsDeniedTotal counts URLs abandoned on robots.txt disallow.
	RobotsDeniedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newscrawl_robots_denied_total",
		Help: "Fetches abandoned because robots.txt disallowed the path.",
	})

	// ExtractionRetriesTotal counts transient-error retries during extraction.
	ExtractionRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newscrawl_extraction_retries_total",
		Help: "Extraction attempts retried after a transient error.",
	})

	// ExtractionsTotal counts terminal extraction outcomes.
	ExtractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newscrawl_extractions_total",
		Help: "Terminal extraction results, by source and status.",
	}, []string{"source", "status"})

	// ExtractionsInFlight tracks tasks holding an extraction slot.
	ExtractionsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "newscrawl_extractions_in_flight",
		Help: "Extraction tasks currently holding a concurrency slot.",
	})

	// BatchesPersistedTotal counts persistence round-trips.
	BatchesPersistedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newscrawl_persist_batches_total",
		Help: "Batched upsert round-trips sent to the article sink.",
	})
)
