// Package main hosts the newscrawl CLI entrypoint.
//
// Architecture overview:
//   - Discovery: internal/resolver fetches each source's search page (or RSS
//     feed) via Colly, walks a strictly ordered CSS selector chain where the
//     first matching selector wins, canonicalizes the discovered links and
//     filters them against the source's article URL allow-list. An empty
//     result set triggers a page snapshot in internal/diagnostics.
//   - Fan-out: internal/orchestrator searches all requested sources
//     concurrently and waits for every source to settle; one source failing
//     never discards another's candidates.
//   - Extraction: internal/extractor renders each article in a shared
//     headless Chrome via chromedp, bounded by a process-wide semaphore.
//     Title and body come from per-source selector chains; bodies under the
//     quality threshold are rejected and never retried, while transient
//     navigation failures run through the shared backoff executor.
//   - Politeness: internal/robots caches robots.txt per origin, surfaces
//     Crawl-delay (clamped), and paces requests per origin via rate.Limiter.
//     Unreachable robots files fail open with a short cache TTL.
//   - Persistence: internal/aggregator deduplicates results by canonical URL
//     and upserts them into Postgres with one pgx batch round-trip per chunk.
//   - Plumbing: Viper populates config from files and NEWSCRAWL_* env vars,
//     zap provides structured logging, and Prometheus counters track
//     searches, extractions, retries and persisted batches.
package main
