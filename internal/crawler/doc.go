// Package crawler defines the core types shared across the discovery and
// extraction pipeline: crawl requests, candidate URLs, extraction results,
// the retry executor, and the interfaces the pipeline's collaborators
// implement.
package crawler
