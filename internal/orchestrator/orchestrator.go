// Package orchestrator fans a crawl request out across its requested
// sources concurrently and collects every source's outcome, tolerating
// per-source failure.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hanlab/newscrawl/internal/crawler"
)

// SourceResult is one source's discovery outcome. A failed source carries an
// empty candidate list and its recorded error; other sources are unaffected.
type SourceResult struct {
	Candidates []crawler.CandidateURL
	Err        error
}

// Orchestrator dispatches one resolver per requested source.
type Orchestrator struct {
	resolvers map[string]crawler.SearchResolver
	logger    *zap.Logger
}

// New builds an orchestrator over a resolver registry.
func New(resolvers map[string]crawler.SearchResolver, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{resolvers: resolvers, logger: logger}
}

// Sources lists the registered source names.
func (o *Orchestrator) Sources() []string {
	names := make([]string, 0, len(o.resolvers))
	for name := range o.resolvers {
		names = append(names, name)
	}
	return names
}

// SearchAll runs one search per requested source concurrently and waits for
// all of them to settle. An unknown source name is a configuration error and
// fails the whole call before anything is dispatched; a resolver failure is
// recorded per source and never propagates.
func (o *Orchestrator) SearchAll(ctx context.Context, req crawler.CrawlRequest) (map[string]SourceResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid crawl request: %w", err)
	}
	resolvers := make(map[string]crawler.SearchResolver, len(req.Sources))
	for _, name := range req.Sources {
		resolver, ok := o.resolvers[name]
		if !ok {
			return nil, fmt.Errorf("unknown source %q", name)
		}
		resolvers[name] = resolver
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]SourceResult, len(resolvers))
	)
	for name, resolver := range resolvers {
		wg.Add(1)
		go func(name string, resolver crawler.SearchResolver) {
			defer wg.Done()
			candidates, err := resolver.Search(ctx, req.Keyword, req.Operator, req.MaxItemsPerSource)
			if err != nil {
				o.logger.Warn("source search failed",
					zap.String("request_id", req.ID),
					zap.String("source", name),
					zap.Error(err),
				)
				candidates = nil
			}
			mu.Lock()
			results[name] = SourceResult{Candidates: candidates, Err: err}
			mu.Unlock()
		}(name, resolver)
	}
	wg.Wait()

	return results, nil
}
