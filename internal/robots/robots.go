// Package robots enforces robots.txt directives and per-origin request
// pacing. Policies are cached per origin with a TTL; an unreachable
// robots.txt fails open (the origin is treated as fully allowed).
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hanlab/newscrawl/internal/crawler"
)

const maxRobotsBody = 1 << 20

// Config controls gate behavior.
type Config struct {
	UserAgent string
	// FetchTimeout bounds one robots.txt fetch.
	FetchTimeout time.Duration
	// TTL is how long a successfully fetched policy stays cached.
	TTL time.Duration
	// FailTTL is how long a fail-open entry stays cached, so a dead origin
	// is not re-probed for every URL.
	FailTTL time.Duration
	// DefaultInterval paces origins whose robots.txt carries no Crawl-delay.
	DefaultInterval time.Duration
	// MaxCrawlDelay clamps hostile Crawl-delay values.
	MaxCrawlDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.UserAgent == "" {
		c.UserAgent = "newscrawl/1.0"
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 5 * time.Second
	}
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}
	if c.FailTTL <= 0 {
		c.FailTTL = 5 * time.Minute
	}
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = time.Second
	}
	if c.MaxCrawlDelay <= 0 {
		c.MaxCrawlDelay = time.Minute
	}
}

// entry is one cached per-origin policy. Entries are immutable once stored;
// expiry triggers a fresh fetch whose Store simply replaces the old value
// (last-writer-wins, since concurrent fetches of the same origin yield
// equivalent data).
type entry struct {
	group     *robotstxt.Group
	fetchedAt time.Time
	ttl       time.Duration
	failOpen  bool
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.fetchedAt) > e.ttl
}

// Gate is a process-wide robots.txt policy cache plus per-origin pacing.
// Construct one per pipeline and pass it to workers explicitly.
type Gate struct {
	cfg      Config
	client   *http.Client
	cache    sync.Map // origin -> *entry
	limiters sync.Map // origin -> *rate.Limiter
	clock    crawler.Clock
	logger   *zap.Logger
}

// New builds a Gate. A nil client gets a default with the configured
// fetch timeout.
func New(cfg Config, client *http.Client, clock crawler.Clock, logger *zap.Logger) *Gate {
	cfg.applyDefaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		cfg:    cfg,
		client: client,
		clock:  clock,
		logger: logger,
	}
}

// Check reports whether the URL's path may be fetched and the origin's
// crawl delay. Malformed URLs are denied; unreachable robots.txt allows
// everything (fail-open).
func (g *Gate) Check(ctx context.Context, rawURL string) crawler.RobotsDecision {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return crawler.RobotsDecision{Allowed: false}
	}
	ent := g.policy(ctx, parsed)
	if ent.failOpen || ent.group == nil {
		return crawler.RobotsDecision{Allowed: true}
	}
	target := parsed.Path
	if target == "" {
		target = "/"
	}
	if parsed.RawQuery != "" {
		target += "?" + parsed.RawQuery
	}
	return crawler.RobotsDecision{
		Allowed:    ent.group.Test(target),
		CrawlDelay: g.clampDelay(ent.group.CrawlDelay),
	}
}

// Wait blocks until the origin's pacing budget allows another request: one
// request per Crawl-delay when the origin declares one, else one per the
// configured default interval. It returns early only on context cancellation.
func (g *Gate) Wait(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("parse url for pacing: %w", err)
	}
	interval := g.cfg.DefaultInterval
	if d := g.Check(ctx, rawURL); d.CrawlDelay > interval {
		interval = d.CrawlDelay
	}
	limiter := g.limiter(originKey(parsed), interval)
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait origin budget: %w", err)
	}
	return nil
}

// Invalidate drops the cached policy for one origin.
func (g *Gate) Invalidate(origin string) {
	g.cache.Delete(strings.ToLower(origin))
}

func (g *Gate) policy(ctx context.Context, parsed *url.URL) *entry {
	key := originKey(parsed)
	now := g.now()
	if v, ok := g.cache.Load(key); ok {
		cached, castOK := v.(*entry)
		if castOK && !cached.expired(now) {
			return cached
		}
	}

	ent := g.fetch(ctx, parsed)
	g.cache.Store(key, ent)
	return ent
}

func (g *Gate) fetch(ctx context.Context, parsed *url.URL) *entry {
	robotsURL := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}

	fetchCtx, cancel := context.WithTimeout(ctx, g.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return g.failOpenEntry(parsed.Host, err)
	}
	req.Header.Set("User-Agent", g.cfg.UserAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return g.failOpenEntry(parsed.Host, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Debug("close robots body", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBody))
	if err != nil {
		return g.failOpenEntry(parsed.Host, err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return g.failOpenEntry(parsed.Host, err)
	}

	// FindGroup prefers the exact user-agent stanza and falls back to "*".
	return &entry{
		group:     data.FindGroup(g.cfg.UserAgent),
		fetchedAt: g.now(),
		ttl:       g.cfg.TTL,
	}
}

func (g *Gate) failOpenEntry(host string, cause error) *entry {
	g.logger.Warn("robots.txt unavailable; failing open",
		zap.String("origin", host),
		zap.Error(cause),
	)
	return &entry{
		fetchedAt: g.now(),
		ttl:       g.cfg.FailTTL,
		failOpen:  true,
	}
}

func (g *Gate) limiter(origin string, interval time.Duration) *rate.Limiter {
	if v, ok := g.limiters.Load(origin); ok {
		if lim, castOK := v.(*rate.Limiter); castOK {
			return lim
		}
	}
	lim := rate.NewLimiter(rate.Every(interval), 1)
	actual, _ := g.limiters.LoadOrStore(origin, lim)
	stored, ok := actual.(*rate.Limiter)
	if !ok {
		return lim
	}
	return stored
}

func (g *Gate) clampDelay(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > g.cfg.MaxCrawlDelay {
		return g.cfg.MaxCrawlDelay
	}
	return d
}

func (g *Gate) now() time.Time {
	if g.clock != nil {
		return g.clock.Now()
	}
	return time.Now()
}

func originKey(u *url.URL) string {
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
