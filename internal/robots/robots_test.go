package robots

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func robotsServer(t *testing.T, body string, hits *int32) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if hits != nil {
			mu.Lock()
			*hits++
			mu.Unlock()
		}
		fmt.Fprint(w, body)
	}))
}

func TestGate_DisallowPrefix(t *testing.T) {
	t.Parallel()

	srv := robotsServer(t, "User-agent: *\nDisallow: /private\n", nil)
	defer srv.Close()

	gate := New(Config{UserAgent: "newscrawl-test"}, srv.Client(), nil, zap.NewNop())
	ctx := context.Background()

	require.True(t, gate.Check(ctx, srv.URL+"/mnews/article/001/123").Allowed)
	require.False(t, gate.Check(ctx, srv.URL+"/private/page").Allowed)
	require.False(t, gate.Check(ctx, srv.URL+"/private").Allowed)
}

func TestGate_PrefersExactUserAgentStanza(t *testing.T) {
	t.Parallel()

	body := "User-agent: newscrawl-test\nDisallow: /only-for-us\n\nUser-agent: *\nDisallow: /\n"
	srv := robotsServer(t, body, nil)
	defer srv.Close()

	gate := New(Config{UserAgent: "newscrawl-test"}, srv.Client(), nil, zap.NewNop())
	ctx := context.Background()

	// The wildcard stanza denies everything; our stanza only one prefix.
	require.True(t, gate.Check(ctx, srv.URL+"/anything").Allowed)
	require.False(t, gate.Check(ctx, srv.URL+"/only-for-us/x").Allowed)
}

func TestGate_SurfacesCrawlDelay(t *testing.T) {
	t.Parallel()

	srv := robotsServer(t, "User-agent: *\nCrawl-delay: 3\nDisallow:\n", nil)
	defer srv.Close()

	gate := New(Config{UserAgent: "newscrawl-test"}, srv.Client(), nil, zap.NewNop())
	decision := gate.Check(context.Background(), srv.URL+"/article")

	require.True(t, decision.Allowed)
	require.Equal(t, 3*time.Second, decision.CrawlDelay)
}

func TestGate_ClampsHostileCrawlDelay(t *testing.T) {
	t.Parallel()

	srv := robotsServer(t, "User-agent: *\nCrawl-delay: 86400\n", nil)
	defer srv.Close()

	gate := New(Config{UserAgent: "newscrawl-test", MaxCrawlDelay: 30 * time.Second}, srv.Client(), nil, zap.NewNop())
	decision := gate.Check(context.Background(), srv.URL+"/a")

	require.Equal(t, 30*time.Second, decision.CrawlDelay)
}

func TestGate_FailsOpenWhenUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	gate := New(Config{UserAgent: "newscrawl-test", FetchTimeout: time.Second}, nil, nil, zap.NewNop())
	decision := gate.Check(context.Background(), srv.URL+"/anything")

	require.True(t, decision.Allowed)
	require.Zero(t, decision.CrawlDelay)
}

func TestGate_CachesPerOriginUntilTTL(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := robotsServer(t, "User-agent: *\nDisallow: /blocked\n", &hits)
	defer srv.Close()

	clock := &fakeClock{now: time.Now()}
	gate := New(Config{UserAgent: "newscrawl-test", TTL: 10 * time.Minute}, srv.Client(), clock, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		gate.Check(ctx, fmt.Sprintf("%s/page/%d", srv.URL, i))
	}
	require.EqualValues(t, 1, hits)

	clock.Advance(11 * time.Minute)
	gate.Check(ctx, srv.URL+"/page/expired")
	require.EqualValues(t, 2, hits)
}

func TestGate_InvalidateForcesRefetch(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := robotsServer(t, "User-agent: *\nDisallow:\n", &hits)
	defer srv.Close()

	gate := New(Config{UserAgent: "newscrawl-test"}, srv.Client(), nil, zap.NewNop())
	ctx := context.Background()

	gate.Check(ctx, srv.URL+"/a")
	gate.Check(ctx, srv.URL+"/b")
	require.EqualValues(t, 1, hits)

	gate.Invalidate(srv.URL)
	gate.Check(ctx, srv.URL+"/c")
	require.EqualValues(t, 2, hits)
}

func TestGate_ConcurrentChecksDoNotBlock(t *testing.T) {
	t.Parallel()

	srv := robotsServer(t, "User-agent: *\nDisallow: /blocked\n", nil)
	defer srv.Close()

	gate := New(Config{UserAgent: "newscrawl-test"}, srv.Client(), nil, zap.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := gate.Check(ctx, fmt.Sprintf("%s/page/%d", srv.URL, i))
			if !d.Allowed {
				t.Errorf("page %d unexpectedly denied", i)
			}
		}(i)
	}
	wg.Wait()
}

func TestGate_WaitPacesRequests(t *testing.T) {
	t.Parallel()

	srv := robotsServer(t, "User-agent: *\nDisallow:\n", nil)
	defer srv.Close()

	gate := New(Config{
		UserAgent:       "newscrawl-test",
		DefaultInterval: 50 * time.Millisecond,
	}, srv.Client(), nil, zap.NewNop())
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, gate.Wait(ctx, srv.URL+"/a"))
	}
	// First request is free (burst 1); the next two wait one interval each.
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestGate_WaitHonorsCancellation(t *testing.T) {
	t.Parallel()

	srv := robotsServer(t, "User-agent: *\nCrawl-delay: 30\n", nil)
	defer srv.Close()

	gate := New(Config{UserAgent: "newscrawl-test"}, srv.Client(), nil, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, gate.Wait(ctx, srv.URL+"/a")) // burst token
	err := gate.Wait(ctx, srv.URL+"/a")              // would wait 30s
	require.Error(t, err)
}
