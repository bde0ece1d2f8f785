package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hanlab/newscrawl/internal/crawler"
	"github.com/hanlab/newscrawl/internal/diagnostics"
)

type stubFetcher struct {
	body []byte
	err  error
	urls []string
}

func (f *stubFetcher) Fetch(_ context.Context, rawURL string) ([]byte, error) {
	f.urls = append(f.urls, rawURL)
	return f.body, f.err
}

type stubGate struct {
	allowed bool
	waits   int
}

func (g *stubGate) Check(context.Context, string) crawler.RobotsDecision {
	return crawler.RobotsDecision{Allowed: g.allowed}
}

func (g *stubGate) Wait(context.Context, string) error {
	g.waits++
	return nil
}

type recordingSink struct {
	snaps []diagnostics.Snapshot
}

func (s *recordingSink) WriteSnapshot(_ context.Context, snap diagnostics.Snapshot) (string, error) {
	s.snaps = append(s.snaps, snap)
	return "snapshot.json", nil
}

func naverTestSource() Source {
	src := Builtin()["naver"]
	src.SearchURLTemplate = "https://search.test/search?query=%s"
	return src
}

// Fixture search page: five links, two of which match the article allow-list.
const searchFixture = `<!DOCTYPE html>
<html><head><title>테스트 : 네이버 뉴스검색</title></head><body>
<div class="api_subject_bx">
  <div class="news_area">
    <a class="news_tit" href="https://n.news.naver.com/mnews/article/001/0014000001?sid=101">첫 기사</a>
  </div>
  <div class="news_area">
    <a class="news_tit" href="https://n.news.naver.com/mnews/article/002/0014000002">둘째 기사</a>
  </div>
  <div class="news_area">
    <a class="news_tit" href="https://news.test.com/home">홈페이지</a>
  </div>
  <div class="news_area">
    <a class="news_tit" href="https://news.test.com/list/economy">목록 페이지</a>
  </div>
  <div class="news_area">
    <a class="news_tit" href="https://ad.test.com/promo?utm_source=x">광고</a>
  </div>
</div>
<a href="https://nav.test.com/menu">메뉴</a>
</body></html>`

func TestSearch_FixtureReturnsOnlyAllowListedArticles(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{body: []byte(searchFixture)}
	r := New(naverTestSource(), fetcher, nil, nil, zap.NewNop())

	got, err := r.Search(context.Background(), "테스트", crawler.OperatorAnd, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Equal(t, "https://n.news.naver.com/mnews/article/001/0014000001?sid=101", got[0].CanonicalURL)
	require.Equal(t, "https://n.news.naver.com/mnews/article/002/0014000002", got[1].CanonicalURL)
	require.Equal(t, 0, got[0].Rank)
	require.Equal(t, 1, got[1].Rank)
	for _, c := range got {
		require.Equal(t, "naver", c.Source)
		require.True(t, naverTestSource().Allows(c.CanonicalURL))
	}
}

func TestSearch_FirstMatchingSelectorWins(t *testing.T) {
	t.Parallel()

	// selector[0] (a.news_tit) matches nothing; the generic naver-host
	// fallback matches. The result must come solely from the fallback.
	page := `<html><body>
<a href="https://n.news.naver.com/mnews/article/001/1">from fallback</a>
</body></html>`
	fetcher := &stubFetcher{body: []byte(page)}
	r := New(naverTestSource(), fetcher, nil, nil, zap.NewNop())

	got, err := r.Search(context.Background(), "keyword", crawler.OperatorAnd, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "https://n.news.naver.com/mnews/article/001/1", got[0].CanonicalURL)
}

func TestSearch_AcceptedSelectorStopsChainEvenWhenFiltered(t *testing.T) {
	t.Parallel()

	// a.news_tit matches one element whose link fails the allow-list. The
	// chain must stop there rather than union in the later generic
	// selector's article link.
	page := `<html><body>
<a class="news_tit" href="https://news.test.com/home">home</a>
<a href="https://n.news.naver.com/mnews/article/001/1">article via generic</a>
</body></html>`
	fetcher := &stubFetcher{body: []byte(page)}
	sink := &recordingSink{}
	r := New(naverTestSource(), fetcher, nil, sink, zap.NewNop())

	got, err := r.Search(context.Background(), "keyword", crawler.OperatorAnd, 5)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Len(t, sink.snaps, 1, "filtered-out yield should leave a diagnostic snapshot")
}

func TestSearch_DeduplicatesByCanonicalURL(t *testing.T) {
	t.Parallel()

	page := `<html><body>
<a class="news_tit" href="https://n.news.naver.com/mnews/article/001/1?utm_source=a">one</a>
<a class="news_tit" href="https://n.news.naver.com/mnews/article/001/1?utm_source=b">same</a>
<a class="news_tit" href="https://n.news.naver.com/mnews/article/001/2">two</a>
</body></html>`
	fetcher := &stubFetcher{body: []byte(page)}
	r := New(naverTestSource(), fetcher, nil, nil, zap.NewNop())

	got, err := r.Search(context.Background(), "keyword", crawler.OperatorAnd, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestSearch_TruncatesToMaxItems(t *testing.T) {
	t.Parallel()

	var links string
	for i := 0; i < 12; i++ {
		links += fmt.Sprintf(`<a class="news_tit" href="https://n.news.naver.com/mnews/article/001/%d">a</a>`, i)
	}
	fetcher := &stubFetcher{body: []byte("<html><body>" + links + "</body></html>")}
	r := New(naverTestSource(), fetcher, nil, nil, zap.NewNop())

	got, err := r.Search(context.Background(), "keyword", crawler.OperatorAnd, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		require.Equal(t, i, c.Rank)
	}
}

func TestSearch_EmptyPageEmitsSnapshotNotError(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{body: []byte(`<html><head><title>빈 결과</title></head><body><p>no links</p></body></html>`)}
	sink := &recordingSink{}
	r := New(naverTestSource(), fetcher, nil, sink, zap.NewNop()).WithRequestID("req-1")

	got, err := r.Search(context.Background(), "keyword", crawler.OperatorAnd, 5)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Len(t, sink.snaps, 1)
	require.Equal(t, "req-1", sink.snaps[0].RequestID)
	require.Equal(t, "빈 결과", sink.snaps[0].PageTitle)
	require.NotEmpty(t, sink.snaps[0].HTML)
}

func TestSearch_FetchErrorIsRecordedNotFatal(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{err: errors.New("connection reset")}
	r := New(naverTestSource(), fetcher, nil, nil, zap.NewNop())

	got, err := r.Search(context.Background(), "keyword", crawler.OperatorAnd, 5)
	require.Error(t, err)
	require.Empty(t, got)
}

func TestSearch_RobotsDenialAbortsBeforeFetch(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{body: []byte(searchFixture)}
	r := New(naverTestSource(), fetcher, &stubGate{allowed: false}, nil, zap.NewNop())

	got, err := r.Search(context.Background(), "keyword", crawler.OperatorAnd, 5)
	require.ErrorIs(t, err, crawler.ErrPolicyDenied)
	require.Empty(t, got)
	require.Empty(t, fetcher.urls, "denied search must not be fetched")
}

func TestSearch_WaitsOnGateBeforeFetching(t *testing.T) {
	t.Parallel()

	gate := &stubGate{allowed: true}
	fetcher := &stubFetcher{body: []byte(searchFixture)}
	r := New(naverTestSource(), fetcher, gate, nil, zap.NewNop())

	_, err := r.Search(context.Background(), "keyword", crawler.OperatorAnd, 2)
	require.NoError(t, err)
	require.Equal(t, 1, gate.waits)
}

func TestSearch_FeedDiscovery(t *testing.T) {
	t.Parallel()

	feed := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<item><title>하나</title><link>https://news.google.com/rss/articles/abc1</link></item>
<item><title>둘</title><link>https://news.google.com/rss/articles/abc2</link></item>
<item><title>셋</title><link>  </link></item>
</channel></rss>`
	src := Builtin()["google-news"]
	fetcher := &stubFetcher{body: []byte(feed)}
	r := New(src, fetcher, nil, nil, zap.NewNop())

	got, err := r.Search(context.Background(), "금리", crawler.OperatorAnd, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "google-news", got[0].Source)
	require.Contains(t, fetcher.urls[0], "news.google.com/rss/search")
}
