package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanlab/newscrawl/internal/crawler"
)

func TestSourceQueryOperators(t *testing.T) {
	t.Parallel()

	naver := Builtin()["naver"]
	require.Equal(t, "금리", naver.Query("금리", crawler.OperatorAnd))
	require.Equal(t, "금리 인상", naver.Query("금리 인상", crawler.OperatorAnd))
	require.Equal(t, "금리 | 인상", naver.Query("금리 인상", crawler.OperatorOr))

	google := Builtin()["google-news"]
	require.Equal(t, "rates OR hike", google.Query("rates hike", crawler.OperatorOr))
}

func TestSourceDiscoveryURLEscapesQuery(t *testing.T) {
	t.Parallel()

	naver := Builtin()["naver"]
	got := naver.DiscoveryURL("금리 인상", crawler.OperatorAnd)
	require.Contains(t, got, "search.naver.com")
	require.NotContains(t, got, " ")
	require.Contains(t, got, "query=")

	google := Builtin()["google-news"]
	require.Contains(t, google.DiscoveryURL("ai", crawler.OperatorAnd), "news.google.com/rss/search?q=ai")
}

func TestSourceAllows(t *testing.T) {
	t.Parallel()

	naver := Builtin()["naver"]
	require.True(t, naver.Allows("https://n.news.naver.com/mnews/article/001/123"))
	require.True(t, naver.Allows("https://news.naver.com/main/read?oid=1&aid=2"))
	require.False(t, naver.Allows("https://news.naver.com/"))
	require.False(t, naver.Allows("https://news.naver.com/section/101"))

	open := Source{Name: "open"}
	require.True(t, open.Allows("https://anything.example/at-all"))
}

func TestBuiltinChainsAreRankedSpecificFirst(t *testing.T) {
	t.Parallel()

	naver := Builtin()["naver"]
	require.NotEmpty(t, naver.LinkSelectors)
	require.Equal(t, "a.news_tit", naver.LinkSelectors[0])
	require.NotEmpty(t, naver.TitleSelectors)
	require.Equal(t, "h1", naver.TitleSelectors[len(naver.TitleSelectors)-1])
	require.NotEmpty(t, naver.BodySelectors)
}
