package aggregator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanlab/newscrawl/internal/crawler"
)

func TestDedupeCandidatesKeepsFirstOccurrence(t *testing.T) {
	t.Parallel()

	in := []crawler.CandidateURL{
		{Source: "naver", CanonicalURL: "https://example.com/a", Rank: 0},
		{Source: "naver", CanonicalURL: "https://example.com/b", Rank: 1},
		{Source: "google-news", CanonicalURL: "https://example.com/a", Rank: 0},
		{Source: "google-news", CanonicalURL: "https://example.com/c", Rank: 1},
	}

	got := DedupeCandidates(in)

	require.Len(t, got, 3)
	require.Equal(t, "naver", got[0].Source, "first source to surface a URL keeps it")
	require.Equal(t, "https://example.com/b", got[1].CanonicalURL)
	require.Equal(t, "https://example.com/c", got[2].CanonicalURL)
}

func TestAggregateKeepsLowestRankPerURL(t *testing.T) {
	t.Parallel()

	in := []crawler.ExtractionResult{
		{Source: "naver", CanonicalURL: "https://example.com/a", Rank: 3, Title: "late"},
		{Source: "naver", CanonicalURL: "https://example.com/a", Rank: 1, Title: "early"},
		{Source: "naver", CanonicalURL: "https://example.com/b", Rank: 2},
	}

	got := Aggregate(in)

	require.Len(t, got, 2)
	require.Equal(t, "early", got[0].Title)
	require.Equal(t, 1, got[0].Rank)
	require.Equal(t, "https://example.com/b", got[1].CanonicalURL)
}

func TestAggregateIsIdempotent(t *testing.T) {
	t.Parallel()

	in := []crawler.ExtractionResult{
		{Source: "naver", CanonicalURL: "https://example.com/b", Rank: 2},
		{Source: "google-news", CanonicalURL: "https://example.com/a", Rank: 0},
		{Source: "naver", CanonicalURL: "https://example.com/b", Rank: 0},
	}

	once := Aggregate(in)
	twice := Aggregate(once)

	require.Equal(t, once, twice)
}

func TestAggregateOrdersBySourceThenRank(t *testing.T) {
	t.Parallel()

	in := []crawler.ExtractionResult{
		{Source: "naver", CanonicalURL: "https://example.com/n2", Rank: 2},
		{Source: "google-news", CanonicalURL: "https://example.com/g1", Rank: 1},
		{Source: "naver", CanonicalURL: "https://example.com/n0", Rank: 0},
		{Source: "google-news", CanonicalURL: "https://example.com/g0", Rank: 0},
	}

	got := Aggregate(in)

	require.Equal(t, []string{
		"https://example.com/g0",
		"https://example.com/g1",
		"https://example.com/n0",
		"https://example.com/n2",
	}, []string{got[0].CanonicalURL, got[1].CanonicalURL, got[2].CanonicalURL, got[3].CanonicalURL})
}

func TestAggregateEmptyInput(t *testing.T) {
	t.Parallel()

	require.Empty(t, Aggregate(nil))
	require.Empty(t, DedupeCandidates(nil))
}
