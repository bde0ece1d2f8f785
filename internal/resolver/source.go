package resolver

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hanlab/newscrawl/internal/crawler"
)

// Source is the declarative configuration for one news source: where to
// search, which selectors to try (most-specific first), and which URL shapes
// actually carry an article body. Selector chains are data so that one
// generic try-in-order algorithm serves every source.
type Source struct {
	Name string

	// SearchURLTemplate receives the escaped query via %s. Empty when the
	// source is discovered through a feed instead.
	SearchURLTemplate string
	// FeedURLTemplate receives the escaped query via %s and points at an
	// RSS search feed.
	FeedURLTemplate string

	// OrToken joins terms when the request operator is OR. AND joins with
	// spaces, which every supported engine treats as conjunction.
	OrToken string

	// LinkSelectors is the ranked fallback chain for search-result links.
	LinkSelectors []string

	// AllowPatterns are substrings a canonical URL must contain to count
	// as an article page; they exclude listing, home and promo pages that
	// share the domain.
	AllowPatterns []string

	// TitleSelectors and BodySelectors are the extraction fallback chains,
	// consumed by the article extractor.
	TitleSelectors []string
	BodySelectors  []string
}

// Query assembles the search query for a keyword under the given operator.
func (s Source) Query(keyword string, op crawler.TermOperator) string {
	terms := strings.Fields(keyword)
	if len(terms) <= 1 {
		return keyword
	}
	if op == crawler.OperatorOr && s.OrToken != "" {
		return strings.Join(terms, " "+s.OrToken+" ")
	}
	return strings.Join(terms, " ")
}

// DiscoveryURL renders the search-page or feed URL for a keyword.
func (s Source) DiscoveryURL(keyword string, op crawler.TermOperator) string {
	escaped := url.QueryEscape(s.Query(keyword, op))
	if s.FeedURLTemplate != "" {
		return fmt.Sprintf(s.FeedURLTemplate, escaped)
	}
	return fmt.Sprintf(s.SearchURLTemplate, escaped)
}

// UsesFeed reports whether discovery goes through an RSS feed.
func (s Source) UsesFeed() bool { return s.FeedURLTemplate != "" }

// Allows reports whether a canonical URL matches the article allow-list.
// A source without patterns allows everything.
func (s Source) Allows(canonicalURL string) bool {
	if len(s.AllowPatterns) == 0 {
		return true
	}
	for _, pattern := range s.AllowPatterns {
		if strings.Contains(canonicalURL, pattern) {
			return true
		}
	}
	return false
}

// Builtin returns the shipped source registry. Selector chains reflect the
// markup observed on each source as of late 2024 and are ordered
// most-specific to most-generic; drift shows up as diagnostics snapshots.
func Builtin() map[string]Source {
	return map[string]Source{
		"naver": {
			Name:              "naver",
			SearchURLTemplate: "https://search.naver.com/search.naver?where=news&query=%s&sort=1",
			OrToken:           "|",
			LinkSelectors: []string{
				"a.news_tit",
				"div.news_area a.news_tit",
				".news_contents a.news_tit",
				".list_news a.news_tit",
				".news_tit",
				"a[href*='n.news.naver.com']",
				"a[href*='news.naver.com']",
			},
			AllowPatterns: []string{
				"/mnews/article/",
				"/main/read",
				"/article/",
			},
			TitleSelectors: []string{
				"h2.media_end_head_headline",
				"#title_area span",
				".media_end_head_headline",
				"h3.tit_view",
				".article_header h2",
				"#articleTitle",
				"h1",
			},
			BodySelectors: []string{
				"#dic_area",
				"#newsct_article",
				".news_end_body_container",
				"#articeBody",
				".article_body",
				".article_view",
				"article",
				"#articleBody",
				".news_end_body",
			},
		},
		"google-news": {
			Name:            "google-news",
			FeedURLTemplate: "https://news.google.com/rss/search?q=%s&hl=ko&gl=KR&ceid=KR:ko",
			OrToken:         "OR",
			AllowPatterns: []string{
				"news.google.com",
			},
			TitleSelectors: []string{
				"h1",
				"h2.headline",
				".article-title",
				".post-title",
				"article h1",
				".entry-title",
				"#article-title",
				".title",
			},
			BodySelectors: []string{
				"article",
				".article-body",
				".article-content",
				".post-content",
				".entry-content",
				"#article-body",
				".story-body",
				"main",
				".content",
				"#content",
				"[itemprop='articleBody']",
			},
		},
	}
}
