package extractor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hanlab/newscrawl/internal/crawler"
)

// Exercises the real chromedp session against a local server. Skipped when
// no Chrome binary is available in the environment.
func TestExtractWithRealBrowser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<!doctype html><html><head><title>기사 - 테스트신문</title></head><body>
<h2 class="media_end_head_headline">통화정책 결정문 전문 공개</h2>
<div id="dic_area">`+strings.Repeat("중앙은행이 기준금리를 동결했다. ", 10)+`</div>
<script>document.body.appendChild(document.createElement("footer"));</script>
</body></html>`)
	}))
	defer srv.Close()

	e, err := New(Config{
		MaxConcurrency:   1,
		NavTimeout:       10 * time.Second,
		SelectorTimeout:  2 * time.Second,
		QualityThreshold: 50,
	}, map[string]Profile{"naver": {
		TitleSelectors: []string{"h2.media_end_head_headline"},
		BodySelectors:  []string{"#dic_area"},
	}}, nil, nil, nil, zap.NewNop())
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	defer e.Close()

	got := e.Extract(context.Background(), crawler.CandidateURL{
		Source:       "naver",
		RawURL:       srv.URL,
		CanonicalURL: srv.URL,
	})
	if got.Status != crawler.StatusSuccess {
		t.Skipf("render failed: %s (%s)", got.Status, got.ErrorText)
	}
	if got.Title != "통화정책 결정문 전문 공개" {
		t.Fatalf("unexpected title %q", got.Title)
	}
	if !strings.Contains(got.Body, "기준금리를 동결했다") {
		t.Fatal("rendered body missing article text")
	}
	if got.ContentLength < 50 {
		t.Fatalf("body below quality threshold: %d", got.ContentLength)
	}
}
