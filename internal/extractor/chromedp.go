package extractor

import (
	"context"
	"fmt"
	"strconv"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// browserRuntime owns the shared headless Chrome process. Each extraction
// opens its own tab off the browser context, so a crashed page never takes
// the pool down.
type browserRuntime struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	userAgent       string
}

func newBrowserRuntime(userAgent string) (*browserRuntime, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("mute-audio", true),
		chromedp.UserAgent(userAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &browserRuntime{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		userAgent:       userAgent,
	}, nil
}

func (b *browserRuntime) close() {
	b.browserCancel()
	b.allocatorCancel()
}

// openSession opens a fresh tab for one URL. The release func closes the
// tab; callers invoke it on every exit path, cancellation included.
func (b *browserRuntime) openSession(ctx context.Context, rawURL string) (pageSession, func(), error) {
	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	stopForward := forwardCancel(ctx, cancelTab)
	release := func() {
		stopForward()
		cancelTab()
	}
	return &chromedpSession{tabCtx: tabCtx, rawURL: rawURL, userAgent: b.userAgent}, release, nil
}

// forwardCancel propagates the caller's cancellation into the tab context,
// which hangs off the long-lived browser context rather than the request.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

type chromedpSession struct {
	tabCtx    context.Context
	rawURL    string
	userAgent string
}

// Navigate loads the page and waits for the document body, an explicit
// readiness condition rather than a fixed sleep.
func (s *chromedpSession) Navigate(ctx context.Context) error {
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(s.userAgent),
		chromedp.Navigate(s.rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if err := s.run(ctx, tasks); err != nil {
		return fmt.Errorf("chromedp navigate: %w", err)
	}
	return nil
}

// Text returns the first matched element's text. chromedp waits for the
// node, so the caller's per-selector timeout is what makes a miss fail fast.
func (s *chromedpSession) Text(ctx context.Context, selector string) (string, error) {
	var out string
	if err := s.run(ctx, chromedp.Text(selector, &out, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("text %q: %w", selector, err)
	}
	return out, nil
}

// TextAll concatenates the text of every element the selector matches.
func (s *chromedpSession) TextAll(ctx context.Context, selector string) (string, error) {
	script := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%s)).map(el => el.innerText).join("\n")`,
		strconv.Quote(selector),
	)
	var out string
	if err := s.run(ctx, chromedp.Evaluate(script, &out)); err != nil {
		return "", fmt.Errorf("text all %q: %w", selector, err)
	}
	return out, nil
}

func (s *chromedpSession) PageTitle(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("page title: %w", err)
	}
	return title, nil
}

// FinalURL reports the post-redirect location, which is what gets recorded
// for aggregator sources that hand out redirecting links.
func (s *chromedpSession) FinalURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("location: %w", err)
	}
	return loc, nil
}

func (s *chromedpSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("outer html: %w", err)
	}
	return html, nil
}

func (s *chromedpSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	capture := chromedp.ActionFunc(func(actionCtx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().Do(actionCtx)
		return err
	})
	if err := s.run(ctx, capture); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// run executes tasks in the tab while honoring the bounded ctx the caller
// supplies; the tab context itself has no deadline.
func (s *chromedpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := mergeContext(s.tabCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// mergeContext returns the tab context bounded by the caller context's
// cancellation and deadline.
func mergeContext(tabCtx, bound context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := bound.Deadline(); ok {
		ctx, cancel := context.WithDeadline(tabCtx, deadline)
		stop := forwardCancel(bound, cancel)
		return ctx, func() { stop(); cancel() }
	}
	ctx, cancel := context.WithCancel(tabCtx)
	stop := forwardCancel(bound, cancel)
	return ctx, func() { stop(); cancel() }
}
