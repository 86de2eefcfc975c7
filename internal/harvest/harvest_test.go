package harvest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xharvest/internal/dom"
	"xharvest/internal/dom/static"
	"xharvest/internal/extract"
	"xharvest/internal/media"
	"xharvest/internal/progress"
)

func cardHTML(n int) string {
	return fmt.Sprintf(`
<article data-testid="tweet">
  <div data-testid="User-Name">
    <span>User %d</span>
    <span>@user%d</span>
    <a href="/user%d/status/%d"><time datetime="2024-05-01T10:00:00.000Z">May 1</time></a>
  </div>
  <div data-testid="tweetText"><span>post number %d</span></div>
</article>`, n, n, n, n, n)
}

func adCardHTML() string {
	return `
<article data-testid="tweet">
  <div data-testid="User-Name">
    <span>Promoted Inc</span>
    <span>@promoted</span>
  </div>
  <div data-testid="tweetText"><span>buy things</span></div>
</article>`
}

func feedHTML(parts ...string) string {
	return "<main>" + strings.Join(parts, "\n") + "</main>"
}

func newTestHarvester(t *testing.T, page dom.Page, cfg Config) *Harvester {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	x := extract.New(page, media.NewResolver(time.Second, log), log)
	reporter := progress.NewReporter(io.Discard, cfg.MaxPosts, cfg.NoLimit)
	h := New(page, x, reporter, cfg, log)
	h.sleep = func(time.Duration) {}
	return h
}

func TestRunStopsAtRequestedCount(t *testing.T) {
	page, err := static.ParseString(feedHTML(cardHTML(1), cardHTML(2), cardHTML(3)))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.MaxPosts = 2
	h := newTestHarvester(t, page, cfg)

	result, err := h.Run(context.Background(), Target{Kind: KindTimeline})
	require.NoError(t, err)

	assert.Equal(t, OutcomeComplete, result.Outcome)
	require.Len(t, result.Posts, 2)
	assert.Equal(t, "@user1", result.Posts[0].Handle)
	assert.Equal(t, "@user2", result.Posts[1].Handle)
	assert.Equal(t, "https://twitter.com/home", page.NavigatedURL)
}

func TestRunDeduplicatesAndExhausts(t *testing.T) {
	page, err := static.ParseString(feedHTML(cardHTML(1), cardHTML(2)))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.MaxPosts = 10
	h := newTestHarvester(t, page, cfg)

	result, err := h.Run(context.Background(), Target{Kind: KindTimeline})
	require.NoError(t, err)

	// The same two cards stay rendered forever: each must be recorded
	// once, then the run winds down as exhausted.
	assert.Equal(t, OutcomeExhausted, result.Outcome)
	assert.Len(t, result.Posts, 2)
}

func TestRunStopsAtBoundary(t *testing.T) {
	page, err := static.ParseString(feedHTML(
		cardHTML(1),
		`<div><span>Discover more</span></div>`,
		cardHTML(2),
	))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.MaxPosts = 10
	h := newTestHarvester(t, page, cfg)

	result, err := h.Run(context.Background(), Target{Kind: KindConversation, URL: "https://twitter.com/user1/status/1"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeBoundary, result.Outcome)
	require.Len(t, result.Posts, 1)
	assert.Equal(t, "@user1", result.Posts[0].Handle)
}

func TestRunFiltersAdsAndBrokenCards(t *testing.T) {
	page, err := static.ParseString(feedHTML(adCardHTML(), cardHTML(1)))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.MaxPosts = 1
	h := newTestHarvester(t, page, cfg)

	result, err := h.Run(context.Background(), Target{Kind: KindTimeline})
	require.NoError(t, err)

	assert.Equal(t, OutcomeComplete, result.Outcome)
	require.Len(t, result.Posts, 1)
	assert.Equal(t, "@user1", result.Posts[0].Handle)
}

func TestRunSkipsMalformedContentNode(t *testing.T) {
	malformed := `
<article data-testid="tweet">
  <div data-testid="User-Name">
    <span>Broken</span>
    <span>@broken</span>
    <time datetime="2024-05-01T10:00:00.000Z">May 1</time>
  </div>
  <div data-testid="tweetText"><div>container with no link</div></div>
</article>`
	page, err := static.ParseString(feedHTML(malformed, cardHTML(1)))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.MaxPosts = 1
	h := newTestHarvester(t, page, cfg)

	result, err := h.Run(context.Background(), Target{Kind: KindTimeline})
	require.NoError(t, err)

	assert.Equal(t, OutcomeComplete, result.Outcome)
	require.Len(t, result.Posts, 1)
	assert.Equal(t, "@user1", result.Posts[0].Handle)
}

func TestRunHonorsInterrupt(t *testing.T) {
	page, err := static.ParseString(feedHTML(cardHTML(1)))
	require.NoError(t, err)

	cfg := DefaultConfig()
	h := newTestHarvester(t, page, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.Run(ctx, Target{Kind: KindTimeline})
	require.NoError(t, err)

	assert.Equal(t, OutcomeInterrupted, result.Outcome)
	assert.Empty(t, result.Posts)
}

func TestRunInspectsOnlyTailWindow(t *testing.T) {
	page, err := static.ParseString(feedHTML(cardHTML(1), cardHTML(2), cardHTML(3)))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.MaxPosts = 10
	cfg.Window = 1
	h := newTestHarvester(t, page, cfg)

	result, err := h.Run(context.Background(), Target{Kind: KindTimeline})
	require.NoError(t, err)

	require.Len(t, result.Posts, 1)
	assert.Equal(t, "@user3", result.Posts[0].Handle)
}

func TestRunExpandsTruncatedPosts(t *testing.T) {
	page, err := static.ParseString(feedHTML(
		cardHTML(1),
		`<button data-testid="tweet-text-show-more-link"><span>Show more</span></button>`,
	))
	require.NoError(t, err)

	clicked := 0
	page.OnClick = func(el dom.Element) error {
		clicked++
		return nil
	}

	cfg := DefaultConfig()
	cfg.MaxPosts = 1
	h := newTestHarvester(t, page, cfg)

	_, err = h.Run(context.Background(), Target{Kind: KindTimeline})
	require.NoError(t, err)
	assert.Greater(t, clicked, 0)
}

func TestAwaitRetryClicksAndResetsOnRecovery(t *testing.T) {
	page, err := static.ParseString(feedHTML(
		`<button id="retry"><div><div><span>Retry</span></div></div></button>`,
	))
	require.NoError(t, err)

	clicks := 0
	page.OnClick = func(el dom.Element) error {
		clicks++
		// The click recovers the feed: the affordance disappears.
		return page.SetHTML(feedHTML(cardHTML(1)))
	}

	cfg := DefaultConfig()
	cfg.RetryWait = time.Millisecond
	h := newTestHarvester(t, page, cfg)

	s := newSession()
	h.awaitRetry(s)

	assert.Equal(t, 1, clicks)
	assert.Equal(t, 0, s.retries)
}

func TestAwaitRetryGivesUpAfterMaxAttempts(t *testing.T) {
	page, err := static.ParseString(feedHTML(
		`<button><div><div><span>Retry</span></div></div></button>`,
	))
	require.NoError(t, err)

	clicks := 0
	page.OnClick = func(el dom.Element) error {
		clicks++
		return nil
	}

	cfg := DefaultConfig()
	cfg.RetryWait = time.Millisecond
	cfg.MaxRetries = 4
	h := newTestHarvester(t, page, cfg)

	s := newSession()
	h.awaitRetry(s)

	assert.Equal(t, 4, clicks)
	assert.Equal(t, 4, s.retries)
}

func TestDismissCookieBanner(t *testing.T) {
	page, err := static.ParseString(feedHTML(
		`<div role="dialog"><button><div><span>Refuse non-essential cookies</span></div></button></div>`,
	))
	require.NoError(t, err)

	clicked := false
	page.OnClick = func(el dom.Element) error {
		clicked = true
		return nil
	}

	cfg := DefaultConfig()
	h := newTestHarvester(t, page, cfg)
	h.dismissCookieBanner()

	assert.True(t, clicked)
}

// interruptingPage mimics a live browser whose page ops run on the
// interrupt context: a cancel mid-iteration fails the in-flight op
// instead of waiting for the loop's boundary check.
type interruptingPage struct {
	*static.Page
	cancel context.CancelFunc
}

func (p *interruptingPage) FindAll(selector string) ([]dom.Element, error) {
	if selector == CardSelector {
		p.cancel()
		return nil, fmt.Errorf("querying %q: %w", selector, context.Canceled)
	}
	return p.Page.FindAll(selector)
}

func TestRunClassifiesMidIterationCancelAsInterrupted(t *testing.T) {
	page, err := static.ParseString(feedHTML(cardHTML(1)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newTestHarvester(t, &interruptingPage{Page: page, cancel: cancel}, DefaultConfig())

	result, err := h.Run(ctx, Target{Kind: KindTimeline})
	require.NoError(t, err)

	assert.Equal(t, OutcomeInterrupted, result.Outcome)
	assert.Empty(t, result.Posts)
}

func TestRunExhaustsAfterEmptyAndRefreshBudget(t *testing.T) {
	page, err := static.ParseString(feedHTML(cardHTML(1), cardHTML(2)))
	require.NoError(t, err)

	// The height grows on every scroll so the stall detector never
	// fires; only the empty-run and refresh budgets can end the run.
	scrolls := 0
	page.OnScroll = func(p *static.Page) error {
		scrolls++
		p.SetScrollHeight(float64(scrolls + 1))
		return nil
	}

	cfg := DefaultConfig()
	cfg.MaxPosts = 10
	cfg.MaxEmptyRuns = 2
	cfg.MaxRefreshes = 1
	h := newTestHarvester(t, page, cfg)

	result, err := h.Run(context.Background(), Target{Kind: KindTimeline})
	require.NoError(t, err)

	assert.Equal(t, OutcomeExhausted, result.Outcome)
	assert.Len(t, result.Posts, 2)
	// One productive scroll, then MaxEmptyRuns empty iterations, then
	// MaxRefreshes refresh escalations before the run winds down.
	assert.Equal(t, 4, scrolls)
}
