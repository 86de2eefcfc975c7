// Package harvest runs the scroll-and-extract loop against one feed
// target: query rendered cards, expand truncated text, extract new
// records, deduplicate, and decide when to stop.
package harvest

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"xharvest/internal/dom"
	"xharvest/internal/extract"
	"xharvest/internal/progress"
	"xharvest/internal/scroll"
	"xharvest/internal/types"
)

// Page-level selectors and labels.
const (
	CardSelector   = `article[data-testid="tweet"]:not([disabled])`
	ShowMoreButton = `button[data-testid="tweet-text-show-more-link"]`

	BoundaryLabel    = "Discover more"
	RetryLabel       = "Retry"
	CookieBannerText = "Refuse non-essential cookies"
)

// Outcome classifies how a harvest ended. Every outcome except
// OutcomeAborted still carries whatever records were accumulated.
type Outcome string

const (
	// OutcomeComplete means the requested count was reached.
	OutcomeComplete Outcome = "complete"
	// OutcomeExhausted means the feed stopped yielding new cards
	// after bounded empty-iteration and refresh escalation.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeBoundary means the boundary marker was reached
	// (end of on-topic thread content).
	OutcomeBoundary Outcome = "boundary"
	// OutcomeInterrupted means the user interrupt fired.
	OutcomeInterrupted Outcome = "interrupted"
	// OutcomeAborted means an unrecoverable iteration error ended the
	// loop early with partial results.
	OutcomeAborted Outcome = "aborted"
)

// Config bounds the loop. Defaults mirror the platform's observed
// behavior and are deliberately conservative.
type Config struct {
	MaxPosts int
	NoLimit  bool

	// Window is the number of tail cards inspected per iteration;
	// new cards append at the end of the DOM, so only the tail can
	// contain anything unseen.
	Window int

	RetryWait    time.Duration // wait before clicking a rate-limit Retry
	MaxRetries   int           // bounded Retry attempts
	MaxEmptyRuns int           // consecutive empty iterations before escalation
	MaxRefreshes int           // escalations before declaring exhaustion
	SettleDelay  time.Duration // post-navigation settle
}

// DefaultConfig returns the loop bounds used when nothing overrides
// them.
func DefaultConfig() Config {
	return Config{
		MaxPosts:     50,
		Window:       15,
		RetryWait:    10 * time.Minute,
		MaxRetries:   15,
		MaxEmptyRuns: 5,
		MaxRefreshes: 3,
		SettleDelay:  3 * time.Second,
	}
}

// Result is one finished harvest.
type Result struct {
	Posts   []types.Post
	Outcome Outcome
	Target  Target
}

// Complete reports whether the harvest ended in a successful terminal
// state (anything but an abort).
func (r *Result) Complete() bool { return r.Outcome != OutcomeAborted }

// Harvester drives the loop. All collaborators are injected so the
// loop runs unchanged against a live page or a scripted fake.
type Harvester struct {
	page      dom.Page
	extractor *extract.Extractor
	reporter  *progress.Reporter
	log       *slog.Logger
	cfg       Config

	sleep func(time.Duration)
}

// New creates a Harvester.
func New(page dom.Page, x *extract.Extractor, reporter *progress.Reporter, cfg Config, log *slog.Logger) *Harvester {
	if log == nil {
		log = slog.Default()
	}
	return &Harvester{
		page:      page,
		extractor: x,
		reporter:  reporter,
		log:       log.With("component", "harvest"),
		cfg:       cfg,
		sleep:     time.Sleep,
	}
}

// session is the mutable state of one harvest run. Keeping the
// counters here, not as loop locals, makes each state transition
// inspectable.
type session struct {
	posts []types.Post
	seen  map[string]struct{}

	added       int // records appended this iteration
	emptyRuns   int
	refreshes   int
	retries     int
	boundaryHit bool
	exhausted   bool
}

func newSession() *session {
	return &session{seen: make(map[string]struct{})}
}

func (s *session) reached(cfg Config) bool {
	return !cfg.NoLimit && len(s.posts) >= cfg.MaxPosts
}

// Run navigates to the target and harvests until a terminal
// condition. The context is checked only at iteration boundaries:
// an in-flight extraction finishes, the next iteration does not
// begin.
func (h *Harvester) Run(ctx context.Context, target Target) (*Result, error) {
	feedURL, err := target.FeedURL()
	if err != nil {
		return nil, err
	}

	h.log.Info("scraping posts", "target", target.String(), "url", feedURL)
	if err := h.page.Navigate(feedURL); err != nil {
		return nil, err
	}
	h.sleep(h.cfg.SettleDelay)

	h.dismissCookieBanner()
	h.reporter.Report(0, false, 0)

	sc := scroll.New(h.page)
	s := newSession()
	result := &Result{Target: target}

	for sc.Scrolling {
		select {
		case <-ctx.Done():
			h.reporter.Done()
			h.log.Info("harvest interrupted", "posts", len(s.posts))
			result.Posts = s.posts
			result.Outcome = OutcomeInterrupted
			return result, nil
		default:
		}

		if err := h.iterate(s, sc); err != nil {
			if errors.Is(err, dom.ErrStale) {
				// The page re-rendered mid-read; retry the whole
				// iteration after a pause.
				h.sleep(2 * time.Second)
				continue
			}
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				// Page ops run on the interrupt context, so a Ctrl-C
				// mid-iteration surfaces as a failed op rather than
				// at the boundary check.
				h.reporter.Done()
				h.log.Info("harvest interrupted", "posts", len(s.posts))
				result.Posts = s.posts
				result.Outcome = OutcomeInterrupted
				return result, nil
			}
			h.reporter.Done()
			h.log.Error("error scraping posts", "error", err, "posts", len(s.posts))
			result.Posts = s.posts
			result.Outcome = OutcomeAborted
			return result, nil
		}

		if s.boundaryHit {
			break
		}
	}

	h.reporter.Done()
	result.Posts = s.posts
	switch {
	case s.boundaryHit:
		result.Outcome = OutcomeBoundary
	case s.reached(h.cfg):
		result.Outcome = OutcomeComplete
	default:
		result.Outcome = OutcomeExhausted
	}
	h.log.Info("harvest finished", "outcome", string(result.Outcome), "posts", len(s.posts))
	return result, nil
}

// iterate runs one pass over the currently rendered tail of the feed.
func (h *Harvester) iterate(s *session, sc *scroll.Controller) error {
	boundaryY := h.boundaryPosition()

	h.expandTruncated()

	cards, err := h.page.FindAll(CardSelector)
	if err != nil {
		return err
	}
	if n := len(cards); h.cfg.Window > 0 && n > h.cfg.Window {
		cards = cards[n-h.cfg.Window:]
	}

	s.added = 0
	for _, card := range cards {
		y, err := card.Y()
		if err != nil {
			if errors.Is(err, dom.ErrStale) {
				return err
			}
			continue
		}
		if y >= boundaryY {
			s.boundaryHit = true
			break
		}

		id := card.ID()
		if _, ok := s.seen[id]; ok {
			continue
		}
		s.seen[id] = struct{}{}

		if !h.extractor.Details {
			// Hover-based detail scraping needs the pointer where it
			// is; otherwise bring the card into view for lazy media.
			_ = card.ScrollIntoView()
		}

		post, err := h.extractor.Extract(card)
		if err != nil {
			if errors.Is(err, dom.ErrStale) {
				return err
			}
			var unrec *extract.UnrecognizedNodeError
			if errors.As(err, &unrec) {
				h.log.Warn("skipping card with unrecognized content node", "error", unrec)
				continue
			}
			h.log.Warn("skipping card", "error", err)
			continue
		}
		if post.Error || post.IsAd {
			continue
		}

		s.posts = append(s.posts, *post)
		s.added++
		h.reporter.Report(len(s.posts), false, 0)

		if s.reached(h.cfg) {
			sc.Scrolling = false
			break
		}
	}

	if s.boundaryHit || !sc.Scrolling {
		return nil
	}

	if s.added == 0 {
		h.awaitRetry(s)

		if s.emptyRuns >= h.cfg.MaxEmptyRuns {
			if s.refreshes >= h.cfg.MaxRefreshes {
				h.log.Info("no more posts to scrape")
				s.exhausted = true
				sc.Scrolling = false
				return nil
			}
			s.refreshes++
		}
		s.emptyRuns++
		h.sleep(time.Second)
	} else {
		s.emptyRuns = 0
		s.refreshes = 0
	}

	return sc.ScrollPage()
}

// boundaryPosition locates the end-of-content divider; an absent
// marker means no boundary (+Inf).
func (h *Harvester) boundaryPosition() float64 {
	el, err := dom.FindByTextOnPage(h.page, "span", BoundaryLabel)
	if err != nil {
		return math.Inf(1)
	}
	y, err := el.Y()
	if err != nil {
		return math.Inf(1)
	}
	return y
}

// expandTruncated clicks every visible "show more" affordance. Each
// expansion is independent; a failed click is skipped.
func (h *Harvester) expandTruncated() {
	buttons, err := h.page.FindAll(ShowMoreButton)
	if err != nil {
		return
	}
	for _, b := range buttons {
		if err := b.ScrollIntoView(); err != nil {
			continue
		}
		h.sleep(500 * time.Millisecond)
		if err := b.Click(); err != nil {
			continue
		}
		h.sleep(time.Second)
	}
}

// awaitRetry handles the rate-limit "Retry" affordance: wait a long
// fixed interval, click, repeat up to the bounded attempt count. The
// affordance disappearing means recovery; the counter resets.
func (h *Harvester) awaitRetry(s *session) {
	for s.retries < h.cfg.MaxRetries {
		span, err := dom.FindByTextOnPage(h.page, "span", RetryLabel)
		if err != nil {
			s.retries = 0
			h.reporter.Report(len(s.posts), false, 0)
			return
		}
		h.reporter.Report(len(s.posts), true, s.retries)
		h.sleep(h.cfg.RetryWait)
		_ = clickAncestor(span, 3)
		s.retries++
		h.sleep(2 * time.Second)
	}
}

// dismissCookieBanner accepts the consent banner if present so it
// stops covering the feed. Non-fatal either way.
func (h *Harvester) dismissCookieBanner() {
	span, err := dom.FindByTextOnPage(h.page, "span", CookieBannerText)
	if err != nil {
		return
	}
	if err := clickAncestor(span, 3); err != nil {
		h.log.Debug("could not dismiss cookie banner", "error", err)
	}
}

// clickAncestor clicks the element `levels` parents above el; the
// clickable control wraps the label span a few levels up.
func clickAncestor(el dom.Element, levels int) error {
	cur := el
	for i := 0; i < levels; i++ {
		parent, err := cur.Parent()
		if err != nil {
			break
		}
		cur = parent
	}
	return cur.Click()
}
