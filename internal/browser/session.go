package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// Session owns one browser process and tab.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// NewSession starts the browser. Startup failure is fatal to the
// caller; there is nothing to harvest without a driver.
func NewSession(parent context.Context, opts Options) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, AllocatorOptions(opts)...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	// Force the browser process up now so a missing binary surfaces
	// here, not on first navigation.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &Session{ctx: ctx, cancel: cancel, allocCancel: allocCancel}, nil
}

// Context returns the browser context for chromedp actions.
func (s *Session) Context() context.Context { return s.ctx }

// Page returns the capability-interface view of the session's tab.
func (s *Session) Page() *Page { return &Page{ctx: s.ctx} }

// Close shuts the browser down.
func (s *Session) Close() {
	s.cancel()
	s.allocCancel()
}

// InjectCookies sets stored cookies before navigation so the session
// is authenticated from the first request.
func (s *Session) InjectCookies(cookies []*network.Cookie) error {
	return chromedp.Run(s.ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range cookies {
				err := network.SetCookie(c.Name, c.Value).
					WithDomain(c.Domain).
					WithPath(c.Path).
					WithSecure(c.Secure).
					WithHTTPOnly(c.HTTPOnly).
					WithSameSite(c.SameSite).
					Do(ctx)
				if err != nil {
					return err
				}
			}
			return nil
		}),
	)
}

// Cookies reads all cookies from the browser.
func (s *Session) Cookies() ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(s.ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)
	return cookies, err
}
