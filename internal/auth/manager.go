package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"xharvest/internal/browser"
)

const loginURL = "https://twitter.com/i/flow/login"

// Login form selectors.
const (
	usernameInput        = `input[autocomplete="username"]`
	unusualActivityInput = `input[data-testid="ocfEnterTextTextInput"]`
	passwordInput        = `input[autocomplete="current-password"]`
)

const (
	inputAttempts = 3
	inputTimeout  = 5 * time.Second
	settleDelay   = 3 * time.Second
)

// Credentials are the login inputs.
type Credentials struct {
	Username string
	Password string
}

// Manager authenticates a browser session, preferring stored cookies
// and falling back to the credential flow.
type Manager struct {
	store *CookieStore
	log   *slog.Logger
}

// NewManager creates a new auth manager
func NewManager(store *CookieStore, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: store, log: log.With("component", "auth")}
}

// Authenticate makes the session logged in: inject valid stored
// cookies when available, otherwise run the credential flow and
// persist the resulting cookies.
func (m *Manager) Authenticate(s *browser.Session, creds Credentials) error {
	if m.store.IsValid() {
		cookies, err := m.store.SiteCookies()
		if err == nil {
			m.log.Info("using stored session cookies")
			return s.InjectCookies(cookies)
		}
		m.log.Warn("failed to load stored cookies, logging in", "error", err)
	}

	if err := m.login(s, creds); err != nil {
		return err
	}

	cookies, err := s.Cookies()
	if err != nil {
		return fmt.Errorf("failed to read cookies after login: %w", err)
	}
	if err := m.store.Save(cookies); err != nil {
		m.log.Warn("failed to persist cookies", "error", err)
	}
	return nil
}

// login drives the credential form: username, the occasional
// unusual-activity challenge, then password. Each input is attempted
// a bounded number of times, mirroring how slowly the form can render.
func (m *Manager) login(s *browser.Session, creds Credentials) error {
	m.log.Info("logging in")
	ctx := s.Context()

	if err := chromedp.Run(ctx, chromedp.Navigate(loginURL)); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}
	time.Sleep(settleDelay)

	if err := m.fill(ctx, usernameInput, creds.Username, true); err != nil {
		return fmt.Errorf("failed to input username: %w", err)
	}

	// The unusual-activity challenge asks for the username again; it
	// only appears sometimes, so its absence is fine.
	if err := m.fill(ctx, unusualActivityInput, creds.Username, false); err != nil {
		return err
	}

	if err := m.fill(ctx, passwordInput, creds.Password, true); err != nil {
		return fmt.Errorf("failed to input password: %w", err)
	}

	cookies, err := s.Cookies()
	if err != nil {
		return err
	}
	for _, c := range cookies {
		if c.Name == "auth_token" && c.Value != "" {
			m.log.Info("login successful")
			return nil
		}
	}
	return errors.New("login failed: no auth token issued; " +
		"check credentials and network stability")
}

// fill types text into the first match of selector and submits it.
// When required is false, a field that never appears is skipped.
func (m *Manager) fill(parent context.Context, selector, text string, required bool) error {
	var lastErr error
	for attempt := 0; attempt < inputAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(parent, inputTimeout)
		err := chromedp.Run(ctx,
			chromedp.WaitVisible(selector, chromedp.ByQuery),
			chromedp.SendKeys(selector, text+kb.Enter, chromedp.ByQuery),
		)
		cancel()
		if err == nil {
			time.Sleep(settleDelay)
			return nil
		}
		lastErr = err
		m.log.Debug("retrying form input", "selector", selector, "attempt", attempt+1)
		time.Sleep(2 * time.Second)
	}
	if !required {
		return nil
	}
	return lastErr
}

// Logout clears stored credentials
func (m *Manager) Logout() error {
	return m.store.Clear()
}
