package auth_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xharvest/internal/auth"
)

func sessionCookies(expires time.Time) []*network.Cookie {
	exp := float64(expires.Unix())
	cookies := []*network.Cookie{
		{Name: "auth_token", Value: "tok", Domain: ".twitter.com", Expires: exp},
		{Name: "ct0", Value: "csrf", Domain: ".x.com", Expires: exp},
		{Name: "tracking", Value: "x", Domain: ".ads.example.com", Expires: exp},
	}
	// cdproto's enum types reject the empty string on unmarshal, so the
	// fixtures must carry the enum fields a real browser cookie always has.
	for _, c := range cookies {
		c.Priority = network.CookiePriorityMedium
		c.SameSite = network.CookieSameSiteLax
		c.SourceScheme = network.CookieSourceSchemeSecure
	}
	return cookies
}

func newStore(t *testing.T) *auth.CookieStore {
	t.Helper()
	return auth.NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))
}

func TestSaveAndLoadCookies(t *testing.T) {
	cs := newStore(t)
	require.NoError(t, cs.Save(sessionCookies(time.Now().Add(24*time.Hour))))

	stored, err := cs.Load()
	require.NoError(t, err)
	assert.Len(t, stored.Cookies, 3)
	assert.False(t, stored.CapturedAt.IsZero())
	assert.False(t, stored.ExpiresAt.IsZero())
}

func TestIsValid(t *testing.T) {
	cs := newStore(t)
	assert.False(t, cs.IsValid())

	require.NoError(t, cs.Save(sessionCookies(time.Now().Add(24*time.Hour))))
	assert.True(t, cs.IsValid())
}

func TestIsValidExpiredCookies(t *testing.T) {
	cs := newStore(t)
	require.NoError(t, cs.Save(sessionCookies(time.Now().Add(-time.Hour))))
	assert.False(t, cs.IsValid())
}

func TestIsValidRequiresAuthCookies(t *testing.T) {
	cs := newStore(t)
	exp := float64(time.Now().Add(24 * time.Hour).Unix())
	require.NoError(t, cs.Save([]*network.Cookie{
		{Name: "tracking", Value: "x", Domain: ".twitter.com", Expires: exp,
			Priority: network.CookiePriorityMedium, SameSite: network.CookieSameSiteLax,
			SourceScheme: network.CookieSourceSchemeSecure},
	}))
	assert.False(t, cs.IsValid())
}

func TestSiteCookiesFiltersForeignDomains(t *testing.T) {
	cs := newStore(t)
	require.NoError(t, cs.Save(sessionCookies(time.Now().Add(24*time.Hour))))

	site, err := cs.SiteCookies()
	require.NoError(t, err)
	require.Len(t, site, 2)
	for _, c := range site {
		assert.NotEqual(t, ".ads.example.com", c.Domain)
	}
}

func TestClear(t *testing.T) {
	cs := newStore(t)
	require.NoError(t, cs.Save(sessionCookies(time.Now().Add(24*time.Hour))))
	require.NoError(t, cs.Clear())
	assert.False(t, cs.IsValid())
}
