// Package media resolves platform short links and normalizes media
// URLs found on cards.
package media

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ShortLinkPrefix is the platform's URL shortener. Only links under
// this prefix are resolved; everything else passes through untouched.
const ShortLinkPrefix = "https://t.co/"

// Resolver follows short-link redirects to their final destination.
type Resolver struct {
	client *http.Client
	prefix string
	log    *slog.Logger
}

// NewResolver creates a Resolver with the given request timeout.
func NewResolver(timeout time.Duration, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		client: &http.Client{Timeout: timeout},
		prefix: ShortLinkPrefix,
		log:    log.With("component", "media"),
	}
}

// Resolve returns the final destination of a short link. Non-short
// URLs are returned unchanged without issuing a request. Resolution
// failure is never fatal: the original URL is returned and a warning
// logged.
func (r *Resolver) Resolve(url string) string {
	if !strings.HasPrefix(url, r.prefix) {
		return url
	}

	resp, err := r.client.Head(url)
	if err != nil {
		r.log.Warn("could not resolve short url", "url", url, "error", err)
		return url
	}
	defer resp.Body.Close()

	return resp.Request.URL.String()
}

// UpgradeImageURL rewrites a thumbnail-quality image URL to its large
// variant.
func UpgradeImageURL(src string) string {
	return strings.Replace(src, "name=small", "name=large", 1)
}
