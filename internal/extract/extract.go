// Package extract parses one rendered post card into a types.Post.
// It operates purely on the dom capability interface, so it runs the
// same against a live browser and a parsed HTML file.
package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"xharvest/internal/dom"
	"xharvest/internal/media"
	"xharvest/internal/types"
)

// maxQuoteDepth bounds quoted-post recursion: a quoted post never
// contains another quoted post.
const maxQuoteDepth = 1

const (
	hoverAttempts = 3
	hoverBackoff  = 500 * time.Millisecond
)

var permalinkRe = regexp.MustCompile(`.*/status/(\d+)`)

// UnrecognizedNodeError reports a content-block child the extractor
// has no rule for. It signals a rendering change on the site, not
// missing data, and must surface rather than be swallowed per field.
type UnrecognizedNodeError struct {
	Tag string
}

func (e *UnrecognizedNodeError) Error() string {
	return fmt.Sprintf("unrecognized content node <%s> with no embedded link", e.Tag)
}

// errHoverStale marks a staleness detected inside the hover sub-loop,
// fatal to the current card only.
var errHoverStale = errors.New("hover card went stale")

// Extractor builds Post records from card elements.
type Extractor struct {
	page     dom.Page
	resolver *media.Resolver
	log      *slog.Logger

	// Details enables the extended author-stats hover interaction,
	// one extra UI round trip per card.
	Details bool

	sleep func(time.Duration)
}

// New creates an Extractor. page is needed only for the hover-card
// lookup (the card itself cannot see the floating panel); resolver
// handles short links on link cards.
func New(page dom.Page, resolver *media.Resolver, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{
		page:     page,
		resolver: resolver,
		log:      log.With("component", "extract"),
		sleep:    time.Sleep,
	}
}

// Extract parses a card into a Post. A Post with Error set means one
// of the identity fields was missing; the returned error is non-nil
// only for contract violations (unrecognized content nodes) and stale
// references, which the caller decides how to demote.
func (x *Extractor) Extract(card dom.Element) (*types.Post, error) {
	return x.extract(card, 0)
}

func (x *Extractor) extract(card dom.Element, depth int) (*types.Post, error) {
	p := &types.Post{
		ReplyCount:   "0",
		RetweetCount: "0",
		LikeCount:    "0",
		ViewCount:    "0",
		Hashtags:     []string{},
		Mentions:     []string{},
		Emojis:       []string{},
		ImageURLs:    []string{},
		Videos:       []types.Video{},
		CardLinkURLs: []string{},
		ResolvedURLs: []string{},
	}

	// Identity fields short-circuit: without author name, handle and
	// timestamp there is no record worth building.
	if err := x.scrapeIdentity(card, p); err != nil {
		return nil, err
	}
	if p.Error {
		return p, nil
	}

	verified, err := x.scrapeVerified(card)
	if err != nil {
		return nil, err
	}
	p.Verified = verified

	text, err := x.scrapeBody(card)
	if err != nil {
		return nil, err
	}
	p.Text = text

	// Everything below is independent: a missing element degrades to
	// the field's default, but a stale read surfaces so the caller
	// retries the whole card.
	if p.ReplyCount, err = x.countOr(card, ReplyCount); err != nil {
		return nil, err
	}
	if p.RetweetCount, err = x.countOr(card, RetweetCount); err != nil {
		return nil, err
	}
	if p.LikeCount, err = x.countOr(card, LikeCount); err != nil {
		return nil, err
	}
	if p.ViewCount, err = x.countOr(card, ViewCount); err != nil {
		return nil, err
	}

	if err := x.scrapeAnnotations(card, p); err != nil {
		return nil, err
	}
	if err := x.scrapeProfileImage(card, p); err != nil {
		return nil, err
	}
	if err := x.scrapePermalink(card, p); err != nil {
		return nil, err
	}

	if p.Videos, err = x.scrapeVideos(card); err != nil {
		return nil, err
	}

	if depth < maxQuoteDepth {
		if p.CardLinkURLs, p.ResolvedURLs, err = x.scrapeLinkCards(card); err != nil {
			return nil, err
		}
		if p.Quoted, err = x.scrapeQuote(card, depth); err != nil {
			return nil, err
		}
	}

	// Image dedup: own video thumbnails always; quoted-post images
	// and thumbnails for the outer record only.
	exclude := make(map[string]bool)
	for _, v := range p.Videos {
		if v.Thumbnail != "unknown" && v.Thumbnail != "" {
			exclude[v.Thumbnail] = true
		}
	}
	if p.Quoted != nil {
		for _, u := range p.Quoted.ImageURLs {
			exclude[u] = true
		}
		for _, v := range p.Quoted.Videos {
			if v.Thumbnail != "unknown" && v.Thumbnail != "" {
				exclude[v.Thumbnail] = true
			}
		}
	}
	if p.ImageURLs, err = x.scrapeImages(card, exclude); err != nil {
		return nil, err
	}

	if depth == 0 && x.Details {
		if err := x.scrapeAuthorStats(card, p); err != nil {
			if errors.Is(err, errHoverStale) || errors.Is(err, dom.ErrStale) {
				p.Error = true
				return p, nil
			}
			return nil, err
		}
	}

	return p, nil
}

func (x *Extractor) scrapeIdentity(card dom.Element, p *types.Post) error {
	name, ok, err := findText(card, AuthorNameSpan)
	if err != nil {
		return err
	}
	if !ok {
		p.Error = true
	}
	p.DisplayName = name

	handleEl, err := dom.FindByTextContains(card, "span", "@")
	if err != nil {
		if !errors.Is(err, dom.ErrNoSuchElement) {
			return err
		}
		p.Error = true
	} else {
		h, terr := handleEl.Text()
		if terr != nil {
			return terr
		}
		p.Handle = h
	}

	timeEl, err := card.Find(Timestamp)
	if err != nil {
		if !errors.Is(err, dom.ErrNoSuchElement) {
			return err
		}
		// A card without a machine-readable timestamp is a promoted
		// unit.
		p.Error = true
		p.IsAd = true
		return nil
	}
	dt, ok, err := timeEl.Attr("datetime")
	if err != nil {
		return err
	}
	if !ok {
		p.Error = true
		p.IsAd = true
		return nil
	}
	p.PostedAt = dt
	return nil
}

func (x *Extractor) scrapeVerified(card dom.Element) (bool, error) {
	_, err := card.Find(VerifiedBadge)
	if err != nil {
		return false, optionalErr(err)
	}
	return true, nil
}

// optionalErr filters a failed optional-field read: a stale handle
// surfaces so the caller can re-extract the card, anything else
// degrades to the field default.
func optionalErr(err error) error {
	if errors.Is(err, dom.ErrStale) {
		return err
	}
	return nil
}

// scrapeBody assembles the body text by walking the content block's
// direct children in document order: spans contribute text, images
// contribute alt text (emoji), containers contribute their embedded
// link's text. A container with no link is a contract violation.
func (x *Extractor) scrapeBody(card dom.Element) (string, error) {
	block, err := card.Find(TextBlock)
	if err != nil {
		if errors.Is(err, dom.ErrNoSuchElement) {
			return "", nil
		}
		return "", err
	}

	nodes, err := block.Children(TextBlockNodes)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, node := range nodes {
		tag, err := node.Tag()
		if err != nil {
			return "", err
		}
		switch tag {
		case "img":
			alt, _, err := node.Attr("alt")
			if err != nil {
				return "", err
			}
			b.WriteString(alt)
		case "div":
			link, err := node.Find("a")
			if err != nil {
				if errors.Is(err, dom.ErrNoSuchElement) {
					return "", &UnrecognizedNodeError{Tag: tag}
				}
				return "", err
			}
			t, err := link.Text()
			if err != nil {
				return "", err
			}
			b.WriteString(t)
		default:
			t, err := node.Text()
			if err != nil {
				return "", err
			}
			b.WriteString(t)
		}
	}
	return b.String(), nil
}

// countOr reads an engagement counter, defaulting to "0" when the
// element is missing or shows no text.
func (x *Extractor) countOr(card dom.Element, selector string) (string, error) {
	t, ok, err := findText(card, selector)
	if err != nil {
		return "", err
	}
	if !ok || t == "" {
		return "0", nil
	}
	return t, nil
}

func (x *Extractor) scrapeAnnotations(card dom.Element, p *types.Post) error {
	tags, err := card.FindAll(HashtagLink)
	if err != nil {
		return optionalErr(err)
	}
	for _, tag := range tags {
		t, err := tag.Text()
		if err != nil {
			return optionalErr(err)
		}
		p.Hashtags = append(p.Hashtags, t)
	}

	// Mentions and emojis come from the primary content block only,
	// never from quoted content.
	block, err := card.Find(TextBlock)
	if err != nil {
		return optionalErr(err)
	}

	links, err := block.FindAll("a")
	if err != nil {
		return optionalErr(err)
	}
	for _, link := range dom.FilterByTextContains(links, "@") {
		t, err := link.Text()
		if err != nil {
			return optionalErr(err)
		}
		p.Mentions = append(p.Mentions, t)
	}

	imgs, err := block.Children("img")
	if err != nil {
		return optionalErr(err)
	}
	for _, img := range imgs {
		src, _, err := img.Attr("src")
		if err != nil {
			return optionalErr(err)
		}
		if !strings.Contains(src, "emoji") {
			continue
		}
		if alt, ok, err := img.Attr("alt"); err != nil {
			return optionalErr(err)
		} else if ok {
			p.Emojis = append(p.Emojis, escapeUnicode(alt))
		}
	}
	return nil
}

func (x *Extractor) scrapeProfileImage(card dom.Element, p *types.Post) error {
	img, err := card.Find(ProfileImage)
	if err != nil {
		return optionalErr(err)
	}
	src, ok, err := img.Attr("src")
	if err != nil {
		return optionalErr(err)
	}
	if ok {
		p.ProfileImageURL = &src
	}
	return nil
}

func (x *Extractor) scrapePermalink(card dom.Element, p *types.Post) error {
	a, err := card.Find(PermalinkAnchor)
	if err != nil {
		return optionalErr(err)
	}
	href, ok, err := a.Attr("href")
	if err != nil {
		return optionalErr(err)
	}
	if !ok {
		return nil
	}
	if m := permalinkRe.FindStringSubmatch(href); m != nil {
		p.PermalinkURL = m[0]
		p.ID = m[1]
	}
	return nil
}

func (x *Extractor) scrapeVideos(card dom.Element) ([]types.Video, error) {
	players, err := card.FindAll(VideoPlayer)
	if err != nil {
		return []types.Video{}, optionalErr(err)
	}
	videos := make([]types.Video, 0, len(players))
	for _, player := range players {
		v, err := x.extractVideo(player)
		if err != nil {
			return []types.Video{}, err
		}
		videos = append(videos, v)
	}
	return videos, nil
}

func (x *Extractor) extractVideo(player dom.Element) (types.Video, error) {
	v := types.Video{
		ID:        "unknown",
		SourceURL: "unknown",
		Duration:  "unknown",
		Thumbnail: "unknown",
	}

	source, err := player.Find(VideoSource)
	if err == nil {
		src, ok, err := source.Attr("src")
		if err != nil {
			return v, optionalErr(err)
		}
		if ok && src != "" {
			v.SourceURL = src
			parts := strings.Split(src, "/")
			v.ID = parts[len(parts)-1]
		}
	} else if errors.Is(err, dom.ErrStale) {
		return v, err
	}

	video, err := player.Find(VideoElement)
	if err == nil {
		poster, ok, err := video.Attr("poster")
		if err != nil {
			return v, optionalErr(err)
		}
		if ok && poster != "" {
			v.Thumbnail = poster
		}
	} else if errors.Is(err, dom.ErrStale) {
		return v, err
	}

	span, err := dom.FindByTextContains(player, "span", ":")
	if err == nil {
		t, err := span.Text()
		if err != nil {
			return v, optionalErr(err)
		}
		d := strings.TrimSpace(t)
		if strings.Contains(d, ":") && len(d) <= 10 {
			v.Duration = d
		}
	} else if errors.Is(err, dom.ErrStale) {
		return v, err
	}

	return v, nil
}

func (x *Extractor) scrapeImages(card dom.Element, exclude map[string]bool) ([]string, error) {
	urls := []string{}
	imgs, err := card.FindAll(PhotoImage)
	if err != nil {
		return urls, optionalErr(err)
	}
	for _, img := range imgs {
		src, ok, err := img.Attr("src")
		if err != nil {
			return urls, optionalErr(err)
		}
		if !ok || src == "" {
			continue
		}
		src = media.UpgradeImageURL(src)
		if !exclude[src] {
			urls = append(urls, src)
		}
	}
	return urls, nil
}

func (x *Extractor) scrapeLinkCards(card dom.Element) (raw, resolved []string, err error) {
	raw, resolved = []string{}, []string{}
	wrappers, err := card.FindAll(LinkCard)
	if err != nil {
		return raw, resolved, optionalErr(err)
	}
	for _, wrapper := range wrappers {
		links, err := wrapper.FindAll(LinkCardHrefs)
		if err != nil {
			if errors.Is(err, dom.ErrStale) {
				return raw, resolved, err
			}
			continue
		}
		for _, link := range links {
			href, ok, err := link.Attr("href")
			if err != nil {
				if errors.Is(err, dom.ErrStale) {
					return raw, resolved, err
				}
				continue
			}
			if !ok || !strings.Contains(href, "t.co/") {
				continue
			}
			raw = append(raw, href)
			resolved = append(resolved, x.resolver.Resolve(href))
		}
	}
	return raw, resolved, nil
}

// scrapeQuote finds an embedded quoted post by its localized "Quote"
// label and extracts it one level deep. A failure inside the quoted
// extraction yields a nil quote, never a failed outer record, except
// when the failure is staleness of the card itself.
func (x *Extractor) scrapeQuote(card dom.Element, depth int) (*types.Post, error) {
	sections, err := card.FindAll(QuoteSection)
	if err != nil {
		return nil, optionalErr(err)
	}
	for _, section := range sections {
		if _, err := dom.FindByText(section, "span", QuoteLabel); err != nil {
			if errors.Is(err, dom.ErrStale) {
				return nil, err
			}
			continue
		}
		q, err := x.extract(section, depth+1)
		if err != nil {
			if errors.Is(err, dom.ErrStale) {
				return nil, err
			}
			x.log.Debug("quoted post extraction failed", "error", err)
			return nil, nil
		}
		if q.Error {
			return nil, nil
		}
		return q, nil
	}
	return nil, nil
}

// scrapeAuthorStats hovers the author name and reads the floating
// card. Each sub-condition (panel appeared, id resolved, counts
// resolved) is polled up to hoverAttempts times with a fixed backoff;
// staleness anywhere is fatal to this card only.
func (x *Extractor) scrapeAuthorStats(card dom.Element, p *types.Post) error {
	nameEl, err := card.Find(AuthorNameSpan)
	if err != nil {
		return err
	}

	var hover dom.Element
	for attempt := 0; attempt < hoverAttempts; attempt++ {
		if err := nameEl.Hover(); err != nil {
			if errors.Is(err, dom.ErrStale) {
				return errHoverStale
			}
			return err
		}
		hover, err = x.page.Find(HoverCard)
		if err == nil {
			break
		}
		if !errors.Is(err, dom.ErrNoSuchElement) {
			return err
		}
		x.sleep(hoverBackoff)
	}
	if hover == nil {
		x.log.Debug("hover card never appeared", "handle", p.Handle)
		return nil
	}

	stats := &types.AuthorStats{}

	id, err := x.pollHoverField(hover, func() (string, error) {
		el, err := hover.Find(HoverFollowID)
		if err != nil {
			return "", err
		}
		raw, _, err := el.Attr("data-testid")
		if err != nil {
			return "", err
		}
		return strings.SplitN(raw, "-", 2)[0], nil
	})
	if err != nil {
		return err
	}
	stats.AuthorID = id

	following, err := x.pollHoverField(hover, func() (string, error) {
		return elementText(hover, HoverFollowing)
	})
	if err != nil {
		return err
	}
	if following != "" {
		stats.FollowingCount = &following
	}

	followers, err := x.pollHoverField(hover, func() (string, error) {
		return elementText(hover, HoverFollowers)
	})
	if err != nil {
		return err
	}
	if followers != "" {
		stats.FollowerCount = &followers
	}

	p.Author = stats
	return nil
}

// pollHoverField retries one hover-card read to success or a bounded
// attempt count. A stale reference mid-read is reported as
// errHoverStale.
func (x *Extractor) pollHoverField(hover dom.Element, read func() (string, error)) (string, error) {
	for attempt := 0; attempt < hoverAttempts; attempt++ {
		v, err := read()
		if err == nil {
			return v, nil
		}
		if errors.Is(err, dom.ErrStale) {
			return "", errHoverStale
		}
		if !errors.Is(err, dom.ErrNoSuchElement) {
			return "", err
		}
		x.sleep(hoverBackoff)
	}
	return "", nil
}

func elementText(root dom.Element, selector string) (string, error) {
	el, err := root.Find(selector)
	if err != nil {
		return "", err
	}
	return el.Text()
}

// findText returns the text of the first match; ok is false when the
// selector matches nothing. Non-lookup errors propagate.
func findText(root dom.Element, selector string) (string, bool, error) {
	el, err := root.Find(selector)
	if err != nil {
		if errors.Is(err, dom.ErrNoSuchElement) {
			return "", false, nil
		}
		return "", false, err
	}
	t, err := el.Text()
	if err != nil {
		return "", false, err
	}
	return t, true, nil
}

// escapeUnicode renders emoji alt text as escaped code points
// ("\U0001f44d" style).
func escapeUnicode(s string) string {
	q := strconv.QuoteToASCII(s)
	return q[1 : len(q)-1]
}
