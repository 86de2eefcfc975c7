// Package types holds the structured records a harvest produces.
package types

import "encoding/json"

// Video describes one video player found inside a card. Fields that
// cannot be read from the player are "unknown" rather than empty.
type Video struct {
	ID        string `json:"video_id"`
	SourceURL string `json:"source_url"`
	Duration  string `json:"duration"`
	Thumbnail string `json:"thumbnail_url"`
}

// AuthorStats are the extended author fields gathered from the hover
// card when detail scraping is enabled. Counts are nil when the UI
// shows none.
type AuthorStats struct {
	AuthorID       string  `json:"author_id"`
	FollowingCount *string `json:"following_count"`
	FollowerCount  *string `json:"follower_count"`
}

// Post is the extraction-complete representation of one card.
//
// Engagement counts are the raw displayed strings (possibly already
// abbreviated, "1.2K"), defaulting to "0" when the UI shows no count.
// A Post is built once and never mutated after it is appended to a
// harvest's output.
type Post struct {
	ID              string   `json:"post_id"`
	PermalinkURL    string   `json:"permalink_url"`
	DisplayName     string   `json:"display_name"`
	Handle          string   `json:"handle"`
	Verified        bool     `json:"verified"`
	ProfileImageURL *string  `json:"profile_image_url"`
	Text            string   `json:"body_text"`
	PostedAt        string   `json:"posted_at"`
	ReplyCount      string   `json:"reply_count"`
	RetweetCount    string   `json:"retweet_count"`
	LikeCount       string   `json:"like_count"`
	ViewCount       string   `json:"view_count"`
	Hashtags        []string `json:"hashtags"`
	Mentions        []string `json:"mentions"`
	Emojis          []string `json:"emojis"`
	ImageURLs       []string `json:"image_urls"`
	Videos          []Video  `json:"videos"`
	CardLinkURLs    []string `json:"card_link_urls"`
	ResolvedURLs    []string `json:"resolved_urls"`

	Quoted *Post        `json:"quoted_post"`
	Author *AuthorStats `json:"author_stats,omitempty"`

	// Error marks a record missing one of its identity fields
	// (display name, handle, timestamp); errored records never reach
	// output. IsAd marks a promoted unit, detected by a missing
	// machine-readable timestamp.
	Error bool `json:"-"`
	IsAd  bool `json:"-"`
}

// CSVHeader is the column order for tabular export, matching the
// JSON field order. Nested structures are stringified per column.
func CSVHeader() []string {
	return []string{
		"post_id", "permalink_url", "display_name", "handle", "verified",
		"profile_image_url", "body_text", "posted_at",
		"reply_count", "retweet_count", "like_count", "view_count",
		"hashtags", "mentions", "emojis",
		"image_urls", "videos", "card_link_urls", "resolved_urls",
		"quoted_post", "author_stats",
	}
}

// CSVRow flattens a Post for tabular export. Lists and nested records
// are JSON-stringified; nil nested records become empty cells.
func (p *Post) CSVRow() []string {
	verified := "false"
	if p.Verified {
		verified = "true"
	}
	profile := ""
	if p.ProfileImageURL != nil {
		profile = *p.ProfileImageURL
	}
	return []string{
		p.ID, p.PermalinkURL, p.DisplayName, p.Handle, verified,
		profile, p.Text, p.PostedAt,
		p.ReplyCount, p.RetweetCount, p.LikeCount, p.ViewCount,
		jsonCell(p.Hashtags), jsonCell(p.Mentions), jsonCell(p.Emojis),
		jsonCell(p.ImageURLs), jsonCell(p.Videos),
		jsonCell(p.CardLinkURLs), jsonCell(p.ResolvedURLs),
		quotedCell(p.Quoted), statsCell(p.Author),
	}
}

func jsonCell(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func quotedCell(q *Post) string {
	if q == nil {
		return ""
	}
	return jsonCell(q)
}

func statsCell(a *AuthorStats) string {
	if a == nil {
		return ""
	}
	return jsonCell(a)
}
