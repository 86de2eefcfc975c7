package extract

// Card-internal DOM selectors.
// These are isolated here because X changes their DOM frequently.
// Update these when extraction breaks.

const (
	// Identity selectors
	AuthorNameSpan = `div[data-testid="User-Name"] span`
	Timestamp      = `time`
	VerifiedBadge  = `svg[data-testid="icon-verified"]`
	ProfileImage   = `div[data-testid="Tweet-User-Avatar"] img`

	// Content selectors
	TextBlock       = `div[data-testid="tweetText"]`
	TextBlockNodes  = `span, img[alt], div`
	HashtagLink     = `a[href*="src=hashtag_click"]`
	PermalinkAnchor = `a[href*="/status/"]`

	// Engagement selectors
	ReplyCount   = `button[data-testid="reply"] span`
	RetweetCount = `button[data-testid="retweet"] span`
	LikeCount    = `button[data-testid="like"] span`
	ViewCount    = `a[href*="/analytics"] span`

	// Media selectors
	PhotoImage    = `div[data-testid="tweetPhoto"] img`
	VideoPlayer   = `div[data-testid="videoPlayer"]`
	VideoSource   = `video source`
	VideoElement  = `video`
	LinkCard      = `div[data-testid="card.wrapper"]`
	LinkCardHrefs = `a[href]`

	// Quoted-post selectors
	QuoteSection = `div[aria-labelledby*="id__"]`

	// Hover-card selectors (extended author stats)
	HoverCard      = `div[data-testid="hoverCardParent"]`
	HoverFollowID  = `div[data-testid$="-follow"], div[data-testid$="-unfollow"]`
	HoverFollowing = `a[href*="/following"] span`
	HoverFollowers = `a[href*="/verified_followers"] span`
)

// Localized UI labels matched by text content.
const (
	QuoteLabel = "Quote"
)
