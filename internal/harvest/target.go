package harvest

import (
	"fmt"
	"net/url"
)

// Kind selects which view a harvest runs against.
type Kind string

const (
	KindTimeline     Kind = "timeline"
	KindProfile      Kind = "profile"
	KindHashtag      Kind = "hashtag"
	KindSearch       Kind = "search"
	KindList         Kind = "list"
	KindBookmarks    Kind = "bookmarks"
	KindConversation Kind = "conversation"
)

// TabLatest switches hashtag and search views to the "Latest" tab;
// the default tab is "Top".
const TabLatest = "Latest"

// Target describes one scrape target. Exactly one of the selector
// fields is meaningful, depending on Kind.
type Target struct {
	Kind    Kind
	Handle  string // profile
	Hashtag string // hashtag
	Query   string // search
	ListID  string // list
	URL     string // conversation permalink
	Tab     string // hashtag/search: "Top" (default) or "Latest"
}

// Validate reports configuration errors eagerly, before any browser
// interaction.
func (t Target) Validate() error {
	switch t.Kind {
	case KindTimeline, KindBookmarks:
		return nil
	case KindProfile:
		if t.Handle == "" {
			return fmt.Errorf("profile target requires a handle")
		}
	case KindHashtag:
		if t.Hashtag == "" {
			return fmt.Errorf("hashtag target requires a tag")
		}
	case KindSearch:
		if t.Query == "" {
			return fmt.Errorf("search target requires a query")
		}
	case KindList:
		if t.ListID == "" {
			return fmt.Errorf("list target requires a list id")
		}
	case KindConversation:
		if t.URL == "" {
			return fmt.Errorf("conversation target requires a permalink URL")
		}
	default:
		return fmt.Errorf("unknown target kind %q", t.Kind)
	}
	return nil
}

// FeedURL builds the view URL for the target.
func (t Target) FeedURL() (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	switch t.Kind {
	case KindTimeline:
		return "https://twitter.com/home", nil
	case KindProfile:
		return "https://twitter.com/" + url.PathEscape(t.Handle), nil
	case KindHashtag:
		u := "https://twitter.com/hashtag/" + url.PathEscape(t.Hashtag) + "?src=hashtag_click"
		if t.Tab == TabLatest {
			u += "&f=live"
		}
		return u, nil
	case KindSearch:
		u := "https://twitter.com/search?q=" + url.QueryEscape(t.Query) + "&src=typed_query"
		if t.Tab == TabLatest {
			u += "&f=live"
		}
		return u, nil
	case KindList:
		return "https://x.com/i/lists/" + url.PathEscape(t.ListID), nil
	case KindBookmarks:
		return "https://twitter.com/i/bookmarks", nil
	case KindConversation:
		return t.URL, nil
	}
	return "", fmt.Errorf("unknown target kind %q", t.Kind)
}

func (t Target) String() string {
	switch t.Kind {
	case KindProfile:
		return fmt.Sprintf("profile @%s", t.Handle)
	case KindHashtag:
		return fmt.Sprintf("hashtag #%s", t.Hashtag)
	case KindSearch:
		return fmt.Sprintf("search %q", t.Query)
	case KindList:
		return fmt.Sprintf("list %s", t.ListID)
	case KindConversation:
		return fmt.Sprintf("conversation %s", t.URL)
	default:
		return string(t.Kind)
	}
}
