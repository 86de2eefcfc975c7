package harvest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetFeedURL(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		want   string
	}{
		{"timeline", Target{Kind: KindTimeline}, "https://twitter.com/home"},
		{"profile", Target{Kind: KindProfile, Handle: "ada"}, "https://twitter.com/ada"},
		{"hashtag top", Target{Kind: KindHashtag, Hashtag: "golang"},
			"https://twitter.com/hashtag/golang?src=hashtag_click"},
		{"hashtag latest", Target{Kind: KindHashtag, Hashtag: "golang", Tab: TabLatest},
			"https://twitter.com/hashtag/golang?src=hashtag_click&f=live"},
		{"search top", Target{Kind: KindSearch, Query: "go generics"},
			"https://twitter.com/search?q=go+generics&src=typed_query"},
		{"search latest", Target{Kind: KindSearch, Query: "go generics", Tab: TabLatest},
			"https://twitter.com/search?q=go+generics&src=typed_query&f=live"},
		{"list", Target{Kind: KindList, ListID: "123987"}, "https://x.com/i/lists/123987"},
		{"bookmarks", Target{Kind: KindBookmarks}, "https://twitter.com/i/bookmarks"},
		{"conversation", Target{Kind: KindConversation, URL: "https://twitter.com/ada/status/1"},
			"https://twitter.com/ada/status/1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.target.FeedURL()
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTargetValidate(t *testing.T) {
	assert.NoError(t, Target{Kind: KindTimeline}.Validate())
	assert.Error(t, Target{Kind: KindProfile}.Validate())
	assert.Error(t, Target{Kind: KindHashtag}.Validate())
	assert.Error(t, Target{Kind: KindSearch}.Validate())
	assert.Error(t, Target{Kind: KindList}.Validate())
	assert.Error(t, Target{Kind: KindConversation}.Validate())
	assert.Error(t, Target{Kind: "nonsense"}.Validate())
}

func TestTargetString(t *testing.T) {
	assert.Equal(t, "profile @ada", Target{Kind: KindProfile, Handle: "ada"}.String())
	assert.Equal(t, "hashtag #golang", Target{Kind: KindHashtag, Hashtag: "golang"}.String())
	assert.Equal(t, "timeline", Target{Kind: KindTimeline}.String())
}
