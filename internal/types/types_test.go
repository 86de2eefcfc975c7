package types_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xharvest/internal/types"
)

func samplePost() types.Post {
	profile := "https://pbs.twimg.com/profile_images/1/ada.jpg"
	return types.Post{
		ID:              "12345",
		PermalinkURL:    "/ada/status/12345",
		DisplayName:     "Ada Lovelace",
		Handle:          "@ada",
		Verified:        true,
		ProfileImageURL: &profile,
		Text:            "hello world",
		PostedAt:        "2024-05-01T10:00:00.000Z",
		ReplyCount:      "3",
		RetweetCount:    "5",
		LikeCount:       "1.2K",
		ViewCount:       "40K",
		Hashtags:        []string{"#golang"},
		Mentions:        []string{},
		Emojis:          []string{},
		ImageURLs:       []string{"https://pbs.twimg.com/media/abc?name=large"},
		Videos:          []types.Video{},
		CardLinkURLs:    []string{},
		ResolvedURLs:    []string{},
	}
}

func TestCSVRowMatchesHeader(t *testing.T) {
	p := samplePost()
	header := types.CSVHeader()
	row := p.CSVRow()
	require.Len(t, row, len(header))

	cols := make(map[string]string, len(header))
	for i, name := range header {
		cols[name] = row[i]
	}
	assert.Equal(t, "12345", cols["post_id"])
	assert.Equal(t, "true", cols["verified"])
	assert.Equal(t, "1.2K", cols["like_count"])
	assert.Equal(t, `["#golang"]`, cols["hashtags"])
	assert.Equal(t, "", cols["quoted_post"])
	assert.Equal(t, "", cols["author_stats"])
}

func TestCSVRowStringifiesNestedRecords(t *testing.T) {
	p := samplePost()
	q := samplePost()
	q.ID = "999"
	p.Quoted = &q
	followers := "100"
	p.Author = &types.AuthorStats{AuthorID: "42", FollowerCount: &followers}

	row := p.CSVRow()
	header := types.CSVHeader()

	var quoted types.Post
	require.NoError(t, json.Unmarshal([]byte(row[indexOf(header, "quoted_post")]), &quoted))
	assert.Equal(t, "999", quoted.ID)

	var stats types.AuthorStats
	require.NoError(t, json.Unmarshal([]byte(row[indexOf(header, "author_stats")]), &stats))
	assert.Equal(t, "42", stats.AuthorID)
	require.NotNil(t, stats.FollowerCount)
	assert.Equal(t, "100", *stats.FollowerCount)
}

func TestJSONExcludesInternalFlags(t *testing.T) {
	p := samplePost()
	p.Error = true
	p.IsAd = true

	b, err := json.Marshal(&p)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "Error")
	assert.NotContains(t, string(b), "IsAd")
	assert.Contains(t, string(b), `"post_id":"12345"`)
	assert.Contains(t, string(b), `"quoted_post":null`)
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}
