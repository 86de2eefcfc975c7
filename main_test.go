package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xharvest/internal/harvest"
)

func TestBuildTargetDefaultsToTimeline(t *testing.T) {
	target, err := buildTarget("", "", "", "", false, "", false, false)
	require.NoError(t, err)
	assert.Equal(t, harvest.KindTimeline, target.Kind)
}

func TestBuildTargetSelectors(t *testing.T) {
	target, err := buildTarget("ada", "", "", "", false, "", false, false)
	require.NoError(t, err)
	assert.Equal(t, harvest.KindProfile, target.Kind)
	assert.Equal(t, "ada", target.Handle)

	target, err = buildTarget("", "golang", "", "", false, "", true, false)
	require.NoError(t, err)
	assert.Equal(t, harvest.KindHashtag, target.Kind)
	assert.Equal(t, harvest.TabLatest, target.Tab)

	target, err = buildTarget("", "", "go generics", "", false, "", false, true)
	require.NoError(t, err)
	assert.Equal(t, harvest.KindSearch, target.Kind)
	assert.Empty(t, target.Tab)

	target, err = buildTarget("", "", "", "", true, "", false, false)
	require.NoError(t, err)
	assert.Equal(t, harvest.KindBookmarks, target.Kind)

	target, err = buildTarget("", "", "", "", false, "https://twitter.com/ada/status/1", false, false)
	require.NoError(t, err)
	assert.Equal(t, harvest.KindConversation, target.Kind)
}

func TestBuildTargetRejectsMultipleSelectors(t *testing.T) {
	_, err := buildTarget("ada", "golang", "", "", false, "", false, false)
	assert.Error(t, err)

	_, err = buildTarget("", "", "q", "", true, "", false, false)
	assert.Error(t, err)
}

func TestBuildTargetRejectsConflictingTabs(t *testing.T) {
	_, err := buildTarget("", "golang", "", "", false, "", true, true)
	assert.Error(t, err)
}

func TestBuildTargetRejectsLatestOutsideSearch(t *testing.T) {
	_, err := buildTarget("ada", "", "", "", false, "", true, false)
	assert.Error(t, err)

	_, err = buildTarget("", "", "", "", false, "", true, false)
	assert.Error(t, err)
}
