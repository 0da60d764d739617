package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playerhub/gateway/internal/player/soap"
)

func TestFindItemByTitle_ExactMatchWinsOverSubstring(t *testing.T) {
	items := []soap.FavoriteItem{
		{ID: "1", Title: "Jazz Radio Extended"},
		{ID: "2", Title: "Jazz"},
	}
	item, ok := findItemByTitle(items, "jazz")
	require.True(t, ok)
	assert.Equal(t, "2", item.ID)
}

func TestFindItemByTitle_FallsBackToSubstring(t *testing.T) {
	items := []soap.FavoriteItem{
		{ID: "1", Title: "Morning Jazz Mix"},
	}
	item, ok := findItemByTitle(items, "jazz")
	require.True(t, ok)
	assert.Equal(t, "1", item.ID)
}

func TestFindItemByTitle_NoMatch(t *testing.T) {
	items := []soap.FavoriteItem{{ID: "1", Title: "Classical"}}
	_, ok := findItemByTitle(items, "reggae")
	assert.False(t, ok)
}
