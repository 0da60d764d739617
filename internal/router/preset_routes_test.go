package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePresetContent_DirectURITakesPrecedenceOverFavorite(t *testing.T) {
	rt := &Router{}
	preset := &Preset{URI: "x-rincon-queue:RINCON_1#0", Metadata: "<DIDL/>", Favorite: "Morning Jazz"}

	uri, metadata, err := rt.resolvePresetContent(context.Background(), preset, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "x-rincon-queue:RINCON_1#0", uri)
	assert.Equal(t, "<DIDL/>", metadata)
}

func TestResolvePresetContent_NoURIOrFavoriteReturnsEmpty(t *testing.T) {
	rt := &Router{}
	preset := &Preset{}

	uri, metadata, err := rt.resolvePresetContent(context.Background(), preset, "10.0.0.1")
	require.NoError(t, err)
	assert.Empty(t, uri)
	assert.Empty(t, metadata)
}
