package catalogue

import (
	"testing"

	"github.com/playerhub/gateway/internal/player"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSpotifyURI_Track(t *testing.T) {
	b := NewURIBuilder(nil)
	creds := &player.ServiceCredentials{SID: "12"}
	uri, err := b.BuildURI(player.ServiceSpotify, "track", "5x9s", creds)
	require.NoError(t, err)
	assert.Contains(t, uri, "x-sonos-spotify:spotify:track:5x9s")
	assert.Contains(t, uri, "sid=12")
}

func TestBuildURI_UnsupportedService(t *testing.T) {
	b := NewURIBuilder(nil)
	_, err := b.BuildURI("tidal", "track", "abc", &player.ServiceCredentials{})
	require.Error(t, err)
	_, ok := err.(*ServiceNotSupportedError)
	assert.True(t, ok)
}

func TestBuildMetadata_EmptyTitleFallsBackToUnknown(t *testing.T) {
	b := NewURIBuilder(nil)
	md, err := b.BuildMetadata(player.ServiceSpotify, "track", "5x9s", "", &player.ServiceCredentials{SID: "12"})
	require.NoError(t, err)
	assert.Contains(t, md, "<dc:title>Unknown</dc:title>")
}

func TestResolver_UsesQueuePlayback(t *testing.T) {
	r := &Resolver{}
	album := "album"
	track := "track"

	assert.True(t, r.UsesQueuePlayback(Content{Type: "direct", ContentType: &album}))
	assert.False(t, r.UsesQueuePlayback(Content{Type: "direct", ContentType: &track}))
	assert.False(t, r.UsesQueuePlayback(Content{Type: "sonos_favorite"}))
}

func TestDetermineContentType(t *testing.T) {
	r := &Resolver{}
	assert.Equal(t, "station", r.determineContentType("object.item.audioItem.audioBroadcast"))
	assert.Equal(t, "playlist", r.determineContentType("object.container.playlistContainer"))
	assert.Equal(t, "album", r.determineContentType("object.container.album.musicAlbum"))
	assert.Equal(t, "track", r.determineContentType("object.item.audioItem.musicTrack"))
	assert.Equal(t, "unknown", r.determineContentType("object.container"))
}

func TestDetectServiceName(t *testing.T) {
	assert.Equal(t, player.ServiceSpotify, detectServiceName("x-sonos-spotify:track:1", ""))
	assert.Equal(t, player.ServiceAppleMusic, detectServiceName("", "SA_RINCON52231_X"))
	assert.Equal(t, "", detectServiceName("x-rincon:foo", ""))
}
