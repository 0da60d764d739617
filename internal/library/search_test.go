package library

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureIndex() *Index {
	idx := &Index{
		ByID:     map[string]CachedTrack{},
		ByAlbum:  map[string][]string{},
		ByArtist: map[string][]string{},
	}
	add := func(id, title, artist, album string) {
		t := CachedTrack{
			ID: id, Title: title, Artist: artist, Album: album,
			titleLower:  strings.ToLower(title),
			artistLower: strings.ToLower(artist),
			albumLower:  strings.ToLower(album),
		}
		idx.ByID[id] = t
		idx.ByAlbum[t.albumLower] = append(idx.ByAlbum[t.albumLower], id)
		idx.ByArtist[t.artistLower] = append(idx.ByArtist[t.artistLower], id)
	}
	add("1", "Come Together", "The Beatles", "Abbey Road")
	add("2", "Something", "The Beatles", "Abbey Road")
	add("3", "Yesterday", "Beatles", "Help!")
	add("4", "Imagine", "John Lennon", "Imagine")
	return idx
}

func TestSearch_EmptyQueryReturnsRandomSample(t *testing.T) {
	m := &Manager{current: fixtureIndex()}
	result := m.Search("", 2)
	assert.Len(t, result, 2)
}

func TestSearch_ArtistPrefixMatchesLeadingThe(t *testing.T) {
	m := &Manager{current: fixtureIndex()}
	result := m.Search("artist:beatles", 0)
	require.NotEmpty(t, result)
	for _, tr := range result {
		assert.True(t, tr.artistLower == "beatles" || tr.artistLower == "the beatles")
	}
}

func TestSearch_AlbumAndTrackConjunction(t *testing.T) {
	m := &Manager{current: fixtureIndex()}
	result := m.Search("album:abbey track:something", 0)
	require.Len(t, result, 1)
	assert.Equal(t, "2", result[0].ID)
}

func TestSearch_FuzzyFallbackWhenStructuredPathIsDry(t *testing.T) {
	m := &Manager{current: fixtureIndex()}
	result := m.Search("track:zzzznomatch", 0)
	assert.Empty(t, result)
}

func TestParseReindexPeriod(t *testing.T) {
	d, err := ParseReindexPeriod("2d")
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, d)

	_, err = ParseReindexPeriod("bogus")
	assert.Error(t, err)
}
