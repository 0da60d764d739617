package library

import (
	"math/rand"
	"strings"
)

// Query is a parsed library search: structured artist/album/track
// prefixes plus whatever bare text remains, which binds to title.
type Query struct {
	Artist string
	Album  string
	Track  string
	Raw    string
}

// ParseQuery splits a search string on its artist:/album:/track:
// prefixes; bare text (no prefix) binds to the title field.
func ParseQuery(q string) Query {
	parsed := Query{Raw: q}
	for _, field := range strings.Fields(q) {
		lower := strings.ToLower(field)
		switch {
		case strings.HasPrefix(lower, "artist:"):
			parsed.Artist = field[len("artist:"):]
		case strings.HasPrefix(lower, "album:"):
			parsed.Album = field[len("album:"):]
		case strings.HasPrefix(lower, "track:"):
			parsed.Track = field[len("track:"):]
		default:
			if parsed.Track == "" {
				parsed.Track = field
			} else {
				parsed.Track += " " + field
			}
		}
	}
	return parsed
}

func (q Query) isEmpty() bool {
	return q.Artist == "" && q.Album == "" && q.Track == ""
}

// Search implements the structured-query resolution order: exact-field
// conjunctions first, falling back to prefix-bidirectional fuzzy
// matching across all three fields when every structured path is dry.
func (m *Manager) Search(raw string, randomQueueLimit int) []CachedTrack {
	m.mu.RLock()
	idx := m.current
	m.mu.RUnlock()
	if idx == nil {
		return nil
	}

	query := ParseQuery(raw)
	if query.isEmpty() {
		return randomSample(idx, randomQueueLimit)
	}

	fieldsPresent := 0
	for _, f := range []string{query.Artist, query.Album, query.Track} {
		if f != "" {
			fieldsPresent++
		}
	}

	var result []CachedTrack
	switch fieldsPresent {
	case 3:
		result = conjunction(idx, query.Artist, query.Album, query.Track)
	case 2:
		result = conjunction(idx, query.Artist, query.Album, query.Track)
	case 1:
		if query.Artist != "" {
			result = matchArtist(idx, query.Artist)
		} else if query.Album != "" {
			result = matchAlbumSubstring(idx, query.Album)
		} else {
			result = matchTitleSubstring(idx, query.Track)
		}
		if len(result) == 0 && (query.Album != "" || query.Artist != "") {
			term := query.Album
			if term == "" {
				term = query.Artist
			}
			result = matchTitleSubstring(idx, term)
		}
	}

	if len(result) == 0 {
		result = fuzzyFallback(idx, query)
	}

	return result
}

// conjunction filters tracks satisfying every non-empty predicate as an
// exact substring match.
func conjunction(idx *Index, artist, album, track string) []CachedTrack {
	artistLower, albumLower, trackLower := strings.ToLower(artist), strings.ToLower(album), strings.ToLower(track)
	var out []CachedTrack
	for _, t := range idx.ByID {
		if artist != "" && !strings.Contains(t.artistLower, artistLower) {
			continue
		}
		if album != "" && !strings.Contains(t.albumLower, albumLower) {
			continue
		}
		if track != "" && !strings.Contains(t.titleLower, trackLower) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func matchTitleSubstring(idx *Index, term string) []CachedTrack {
	lower := strings.ToLower(term)
	var out []CachedTrack
	for _, t := range idx.ByID {
		if strings.Contains(t.titleLower, lower) {
			out = append(out, t)
		}
	}
	return out
}

func matchAlbumSubstring(idx *Index, term string) []CachedTrack {
	lower := strings.ToLower(term)
	var out []CachedTrack
	var firstAlbum string
	for albumLower, ids := range idx.ByAlbum {
		if !strings.Contains(albumLower, lower) {
			continue
		}
		if firstAlbum == "" {
			firstAlbum = albumLower
		}
		if albumLower != firstAlbum {
			continue
		}
		for _, id := range ids {
			if t, ok := idx.ByID[id]; ok {
				out = append(out, t)
			}
		}
	}
	return out
}

// matchArtist applies the substring, end-match, and leading-"the"-strip
// rules against every indexed artist name.
func matchArtist(idx *Index, term string) []CachedTrack {
	lower := strings.ToLower(term)
	stripped := strings.TrimPrefix(lower, "the ")

	var out []CachedTrack
	for artistLower, ids := range idx.ByArtist {
		match := strings.Contains(artistLower, lower) ||
			strings.HasSuffix(artistLower, lower) ||
			strings.TrimPrefix(artistLower, "the ") == stripped
		if !match {
			continue
		}
		for _, id := range ids {
			if t, ok := idx.ByID[id]; ok {
				out = append(out, t)
			}
		}
	}
	return out
}

// fuzzyFallback runs when every structured path comes up dry: a row
// matches if any of its artist/album/title lowercased forms is a prefix
// of the query or vice versa.
func fuzzyFallback(idx *Index, query Query) []CachedTrack {
	term := strings.ToLower(firstNonEmpty(query.Track, query.Album, query.Artist, query.Raw))
	if term == "" {
		return nil
	}

	var out []CachedTrack
	for _, t := range idx.ByID {
		if prefixEither(term, t.titleLower) || prefixEither(term, t.artistLower) || prefixEither(term, t.albumLower) {
			out = append(out, t)
		}
	}
	return out
}

func prefixEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func randomSample(idx *Index, limit int) []CachedTrack {
	if limit <= 0 {
		limit = 20
	}
	ids := make([]string, 0, len(idx.ByID))
	for id := range idx.ByID {
		ids = append(ids, id)
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if limit > len(ids) {
		limit = len(ids)
	}
	out := make([]CachedTrack, 0, limit)
	for _, id := range ids[:limit] {
		out = append(out, idx.ByID[id])
	}
	return out
}
