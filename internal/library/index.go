// Package library indexes the local music library exposed by any one
// player's ContentDirectory service and serves structured-query search
// over the result.
package library

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/playerhub/gateway/internal/player/soap"
)

const (
	containerAlbumArtists = "A:ALBUMARTIST"
	containerTracks       = "A:TRACKS"
	pageSize              = 500
	throttleEvery         = 5000
	throttleDelay         = 500 * time.Millisecond
	staleAfter            = 24 * time.Hour
)

// CachedTrack is one indexed library track.
type CachedTrack struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	URI         string `json:"uri"`
	titleLower  string
	artistLower string
	albumLower  string
}

// Index is the immutable snapshot produced by one reindex run. Reads
// never see a partial mix of old and new data: the manager swaps the
// whole pointer atomically.
type Index struct {
	ByID        map[string]CachedTrack `json:"by_id"`
	ByAlbum     map[string][]string    `json:"by_album"`
	ByArtist    map[string][]string    `json:"by_artist"`
	ArtistNames []string               `json:"artist_names"`
	BuiltAt     time.Time              `json:"built_at"`
}

func (idx *Index) trackCount() int {
	if idx == nil {
		return 0
	}
	return len(idx.ByID)
}

// DeviceResolver returns the IP of any reachable player to browse the
// library against.
type DeviceResolver func() (string, error)

// Manager owns the library index: it only mutates via Reindex, and the
// current snapshot is swapped atomically so readers never block on a
// reindex in progress.
type Manager struct {
	soapClient  *soap.Client
	resolveIP   DeviceResolver
	persistPath string

	mu            sync.RWMutex
	current       *Index
	reindexPeriod time.Duration
	reindexing    bool

	randomSeed int64
}

// NewManager constructs a library indexer persisting its snapshot at
// persistPath. reindexPeriod follows the compact "<int>(h|d|w)" grammar
// and defaults to 24h when empty or unparsable.
func NewManager(client *soap.Client, resolveIP DeviceResolver, persistPath, reindexPeriod string) *Manager {
	period, err := ParseReindexPeriod(reindexPeriod)
	if err != nil {
		period = staleAfter
	}
	return &Manager{
		soapClient:    client,
		resolveIP:     resolveIP,
		persistPath:   persistPath,
		reindexPeriod: period,
	}
}

// ParseReindexPeriod parses the "<int>(h|d|w)" grammar, e.g. "12h",
// "2d", "1w".
func ParseReindexPeriod(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return staleAfter, nil
	}
	matches := reindexGrammar.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid reindex period %q", s)
	}
	n, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, err
	}
	switch matches[2] {
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "w":
		return time.Duration(n) * 24 * 7 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid reindex period unit in %q", s)
	}
}

var reindexGrammar = regexp.MustCompile(`^(\d+)(h|d|w)$`)

// LoadFromDisk restores a previously persisted index so the indexer can
// serve queries immediately on startup, before the first reindex
// completes.
func (m *Manager) LoadFromDisk() error {
	data, err := os.ReadFile(m.persistPath)
	if err != nil {
		return err
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return err
	}
	lowercaseIndex(&idx)
	m.mu.Lock()
	m.current = &idx
	m.mu.Unlock()
	return nil
}

func lowercaseIndex(idx *Index) {
	for id, t := range idx.ByID {
		t.titleLower = strings.ToLower(t.Title)
		t.artistLower = strings.ToLower(t.Artist)
		t.albumLower = strings.ToLower(t.Album)
		idx.ByID[id] = t
	}
}

// IsReady reports whether a snapshot (stale or not) exists to serve
// queries against.
func (m *Manager) IsReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil
}

// IsStale reports whether the current snapshot is older than the
// configured reindex period; a stale index still serves queries while
// a background reindex runs.
func (m *Manager) IsStale() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return true
	}
	return time.Since(m.current.BuiltAt) > m.reindexPeriod
}

// Summary reports index size and freshness for the admin endpoints.
func (m *Manager) Summary() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return map[string]any{"ready": false, "tracks": 0, "artists": 0, "albums": 0}
	}
	return map[string]any{
		"ready":    true,
		"tracks":   len(m.current.ByID),
		"artists":  len(m.current.ArtistNames),
		"albums":   len(m.current.ByAlbum),
		"built_at": m.current.BuiltAt.UTC().Format(time.RFC3339),
		"stale":    time.Since(m.current.BuiltAt) > m.reindexPeriod,
	}
}

// Reindex performs the two-sweep browse of the library root and
// installs the result atomically on completion. Concurrent calls are
// collapsed: a call made while a Reindex is already in flight returns
// nil at once, without waiting for it or starting a second sweep.
func (m *Manager) Reindex(ctx context.Context) error {
	m.mu.Lock()
	if m.reindexing {
		m.mu.Unlock()
		return nil
	}
	m.reindexing = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.reindexing = false
		m.mu.Unlock()
	}()

	ip, err := m.resolveIP()
	if err != nil {
		return fmt.Errorf("library reindex: %w", err)
	}

	artistNames, err := m.sweepAlbumArtists(ctx, ip)
	if err != nil {
		return fmt.Errorf("library reindex (artists): %w", err)
	}

	tracks, err := m.sweepTracks(ctx, ip)
	if err != nil {
		return fmt.Errorf("library reindex (tracks): %w", err)
	}

	idx := &Index{
		ByID:        make(map[string]CachedTrack, len(tracks)),
		ByAlbum:     make(map[string][]string),
		ByArtist:    make(map[string][]string),
		ArtistNames: artistNames,
		BuiltAt:     time.Now(),
	}
	for _, t := range tracks {
		idx.ByID[t.ID] = t
		if t.Album != "" {
			idx.ByAlbum[t.albumLower] = append(idx.ByAlbum[t.albumLower], t.ID)
		}
		if t.Artist != "" {
			idx.ByArtist[t.artistLower] = append(idx.ByArtist[t.artistLower], t.ID)
		}
	}

	if err := m.persist(idx); err != nil {
		return fmt.Errorf("library reindex: persist: %w", err)
	}

	m.mu.Lock()
	m.current = idx
	m.mu.Unlock()
	return nil
}

func (m *Manager) sweepAlbumArtists(ctx context.Context, ip string) ([]string, error) {
	names := make([]string, 0, 256)
	start := 0
	for {
		result, err := m.soapClient.Browse(ctx, ip, containerAlbumArtists, "BrowseDirectChildren", "*", start, pageSize)
		if err != nil {
			return nil, err
		}
		for _, item := range result.Items {
			if item.Title != "" {
				names = append(names, item.Title)
			}
		}
		start += len(result.Items)
		if len(result.Items) == 0 || start >= result.TotalMatches {
			break
		}
	}
	return names, nil
}

func (m *Manager) sweepTracks(ctx context.Context, ip string) ([]CachedTrack, error) {
	tracks := make([]CachedTrack, 0, 4096)
	start := 0
	sinceThrottle := 0
	for {
		payload, err := m.soapClient.ExecuteAction(ctx, ip, soap.ServiceContentDirectory, "Browse", map[string]string{
			"ObjectID":       containerTracks,
			"BrowseFlag":     "BrowseDirectChildren",
			"Filter":         "*",
			"StartingIndex":  strconv.Itoa(start),
			"RequestedCount": strconv.Itoa(pageSize),
			"SortCriteria":   "",
		})
		if err != nil {
			return nil, err
		}

		didl := extractResultXML(payload)
		page := parseTrackItems(didl)
		tracks = append(tracks, page...)

		total := extractIntTag(payload, "TotalMatches")
		start += len(page)
		sinceThrottle += len(page)

		if len(page) == 0 || start >= total {
			break
		}
		if sinceThrottle >= throttleEvery {
			sinceThrottle = 0
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(throttleDelay):
			}
		}
	}
	return tracks, nil
}

func (m *Manager) persist(idx *Index) error {
	if m.persistPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(m.persistPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".library-index-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, m.persistPath)
}

// extractResultXML pulls the doubly-encoded DIDL-Lite payload out of the
// Browse SOAP response body, the same shape soap.parseBrowseResult reads:
// decoding the <Result> element as text unescapes it back to real XML.
func extractResultXML(payload []byte) []byte {
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	for {
		tok, err := decoder.Token()
		if err != nil {
			return nil
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Result" {
			continue
		}
		var value string
		if err := decoder.DecodeElement(&value, &se); err != nil {
			return nil
		}
		return []byte(value)
	}
}

func extractIntTag(payload []byte, tag string) int {
	open := "<" + tag + ">"
	close := "</" + tag + ">"
	start := bytes.Index(payload, []byte(open))
	end := bytes.Index(payload, []byte(close))
	if start == -1 || end == -1 || end < start {
		return 0
	}
	n, _ := strconv.Atoi(string(payload[start+len(open) : end]))
	return n
}

// parseTrackItems parses the unescaped DIDL-Lite track container,
// extracting the fields a FavoriteItem parse does not carry (creator,
// album).
func parseTrackItems(didl []byte) []CachedTrack {
	if len(didl) == 0 {
		return nil
	}
	decoder := xml.NewDecoder(bytes.NewReader(didl))
	var tracks []CachedTrack
	var current *CachedTrack

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "item":
			t := CachedTrack{}
			for _, attr := range se.Attr {
				if attr.Name.Local == "id" {
					t.ID = attr.Value
				}
			}
			tracks = append(tracks, t)
			current = &tracks[len(tracks)-1]
		case "title":
			if current != nil {
				current.Title = decodeElementText(decoder, se)
			}
		case "creator":
			if current != nil {
				current.Artist = decodeElementText(decoder, se)
			}
		case "album":
			if current != nil {
				current.Album = decodeElementText(decoder, se)
			}
		case "res":
			if current != nil {
				current.URI = decodeElementText(decoder, se)
			}
		}
	}

	for i := range tracks {
		tracks[i].titleLower = strings.ToLower(tracks[i].Title)
		tracks[i].artistLower = strings.ToLower(tracks[i].Artist)
		tracks[i].albumLower = strings.ToLower(tracks[i].Album)
	}
	return tracks
}

func decodeElementText(decoder *xml.Decoder, se xml.StartElement) string {
	var value string
	if err := decoder.DecodeElement(&value, &se); err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}
