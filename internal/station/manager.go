// Package station maintains the saved-station table for a station-based
// streaming service (Pandora, SiriusXM): a name-indexed merge of an
// upstream API listing and whatever the household has favourited on a
// player.
package station

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/playerhub/gateway/internal/player/soap"
)

// Source records where a station record came from; favourite-sourced
// records supersede API-sourced ones of the same id and the merge is
// tagged "both".
type Source string

const (
	SourceFavorite Source = "favorite"
	SourceAPI      Source = "api"
	SourceBoth     Source = "both"
)

// Record is one saved station.
type Record struct {
	StationID     string         `json:"station_id"`
	StationName   string         `json:"station_name"`
	URI           string         `json:"uri,omitempty"`
	Metadata      string         `json:"metadata,omitempty"`
	Source        Source         `json:"source"`
	SessionNumber string         `json:"session_number,omitempty"`
	Flags         map[string]any `json:"flags,omitempty"`
}

// APIRefresher fetches the upstream station listing. Auth/quota
// failures should be returned via ErrBackoff so the manager can apply
// the multi-hour backoff without tearing down favourites refresh.
type APIRefresher func(ctx context.Context) ([]Record, error)

// ErrBackoff, when returned by an APIRefresher, tells the manager to
// enter backoff instead of treating the failure as transient.
var ErrBackoff = &backoffError{}

type backoffError struct{ message string }

func (e *backoffError) Error() string {
	if e.message == "" {
		return "upstream station API requires backoff"
	}
	return e.message
}

// NewBackoffError wraps a cause as a backoff-triggering error.
func NewBackoffError(cause error) error {
	msg := "upstream station API requires backoff"
	if cause != nil {
		msg = cause.Error()
	}
	return &backoffError{message: msg}
}

func isBackoffError(err error) bool {
	_, ok := err.(*backoffError)
	return ok
}

var (
	favoriteURISID = regexp.MustCompile(`sid=(\d+)`)
	favoriteURISN  = regexp.MustCompile(`sn=(\d+)`)
	stationIDRe    = regexp.MustCompile(`stationId=([^&"]+)`)
)

// Manager owns the saved-station table for one target service.
type Manager struct {
	soapClient    *soap.Client
	resolveIP     func() (string, error)
	targetSID     string
	apiRefresher  APIRefresher
	persistPath   string

	mu          sync.RWMutex
	byID        map[string]Record
	backoffUntil time.Time
}

// NewManager constructs a saved-station manager. targetSID is the
// favourite-URI service-id token identifying this service's favourites
// (e.g. Pandora's or SiriusXM's numeric SID).
func NewManager(client *soap.Client, resolveIP func() (string, error), targetSID, persistPath string, refresher APIRefresher) *Manager {
	return &Manager{
		soapClient:   client,
		resolveIP:    resolveIP,
		targetSID:    targetSID,
		persistPath:  persistPath,
		apiRefresher: refresher,
		byID:         make(map[string]Record),
	}
}

// Initialize loads any persisted API-derived list, then runs one
// favourites merge, per the startup sequence.
func (m *Manager) Initialize(ctx context.Context) error {
	m.loadPersisted()
	return m.RefreshFavorites(ctx)
}

func (m *Manager) loadPersisted() {
	if m.persistPath == "" {
		return
	}
	data, err := os.ReadFile(m.persistPath)
	if err != nil {
		return
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return
	}
	m.mu.Lock()
	for _, r := range records {
		r.Source = SourceAPI
		m.byID[r.StationID] = r
	}
	m.mu.Unlock()
}

func (m *Manager) persist() {
	if m.persistPath == "" {
		return
	}
	m.mu.RLock()
	records := make([]Record, 0, len(m.byID))
	for _, r := range m.byID {
		if r.Source == SourceFavorite {
			continue
		}
		records = append(records, r)
	}
	m.mu.RUnlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return
	}
	dir := filepath.Dir(m.persistPath)
	_ = os.MkdirAll(dir, 0o755)
	tmp, err := os.CreateTemp(dir, ".stations-*.tmp")
	if err != nil {
		return
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return
	}
	tmp.Close()
	os.Rename(tmpPath, m.persistPath)
}

// RefreshFavorites browses FV:2 on any reachable player, extracts
// target-service favourites, and merges them into the table.
// Favourite-sourced entries override API-sourced entries of the same
// id, tagged "both".
func (m *Manager) RefreshFavorites(ctx context.Context) error {
	ip, err := m.resolveIP()
	if err != nil {
		return err
	}
	result, err := m.soapClient.Browse(ctx, ip, "FV:2", "BrowseDirectChildren", "*", 0, 200)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range result.Items {
		if !strings.Contains(item.Resource, "sid="+m.targetSID) {
			continue
		}
		stationID := extractStationID(item.Resource, item.ResourceMetaData)
		if stationID == "" {
			continue
		}
		sessionNumber := ""
		if matches := favoriteURISN.FindStringSubmatch(item.Resource); len(matches) > 1 {
			sessionNumber = matches[1]
		}

		record := Record{
			StationID:     stationID,
			StationName:   item.Title,
			URI:           item.Resource,
			Metadata:      item.ResourceMetaData,
			SessionNumber: sessionNumber,
			Source:        SourceFavorite,
		}
		if existing, ok := m.byID[stationID]; ok && (existing.Source == SourceAPI || existing.Source == SourceBoth) {
			record.Source = SourceBoth
		}
		m.byID[stationID] = record
	}
	return nil
}

func extractStationID(resource, metadata string) string {
	if matches := stationIDRe.FindStringSubmatch(resource); len(matches) > 1 {
		return matches[1]
	}
	if matches := stationIDRe.FindStringSubmatch(metadata); len(matches) > 1 {
		return matches[1]
	}
	if matches := favoriteURISID.FindStringSubmatch(resource); len(matches) > 1 {
		return matches[1]
	}
	return ""
}

// RefreshAPI pulls the upstream station listing unless the manager is
// currently in backoff. An auth/quota failure (ErrBackoff-wrapped)
// enters a multi-hour backoff; favourites refresh is unaffected.
func (m *Manager) RefreshAPI(ctx context.Context) error {
	if m.IsInBackoff() {
		return nil
	}
	if m.apiRefresher == nil {
		return nil
	}
	records, err := m.apiRefresher(ctx)
	if err != nil {
		if isBackoffError(err) {
			m.mu.Lock()
			m.backoffUntil = time.Now().Add(3 * time.Hour)
			m.mu.Unlock()
		}
		return err
	}

	m.mu.Lock()
	for _, r := range records {
		r.Source = SourceAPI
		if existing, ok := m.byID[r.StationID]; ok && (existing.Source == SourceFavorite || existing.Source == SourceBoth) {
			existing.Source = SourceBoth
			existing.Metadata = r.Metadata
			m.byID[r.StationID] = existing
			continue
		}
		m.byID[r.StationID] = r
	}
	m.mu.Unlock()
	m.persist()
	return nil
}

// IsInBackoff reports whether the upstream API refresh is currently
// suppressed due to a prior auth/quota failure.
func (m *Manager) IsInBackoff() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Now().Before(m.backoffUntil)
}

// GetBackoffRemaining reports how much backoff time is left.
func (m *Manager) GetBackoffRemaining() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	remaining := time.Until(m.backoffUntil)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FindStation looks up a station by name, trying in order: exact
// case-insensitive, prefix, substring, word-start. Returns the first
// hit in each tier; ok is false when nothing matches.
func (m *Manager) FindStation(name string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lower := strings.ToLower(name)

	if r, ok := m.findBy(func(n string) bool { return n == lower }); ok {
		return r, true
	}
	if r, ok := m.findBy(func(n string) bool { return strings.HasPrefix(n, lower) }); ok {
		return r, true
	}
	if r, ok := m.findBy(func(n string) bool { return strings.Contains(n, lower) }); ok {
		return r, true
	}
	if r, ok := m.findBy(func(n string) bool { return wordStartMatch(n, lower) }); ok {
		return r, true
	}
	return Record{}, false
}

func (m *Manager) findBy(pred func(nameLower string) bool) (Record, bool) {
	for _, r := range m.byID {
		if pred(strings.ToLower(r.StationName)) {
			return r, true
		}
	}
	return Record{}, false
}

func wordStartMatch(haystackLower, needleLower string) bool {
	for _, word := range strings.Fields(haystackLower) {
		if strings.HasPrefix(word, needleLower) {
			return true
		}
	}
	return false
}

// List returns a snapshot of every saved station.
func (m *Manager) List() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.byID))
	for _, r := range m.byID {
		out = append(out, r)
	}
	return out
}
