package catalogue

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/playerhub/gateway/internal/player/soap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeServiceDescriptor_InfersTypeAndPersonalization(t *testing.T) {
	entry := normalizeServiceDescriptor(soap.ServiceDescriptor{
		ID:   "80103",
		Name: "Spotify",
		URI:  "x-sonos-spotify:service",
	})
	assert.Equal(t, "spotify", entry.Type)
	assert.True(t, entry.IsPersonalized)
	assert.False(t, entry.IsTuneIn)
}

func TestNormalizeServiceDescriptor_DetectsTuneIn(t *testing.T) {
	entry := normalizeServiceDescriptor(soap.ServiceDescriptor{
		ID:   "65031",
		Name: "TuneIn",
		URI:  "x-sonosapi-stream:tunein",
	})
	assert.True(t, entry.IsTuneIn)
	assert.False(t, entry.IsPersonalized)
}

func TestNormalizeServiceDescriptor_NonPersonalizedIDOutOfRange(t *testing.T) {
	entry := normalizeServiceDescriptor(soap.ServiceDescriptor{ID: "254", Name: "Local Library", URI: "x-file-cifs:"})
	assert.False(t, entry.IsPersonalized)
	assert.Equal(t, "unknown", entry.Type)
}

func TestAddDiscoveredServiceID_ClonesCanonicalEntry(t *testing.T) {
	m := NewServicesManager(nil, nil, filepath.Join(t.TempDir(), "services.json"), nil)
	m.services["12"] = ServiceEntry{ID: "12", Name: "Spotify", Type: "spotify", IsPersonalized: true}

	require.NoError(t, m.AddDiscoveredServiceID("9312", "Spotify"))

	services := m.GetServices()
	require.Len(t, services, 2)

	var discovered *ServiceEntry
	for i := range services {
		if services[i].ID == "9312" {
			discovered = &services[i]
		}
	}
	require.NotNil(t, discovered)
	assert.Equal(t, "Spotify", discovered.Name)
	assert.True(t, discovered.IsDiscovered)
	assert.True(t, discovered.IsPersonalized)
}

func TestAddDiscoveredServiceID_NoCanonicalMatchErrors(t *testing.T) {
	m := NewServicesManager(nil, nil, "", nil)
	err := m.AddDiscoveredServiceID("999", "Nonexistent")
	assert.Error(t, err)
}

func TestAddDiscoveredServiceID_IdempotentOnExistingID(t *testing.T) {
	m := NewServicesManager(nil, nil, "", nil)
	m.services["12"] = ServiceEntry{ID: "12", Name: "Spotify"}
	require.NoError(t, m.AddDiscoveredServiceID("12", "Spotify"))
	assert.Len(t, m.services, 1)
}

func TestGetStatus_StaleWhenNeverRefreshed(t *testing.T) {
	m := NewServicesManager(nil, nil, "", nil)
	assert.True(t, m.GetStatus().Stale)
}

func TestGetStatus_NotStaleWithinTTL(t *testing.T) {
	m := NewServicesManager(nil, nil, "", nil)
	m.refreshedAt = time.Now()
	assert.False(t, m.GetStatus().Stale)
}

func TestPersistAndLoadFromDisk_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.json")
	m := NewServicesManager(nil, nil, path, nil)
	m.services["12"] = ServiceEntry{ID: "12", Name: "Spotify", Type: "spotify"}
	m.refreshedAt = time.Now()
	require.NoError(t, m.persist())

	reloaded := NewServicesManager(nil, nil, path, nil)
	require.NoError(t, reloaded.LoadFromDisk())

	services := reloaded.GetServices()
	require.Len(t, services, 1)
	assert.Equal(t, "Spotify", services[0].Name)
}

func TestSortServiceEntries_OrdersByID(t *testing.T) {
	entries := []ServiceEntry{{ID: "9"}, {ID: "12"}, {ID: "2"}}
	sortServiceEntries(entries)
	assert.Equal(t, []string{"12", "2", "9"}, []string{entries[0].ID, entries[1].ID, entries[2].ID})
}
