package station

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func farFuture() time.Time { return time.Now().Add(24 * time.Hour) }

func newTestManager() *Manager {
	return &Manager{
		byID:      make(map[string]Record),
		targetSID: "236",
	}
}

func TestFindStation_PriorityOrder(t *testing.T) {
	m := newTestManager()
	m.byID["1"] = Record{StationID: "1", StationName: "Classic Rock"}
	m.byID["2"] = Record{StationID: "2", StationName: "Classic"}
	m.byID["3"] = Record{StationID: "3", StationName: "90s Classic Hits"}

	r, ok := m.FindStation("classic")
	require.True(t, ok)
	assert.Equal(t, "2", r.StationID, "exact match must win over prefix/substring")
}

func TestFindStation_SubstringFallback(t *testing.T) {
	m := newTestManager()
	m.byID["1"] = Record{StationID: "1", StationName: "90s Classic Hits"}

	r, ok := m.FindStation("Classic")
	require.True(t, ok)
	assert.Equal(t, "1", r.StationID)
}

func TestFindStation_NoMatch(t *testing.T) {
	m := newTestManager()
	_, ok := m.FindStation("nonexistent")
	assert.False(t, ok)
}

func TestRefreshAPI_BackoffOnAuthFailure(t *testing.T) {
	m := newTestManager()
	m.apiRefresher = func(ctx context.Context) ([]Record, error) {
		return nil, NewBackoffError(errors.New("401 unauthorized"))
	}

	err := m.RefreshAPI(context.Background())
	require.Error(t, err)
	assert.True(t, m.IsInBackoff())
	assert.Greater(t, m.GetBackoffRemaining().Seconds(), float64(0))
}

func TestRefreshAPI_SkippedDuringBackoff(t *testing.T) {
	m := newTestManager()
	called := false
	m.apiRefresher = func(ctx context.Context) ([]Record, error) {
		called = true
		return nil, nil
	}
	m.backoffUntil = farFuture()

	err := m.RefreshAPI(context.Background())
	require.NoError(t, err)
	assert.False(t, called)
}

func TestMergeFavoriteSupersedesAPI(t *testing.T) {
	m := newTestManager()
	m.byID["1"] = Record{StationID: "1", StationName: "New Name", Source: SourceFavorite}
	m.apiRefresher = func(ctx context.Context) ([]Record, error) {
		return []Record{{StationID: "1", StationName: "Old Name"}}, nil
	}

	require.NoError(t, m.RefreshAPI(context.Background()))
	assert.Equal(t, "New Name", m.byID["1"].StationName)
	assert.Equal(t, SourceBoth, m.byID["1"].Source)
}
