package router

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playerhub/gateway/internal/apperrors"
	"github.com/playerhub/gateway/internal/db"
)

func newTestPresetStore(t *testing.T) *PresetStore {
	t.Helper()
	dbPair, err := db.Init(filepath.Join(t.TempDir(), "presets-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbPair.Close() })
	return NewPresetStore(dbPair)
}

func TestPresetStore_SaveThenGet(t *testing.T) {
	store := newTestPresetStore(t)
	volume := 35

	saved, err := store.Save(Preset{
		Name:    "morning",
		Room:    "Kitchen",
		Players: []string{"Kitchen", "Dining Room"},
		URI:     "x-rincon-queue:RINCON_TEST#0",
		Volume:  &volume,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.PresetID)

	got, err := store.Get("morning")
	require.NoError(t, err)
	assert.Equal(t, saved.PresetID, got.PresetID)
	assert.Equal(t, "Kitchen", got.Room)
	assert.Equal(t, []string{"Kitchen", "Dining Room"}, got.Players)
	require.NotNil(t, got.Volume)
	assert.Equal(t, 35, *got.Volume)
}

func TestPresetStore_SaveUpsertsSamePresetID(t *testing.T) {
	store := newTestPresetStore(t)

	first, err := store.Save(Preset{Name: "evening", Room: "Office"})
	require.NoError(t, err)

	second, err := store.Save(Preset{Name: "evening", Room: "Den"})
	require.NoError(t, err)

	assert.Equal(t, first.PresetID, second.PresetID, "updating an existing preset must keep its id")
	assert.Equal(t, first.CreatedAt, second.CreatedAt, "created_at must not change on update")

	got, err := store.Get("evening")
	require.NoError(t, err)
	assert.Equal(t, "Den", got.Room)
}

func TestPresetStore_GetMissingReturnsNotFound(t *testing.T) {
	store := newTestPresetStore(t)
	_, err := store.Get("nonexistent")
	require.Error(t, err)
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorCodePresetNotFound, appErr.Code)
}

func TestPresetStore_Delete(t *testing.T) {
	store := newTestPresetStore(t)
	_, err := store.Save(Preset{Name: "temp"})
	require.NoError(t, err)

	require.NoError(t, store.Delete("temp"))

	_, err = store.Get("temp")
	assert.Error(t, err)
}

func TestPresetStore_List(t *testing.T) {
	store := newTestPresetStore(t)
	_, err := store.Save(Preset{Name: "bravo"})
	require.NoError(t, err)
	_, err = store.Save(Preset{Name: "alpha"})
	require.NoError(t, err)

	all, err := store.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Name, "ordered by name")
	assert.Equal(t, "bravo", all[1].Name)
}

func TestPresetStore_SaveRequiresName(t *testing.T) {
	store := newTestPresetStore(t)
	_, err := store.Save(Preset{Room: "Kitchen"})
	require.Error(t, err)
}

func TestPresetStore_SaveAndGet_FavoriteRecipe(t *testing.T) {
	store := newTestPresetStore(t)

	saved, err := store.Save(Preset{
		Name:     "wakeup",
		Room:     "Bedroom",
		Players:  []string{"Bedroom", "Bathroom"},
		Favorite: "Morning Jazz",
	})
	require.NoError(t, err)
	assert.Empty(t, saved.URI, "a favourite-based recipe carries no fixed URI")

	got, err := store.Get("wakeup")
	require.NoError(t, err)
	assert.Equal(t, "Morning Jazz", got.Favorite)
	assert.Equal(t, []string{"Bedroom", "Bathroom"}, got.Players)
}
