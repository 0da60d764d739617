package router

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/playerhub/gateway/internal/apperrors"
)

// DBPair is satisfied by *db.DBPair; kept local (matching the
// scheduler package's repository convention) so this package does not
// need to import internal/db just to accept its connection pair.
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Preset is a declarative action recipe, not a snapshot: target room(s)
// to group together, an optional volume, and either a fixed URI or a
// favourite name to resolve at play time. Room is the recipe's default
// play target and the first entry of Players is its group coordinator
// when Players holds more than one room.
type Preset struct {
	PresetID  string    `json:"preset_id"`
	Name      string    `json:"name"`
	Room      string    `json:"room"`
	Players   []string  `json:"players"`
	URI       string    `json:"uri,omitempty"`
	Favorite  string    `json:"favorite,omitempty"`
	Metadata  string    `json:"metadata,omitempty"`
	Volume    *int      `json:"volume,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PresetStore persists Preset rows. Reads go through reader, writes
// through writer, following the split read/write pool idiom used
// elsewhere in this module.
type PresetStore struct {
	reader *sql.DB
	writer *sql.DB
}

// NewPresetStore builds a PresetStore over an already-initialised DBPair.
func NewPresetStore(dbPair DBPair) *PresetStore {
	return &PresetStore{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

// List returns every preset, ordered by name.
func (s *PresetStore) List() ([]Preset, error) {
	rows, err := s.reader.Query(`
		SELECT preset_id, name, room, players, uri, favorite, metadata, volume, created_at, updated_at
		FROM presets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer rows.Close()

	var presets []Preset
	for rows.Next() {
		preset, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		presets = append(presets, preset)
	}
	return presets, rows.Err()
}

// Get returns the named preset, or a PresetNotFound AppError.
func (s *PresetStore) Get(name string) (*Preset, error) {
	row := s.reader.QueryRow(`
		SELECT preset_id, name, room, players, uri, favorite, metadata, volume, created_at, updated_at
		FROM presets WHERE name = ?`, name)
	preset, err := scanPreset(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewPresetNotFoundError(name)
	}
	if err != nil {
		return nil, err
	}
	return &preset, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPreset(row scannable) (Preset, error) {
	var preset Preset
	var playersJSON string
	var uri, favorite, metadata sql.NullString
	var volume sql.NullInt64
	var createdAt, updatedAt string

	if err := row.Scan(
		&preset.PresetID, &preset.Name, &preset.Room, &playersJSON,
		&uri, &favorite, &metadata, &volume, &createdAt, &updatedAt,
	); err != nil {
		return Preset{}, err
	}

	_ = json.Unmarshal([]byte(playersJSON), &preset.Players)
	preset.URI = uri.String
	preset.Favorite = favorite.String
	preset.Metadata = metadata.String
	if volume.Valid {
		v := int(volume.Int64)
		preset.Volume = &v
	}
	preset.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	preset.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return preset, nil
}

// Save inserts or overwrites the named preset.
func (s *PresetStore) Save(preset Preset) (*Preset, error) {
	if preset.Name == "" {
		return nil, apperrors.NewValidationError("preset name is required", nil)
	}
	now := time.Now().UTC()
	existing, err := s.Get(preset.Name)
	if err != nil {
		if appErr, ok := err.(*apperrors.AppError); !ok || appErr.Code != apperrors.ErrorCodePresetNotFound {
			return nil, err
		}
	}

	if existing != nil {
		preset.PresetID = existing.PresetID
		preset.CreatedAt = existing.CreatedAt
	} else {
		preset.PresetID = uuid.New().String()
		preset.CreatedAt = now
	}
	preset.UpdatedAt = now

	players, err := json.Marshal(preset.Players)
	if err != nil {
		return nil, fmt.Errorf("marshal players: %w", err)
	}

	_, err = s.writer.Exec(`
		INSERT INTO presets (preset_id, name, room, players, uri, favorite, metadata, volume, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			room=excluded.room, players=excluded.players,
			uri=excluded.uri, favorite=excluded.favorite, metadata=excluded.metadata,
			volume=excluded.volume, updated_at=excluded.updated_at
	`,
		preset.PresetID, preset.Name, preset.Room, string(players),
		nullableString(preset.URI), nullableString(preset.Favorite), nullableString(preset.Metadata), nullableInt(preset.Volume),
		preset.CreatedAt.Format(time.RFC3339), preset.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("save preset: %w", err)
	}
	return &preset, nil
}

// Delete removes the named preset. It is a no-op if the preset does not exist.
func (s *PresetStore) Delete(name string) error {
	_, err := s.writer.Exec(`DELETE FROM presets WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete preset: %w", err)
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}
