package db

const schemaSQL = `
-- ==========================================================================
-- PRESETS (declarative play recipes: rooms, volume, URI or favourite; the router's mutable preset store)
-- ==========================================================================

CREATE TABLE IF NOT EXISTS presets (
  preset_id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  room TEXT,
  players TEXT NOT NULL DEFAULT '[]',
  uri TEXT,
  favorite TEXT,
  metadata TEXT,
  volume INTEGER,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_presets_name ON presets(name);
`
