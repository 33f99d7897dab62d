package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS snapshots (
  source TEXT PRIMARY KEY,
  payload BLOB NOT NULL,
  fetchedAt TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  job TEXT NOT NULL,
  startedAt TEXT NOT NULL,
  durationMs INTEGER NOT NULL,
  countsJson TEXT NOT NULL,
  error TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_job ON runs(job);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// SaveSnapshot caches the raw payload of one source fetch so expensive
// upstream pulls can be replayed with --use-cache.
func (d *DB) SaveSnapshot(source string, payload []byte) error {
	_, err := d.conn.Exec(`
INSERT INTO snapshots (source, payload, fetchedAt) VALUES (?, ?, ?)
ON CONFLICT(source) DO UPDATE SET payload = excluded.payload, fetchedAt = excluded.fetchedAt
`, source, payload, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (d *DB) GetSnapshot(source string) ([]byte, *time.Time, error) {
	var payload []byte
	var fetchedAt string
	err := d.conn.QueryRow(`SELECT payload, fetchedAt FROM snapshots WHERE source = ?`, source).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	parsed, err := time.Parse(time.RFC3339, fetchedAt)
	if err != nil {
		return payload, nil, nil
	}
	return payload, &parsed, nil
}

func (d *DB) InsertRun(job string, startedAt time.Time, duration time.Duration, counts map[string]int, runErr error) error {
	countsJSON, _ := json.Marshal(counts)
	var errText *string
	if runErr != nil {
		msg := runErr.Error()
		errText = &msg
	}
	_, err := d.conn.Exec(`
INSERT INTO runs (job, startedAt, durationMs, countsJson, error) VALUES (?, ?, ?, ?, ?)
`, job, startedAt.UTC().Format(time.RFC3339), duration.Milliseconds(), string(countsJSON), errText)
	return err
}
