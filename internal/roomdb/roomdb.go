// Package roomdb keeps a small sqlite side index of merge and index history
// per room. The snapshot file stays the source of truth; the database is a
// derived record that can be rebuilt, so writes are best-effort from the
// caller's point of view.
package roomdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	db *sql.DB
}

// MergeRecord is one applied (or attempted) merge.
type MergeRecord struct {
	ID           string    `json:"id"`
	RoomID       string    `json:"room_id"`
	At           time.Time `json:"at"`
	DryRun       bool      `json:"dry_run"`
	Applied      bool      `json:"applied"`
	ItemsBefore  int       `json:"items_before"`
	ItemsAfter   int       `json:"items_after"`
	QuestsBefore int       `json:"quests_before"`
	QuestsAfter  int       `json:"quests_after"`
	Errors       int       `json:"errors"`
	Warnings     int       `json:"warnings"`
	Summary      string    `json:"summary"`
	BackupPath   string    `json:"backup_path,omitempty"`
}

// IndexRecord is one index regeneration.
type IndexRecord struct {
	RoomID string    `json:"room_id"`
	At     time.Time `json:"at"`
	Path   string    `json:"path"`
	Items  int       `json:"items"`
	Quests int       `json:"quests"`
	Bytes  int       `json:"bytes"`
}

func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads; NORMAL is fine for a
	// rebuildable side index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS rooms (
			room_id TEXT PRIMARY KEY,
			dir TEXT NOT NULL,
			items INTEGER NOT NULL,
			quests INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS merges (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			at TEXT NOT NULL,
			dry_run INTEGER NOT NULL,
			applied INTEGER NOT NULL,
			items_before INTEGER NOT NULL,
			items_after INTEGER NOT NULL,
			quests_before INTEGER NOT NULL,
			quests_after INTEGER NOT NULL,
			errors INTEGER NOT NULL,
			warnings INTEGER NOT NULL,
			summary TEXT NOT NULL,
			backup_path TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_merges_room_at ON merges(room_id, at);`,
		`CREATE TABLE IF NOT EXISTS indexes (
			room_id TEXT NOT NULL,
			at TEXT NOT NULL,
			path TEXT NOT NULL,
			items INTEGER NOT NULL,
			quests INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			PRIMARY KEY (room_id, at)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}

func (d *DB) Close() error {
	if d == nil {
		return nil
	}
	return d.db.Close()
}

// UpsertRoom refreshes the per-room counters after an operation touches it.
func (d *DB) UpsertRoom(roomID, dir string, items, quests int) error {
	if d == nil {
		return nil
	}
	_, err := d.db.Exec(
		`INSERT OR REPLACE INTO rooms(room_id,dir,items,quests,updated_at) VALUES(?,?,?,?,?)`,
		roomID, dir, items, quests, now())
	return err
}

func (d *DB) RecordMerge(rec MergeRecord) error {
	if d == nil {
		return nil
	}
	raw, _ := json.Marshal(rec)
	_, err := d.db.Exec(
		`INSERT OR REPLACE INTO merges(id,room_id,at,dry_run,applied,items_before,items_after,quests_before,quests_after,errors,warnings,summary,backup_path,raw_json)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.RoomID, rec.At.UTC().Format(time.RFC3339Nano),
		boolInt(rec.DryRun), boolInt(rec.Applied),
		rec.ItemsBefore, rec.ItemsAfter, rec.QuestsBefore, rec.QuestsAfter,
		rec.Errors, rec.Warnings, rec.Summary, rec.BackupPath, string(raw))
	return err
}

func (d *DB) RecordIndex(rec IndexRecord) error {
	if d == nil {
		return nil
	}
	_, err := d.db.Exec(
		`INSERT OR REPLACE INTO indexes(room_id,at,path,items,quests,bytes) VALUES(?,?,?,?,?,?)`,
		rec.RoomID, rec.At.UTC().Format(time.RFC3339Nano), rec.Path, rec.Items, rec.Quests, rec.Bytes)
	return err
}

// MergeHistory returns the most recent merges for a room, newest first.
func (d *DB) MergeHistory(roomID string, limit int) ([]MergeRecord, error) {
	if d == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.Query(
		`SELECT raw_json FROM merges WHERE room_id = ? ORDER BY at DESC LIMIT ?`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MergeRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec MergeRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("corrupt merge record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
