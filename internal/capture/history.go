package capture

import (
	"database/sql"
	"encoding/json"

	"github.com/xrcap/xrcap/pkg/viture"
	_ "modernc.org/sqlite"
)

// History keeps finished session reports in SQLite.
type History struct {
	*sql.DB
}

func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id                TEXT PRIMARY KEY,
			source            TEXT,
			start_ms          BIGINT,
			elapsed_ms        BIGINT,
			state             TEXT,
			cause             TEXT,
			error             TEXT,
			frame_bytes       BIGINT,
			telemetry_bytes   BIGINT,
			other_bytes       BIGINT,
			distinct_frames   BIGINT,
			report            TEXT
		);
		CREATE INDEX IF NOT EXISTS sessions_start ON sessions (start_ms);
	`)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &History{db}, nil
}

func (h *History) Record(source string, r *viture.Report) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}

	_, err = h.Exec(
		`INSERT OR REPLACE INTO sessions (
			id, source, start_ms, elapsed_ms, state, cause, error,
			frame_bytes, telemetry_bytes, other_bytes, distinct_frames, report
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, source, r.Start.UnixMilli(), r.Elapsed.Milliseconds(), r.State, string(r.Cause), r.Error,
		r.Bytes.Frame, r.Bytes.Telemetry, r.Bytes.Other, r.Frames.Distinct, string(b),
	)
	return err
}

type HistoryEntry struct {
	Source string         `json:"source"`
	Report *viture.Report `json:"report"`
}

// List returns the newest entries first.
func (h *History) List(limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := h.Query(`SELECT source, report FROM sessions ORDER BY start_ms DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Get returns nil without error when id is unknown.
func (h *History) Get(id string) (*HistoryEntry, error) {
	row := h.QueryRow(`SELECT source, report FROM sessions WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return entry, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*HistoryEntry, error) {
	var source, report string
	if err := s.Scan(&source, &report); err != nil {
		return nil, err
	}

	entry := &HistoryEntry{Source: source}
	if err := json.Unmarshal([]byte(report), &entry.Report); err != nil {
		return nil, err
	}
	return entry, nil
}
