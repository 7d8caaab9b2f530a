package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/lectorlips/internal/apperr"
	"github.com/starford/lectorlips/internal/models"
)

// CompileRow represents a row in the compiles table.
type CompileRow struct {
	ID          int64         `json:"id"`
	Source      string        `json:"source"`
	Checksum    string        `json:"checksum"`
	Output      string        `json:"output"`
	TextureBase string        `json:"texture_base"`
	FrameRate   float64       `json:"frame_rate"`
	Keyframes   int           `json:"keyframes"`
	Segments    int           `json:"segments"`
	Skipped     int           `json:"skipped"`
	Skips       []models.Skip `json:"skips,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// RecordCompile inserts a compile and its skipped keyframes within a
// transaction and returns the new row id.
func (db *DB) RecordCompile(row CompileRow) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	res, err := tx.Exec(`
		INSERT INTO compiles (source, checksum, output, texture_base, frame_rate, keyframes, segments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, row.Source, row.Checksum, row.Output, row.TextureBase, row.FrameRate, row.Keyframes, row.Segments, row.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("index: insert compile: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("index: last insert id: %w", err)
	}

	if len(row.Skips) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO skips (compile_id, position, time, mouth) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return 0, fmt.Errorf("index: prepare skip insert: %w", err)
		}
		defer stmt.Close()
		for _, s := range row.Skips {
			if _, err := stmt.Exec(id, s.Index, s.Keyframe.Time, s.Keyframe.Mouth); err != nil {
				return 0, fmt.Errorf("index: insert skip: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("index: commit: %w", err)
	}
	return id, nil
}

// ListCompiles returns compiles newest first plus the total row count.
func (db *DB) ListCompiles(limit, offset int) ([]CompileRow, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM compiles`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count compiles: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT id, source, checksum, output, texture_base, frame_rate, keyframes, segments,
			(SELECT count(*) FROM skips WHERE compile_id = compiles.id), created_at
		FROM compiles
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list compiles: %w", err)
	}
	defer rows.Close()

	var out []CompileRow
	for rows.Next() {
		r, err := scanCompile(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// GetCompile returns one compile with its skipped keyframes.
func (db *DB) GetCompile(id int64) (*CompileRow, error) {
	row := db.conn.QueryRow(`
		SELECT id, source, checksum, output, texture_base, frame_rate, keyframes, segments,
			(SELECT count(*) FROM skips WHERE compile_id = compiles.id), created_at
		FROM compiles WHERE id = ?
	`, id)
	r, err := scanCompile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}

	rows, err := db.conn.Query(`SELECT position, time, mouth FROM skips WHERE compile_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("index: skips: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s models.Skip
		if err := rows.Scan(&s.Index, &s.Keyframe.Time, &s.Keyframe.Mouth); err != nil {
			return nil, err
		}
		r.Skips = append(r.Skips, s)
	}
	return &r, rows.Err()
}

// LastChecksum returns the checksum of the newest compile of source, or
// empty string if it was never compiled.
func (db *DB) LastChecksum(source string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM compiles WHERE source = ? ORDER BY id DESC LIMIT 1`, source).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: last checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns the newest checksum per source.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`
		SELECT c.source, c.checksum FROM compiles c
		JOIN (SELECT source, max(id) AS id FROM compiles GROUP BY source) latest ON latest.id = c.id
	`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var src, cs string
		if err := rows.Scan(&src, &cs); err != nil {
			return nil, err
		}
		out[src] = cs
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCompile(s scanner) (CompileRow, error) {
	var r CompileRow
	err := s.Scan(&r.ID, &r.Source, &r.Checksum, &r.Output, &r.TextureBase,
		&r.FrameRate, &r.Keyframes, &r.Segments, &r.Skipped, &r.CreatedAt)
	return r, err
}
