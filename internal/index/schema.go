// Package index provides the SQLite-backed compile history.
package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS compiles (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	source       TEXT    NOT NULL,
	checksum     TEXT    NOT NULL DEFAULT '',
	output       TEXT    NOT NULL DEFAULT '',
	texture_base TEXT    NOT NULL DEFAULT '',
	frame_rate   REAL    NOT NULL,
	keyframes    INTEGER NOT NULL,
	segments     INTEGER NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS skips (
	compile_id INTEGER NOT NULL REFERENCES compiles(id) ON DELETE CASCADE,
	position   INTEGER NOT NULL,
	time       REAL    NOT NULL,
	mouth      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_compiles_source ON compiles(source);
CREATE INDEX IF NOT EXISTS idx_skips_compile ON skips(compile_id);
`

// DB wraps a sql.DB with history-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
