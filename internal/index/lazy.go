package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Lazy is a History that opens the database on first use, so commands
// that never record or read history leave no database file behind.
type Lazy struct {
	path string

	mu  sync.Mutex
	db  *DB
	err error
}

var _ History = (*Lazy)(nil)

// NewLazy returns a History backed by the database at path. Nothing is
// created until a method is called.
func NewLazy(path string) *Lazy {
	return &Lazy{path: path}
}

func (l *Lazy) open() (*DB, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db != nil || l.err != nil {
		return l.db, l.err
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		l.err = fmt.Errorf("index: create dir: %w", err)
		return nil, l.err
	}
	l.db, l.err = Open(l.path)
	return l.db, l.err
}

// Opened reports whether the database has been opened.
func (l *Lazy) Opened() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db != nil
}

func (l *Lazy) RecordCompile(row CompileRow) (int64, error) {
	db, err := l.open()
	if err != nil {
		return 0, err
	}
	return db.RecordCompile(row)
}

func (l *Lazy) ListCompiles(limit, offset int) ([]CompileRow, int, error) {
	db, err := l.open()
	if err != nil {
		return nil, 0, err
	}
	return db.ListCompiles(limit, offset)
}

func (l *Lazy) GetCompile(id int64) (*CompileRow, error) {
	db, err := l.open()
	if err != nil {
		return nil, err
	}
	return db.GetCompile(id)
}

func (l *Lazy) LastChecksum(source string) (string, error) {
	db, err := l.open()
	if err != nil {
		return "", err
	}
	return db.LastChecksum(source)
}

func (l *Lazy) AllChecksums() (map[string]string, error) {
	db, err := l.open()
	if err != nil {
		return nil, err
	}
	return db.AllChecksums()
}

// Close closes the database if it was opened.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}
