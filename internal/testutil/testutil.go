// Package testutil provides shared test helpers for databases, output
// directories and mapping files.
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/lectorlips/internal/index"
	"github.com/starford/lectorlips/internal/storage"
	"github.com/starford/lectorlips/internal/viseme"
)

// SampleKeyframes is a minimal export with two keyframes at 24 fps.
const SampleKeyframes = "Units Per Second 24\nTime Remap\nFrame\tseconds\n0.0 0\n12.0 1\n"

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "lectorlips-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestDir creates a temporary directory with a storage.Provider.
func TestDir(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// TestMapping writes a 15-entry mapping ("0.png".."14.png") into dir and
// returns its path.
func TestMapping(t *testing.T, dir string) string {
	t.Helper()
	suffixes := make([]string, viseme.Count)
	for i := range suffixes {
		suffixes[i] = fmt.Sprintf("%d.png", i)
	}
	m, err := viseme.New(suffixes)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, viseme.DefaultFileName)
	if err := viseme.Write(path, m); err != nil {
		t.Fatal(err)
	}
	return path
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
