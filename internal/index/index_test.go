package index

import (
	"errors"
	"os"
	"testing"

	"github.com/starford/lectorlips/internal/apperr"
	"github.com/starford/lectorlips/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "lectorlips-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM compiles`).Scan(&count); err != nil {
		t.Fatalf("compiles table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM skips`).Scan(&count); err != nil {
		t.Fatalf("skips table missing: %v", err)
	}
}

func TestRecordAndGetCompile(t *testing.T) {
	db := testDB(t)
	id, err := db.RecordCompile(CompileRow{
		Source:      "talk.txt",
		Checksum:    "abc",
		Output:      "2026-01-02_03.04.05_output.txt",
		TextureBase: "b.a:mouths/",
		FrameRate:   24,
		Keyframes:   3,
		Segments:    2,
		Skips:       []models.Skip{{Index: 1, Keyframe: models.Keyframe{Time: 12, Mouth: 20}}},
	})
	if err != nil {
		t.Fatalf("RecordCompile: %v", err)
	}

	got, err := db.GetCompile(id)
	if err != nil {
		t.Fatalf("GetCompile: %v", err)
	}
	if got.Source != "talk.txt" || got.Segments != 2 || got.FrameRate != 24 {
		t.Errorf("row = %+v", got)
	}
	if len(got.Skips) != 1 || got.Skips[0].Keyframe.Mouth != 20 || got.Skips[0].Index != 1 {
		t.Errorf("skips = %+v", got.Skips)
	}
	if got.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", got.Skipped)
	}

	rows, _, err := db.ListCompiles(10, 0)
	if err != nil || len(rows) != 1 || rows[0].Skipped != 1 || rows[0].Skips != nil {
		t.Errorf("list = %+v, %v", rows, err)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
}

func TestGetCompile_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetCompile(42); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListCompiles_NewestFirst(t *testing.T) {
	db := testDB(t)
	for _, src := range []string{"a.txt", "b.txt", "c.txt"} {
		if _, err := db.RecordCompile(CompileRow{Source: src, FrameRate: 24, Keyframes: 1, Segments: 1}); err != nil {
			t.Fatal(err)
		}
	}
	rows, total, err := db.ListCompiles(2, 0)
	if err != nil {
		t.Fatalf("ListCompiles: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(rows) != 2 || rows[0].Source != "c.txt" || rows[1].Source != "b.txt" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestLastChecksum(t *testing.T) {
	db := testDB(t)
	cs, err := db.LastChecksum("never.txt")
	if err != nil || cs != "" {
		t.Errorf("LastChecksum(never) = %q, %v", cs, err)
	}
	_, _ = db.RecordCompile(CompileRow{Source: "x.txt", Checksum: "1", FrameRate: 24})
	_, _ = db.RecordCompile(CompileRow{Source: "x.txt", Checksum: "2", FrameRate: 24})
	cs, _ = db.LastChecksum("x.txt")
	if cs != "2" {
		t.Errorf("checksum = %q, want 2", cs)
	}
}

func TestAllChecksums_LatestPerSource(t *testing.T) {
	db := testDB(t)
	_, _ = db.RecordCompile(CompileRow{Source: "a.txt", Checksum: "old", FrameRate: 24})
	_, _ = db.RecordCompile(CompileRow{Source: "b.txt", Checksum: "b1", FrameRate: 24})
	_, _ = db.RecordCompile(CompileRow{Source: "a.txt", Checksum: "new", FrameRate: 24})

	all, err := db.AllChecksums()
	if err != nil {
		t.Fatalf("AllChecksums: %v", err)
	}
	if all["a.txt"] != "new" || all["b.txt"] != "b1" || len(all) != 2 {
		t.Errorf("checksums = %v", all)
	}
}
