package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSQLiteDiskUsage(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "corpus.db")

	got, err := SQLiteDiskUsage(db)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("missing database: got %d bytes, want 0", got)
	}

	if err := os.WriteFile(db, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(db+"-wal", []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err = SQLiteDiskUsage(db)
	if err != nil {
		t.Fatal(err)
	}
	if got != 8 {
		t.Errorf("db+wal: got %d bytes, want 8", got)
	}

	if got, _ := SQLiteDiskUsage(":memory:"); got != 0 {
		t.Errorf(":memory: got %d bytes, want 0", got)
	}
}

func TestSQLiteFiles(t *testing.T) {
	files := SQLiteFiles("/tmp/x.db")
	if len(files) != 3 || files[1] != "/tmp/x.db-wal" || files[2] != "/tmp/x.db-shm" {
		t.Errorf("SQLiteFiles = %v", files)
	}
	if SQLiteFiles(":memory:") != nil {
		t.Error("in-memory database has no files")
	}
}
