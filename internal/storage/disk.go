package storage

import (
	"errors"
	"io/fs"
	"os"
)

// SQLiteFiles returns the database file followed by its WAL and shared-memory sidecars.
func SQLiteFiles(dbPath string) []string {
	if dbPath == "" || dbPath == ":memory:" {
		return nil
	}
	return []string{dbPath, dbPath + "-wal", dbPath + "-shm"}
}

// SQLiteDiskUsage returns the bytes held on disk by the database at dbPath.
// Files that do not exist yet count as zero.
func SQLiteDiskUsage(dbPath string) (int64, error) {
	var total int64
	for _, p := range SQLiteFiles(dbPath) {
		info, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}
