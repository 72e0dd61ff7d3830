package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"lectern/internal/timeindex"
)

// WriteFile fills path with size bytes of filler so size-based branches can
// be exercised without real media. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		t.Fatalf("size %s: %v", path, err)
	}
}

// SeedTimeIndex writes rows to a fresh time index at path.
func SeedTimeIndex(t testing.TB, path string, rows []timeindex.Row) *timeindex.Store {
	t.Helper()

	store := timeindex.New(path)
	if err := store.Overwrite(rows); err != nil {
		t.Fatalf("seed time index: %v", err)
	}
	return store
}
