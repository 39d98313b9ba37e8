package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// SetupTestStorage creates a temporary directory for spooled uploads.
// Returns the directory path and a cleanup function that should be deferred.
func SetupTestStorage(t *testing.T) (string, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "propresize-test-*")
	if err != nil {
		t.Fatalf("failed to create test storage directory: %v", err)
	}

	cleanup := func() {
		os.RemoveAll(dir)
	}

	return dir, cleanup
}

// WriteAgedFile writes name under dir and backdates its mtime by age.
func WriteAgedFile(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	old := time.Now().Add(-age)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes %s: %v", name, err)
	}
	return path
}
