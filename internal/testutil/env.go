// Package testutil provides fixtures for testing identitybridge in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SetupTestEnv points the identitybridge environment at a fresh temp
// directory and returns it. Tests never touch the user's config, release
// API credentials or a noisy log level.
//
// The cleanup function is automatically handled by t.TempDir(),
// so callers don't need to manually clean up.
func SetupTestEnv(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, "identitybridge")

	t.Setenv("IDENTITYBRIDGE_DIR", dir)
	t.Setenv("IDENTITYBRIDGE_LOG_LEVEL", "error")
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("HOME", filepath.Join(tmpDir, "home"))

	for _, d := range []string{dir, filepath.Join(tmpDir, "home")} {
		if err := os.MkdirAll(d, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", d, err)
		}
	}
	return dir
}
