package release

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireCacheLock(t *testing.T) {
	t.Run("creates lock file", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "v1.2.0")

		lock, err := AcquireCacheLock(context.Background(), dir)
		if err != nil {
			t.Fatalf("AcquireCacheLock failed: %v", err)
		}
		defer lock.Release()

		data, err := os.ReadFile(filepath.Join(dir, lockFileName))
		if err != nil {
			t.Fatalf("lock file not created: %v", err)
		}
		if len(data) == 0 {
			t.Error("lock file should contain metadata")
		}
	})

	t.Run("prevents concurrent locks", func(t *testing.T) {
		dir := t.TempDir()

		lock1, err := AcquireCacheLock(context.Background(), dir)
		if err != nil {
			t.Fatalf("first AcquireCacheLock failed: %v", err)
		}
		defer lock1.Release()

		if _, err := AcquireCacheLock(context.Background(), dir); !errors.Is(err, ErrLockExists) {
			t.Errorf("expected ErrLockExists, got %v", err)
		}
	})

	t.Run("replaces stale lock", func(t *testing.T) {
		dir := t.TempDir()
		lockPath := filepath.Join(dir, lockFileName)
		if err := os.WriteFile(lockPath, []byte("pid=1\n"), 0600); err != nil {
			t.Fatal(err)
		}
		old := time.Now().Add(-2 * StaleLockThreshold)
		if err := os.Chtimes(lockPath, old, old); err != nil {
			t.Fatal(err)
		}

		lock, err := AcquireCacheLock(context.Background(), dir)
		if err != nil {
			t.Fatalf("AcquireCacheLock over stale lock failed: %v", err)
		}
		lock.Release()
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := AcquireCacheLock(ctx, t.TempDir()); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestCacheLockRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireCacheLock(context.Background(), dir)
	if err != nil {
		t.Fatalf("AcquireCacheLock failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, lockFileName)); !os.IsNotExist(err) {
		t.Error("lock file should be removed")
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release failed: %v", err)
	}

	// Lock can be reacquired after release
	lock2, err := AcquireCacheLock(context.Background(), dir)
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	lock2.Release()
}

func TestDownloadAsset_Locked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("apk"))
	}))
	defer server.Close()

	d := NewDownloader(t.TempDir())
	asset := &Asset{Name: "app.apk", Size: 3, BrowserDownloadURL: server.URL}

	lock, err := AcquireCacheLock(context.Background(), filepath.Dir(d.CachePath("v1", asset)))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := d.DownloadAsset(context.Background(), "v1", asset); !errors.Is(err, ErrLockExists) {
		t.Errorf("DownloadAsset() error = %v, want ErrLockExists", err)
	}

	lock.Release()
	if _, err := d.DownloadAsset(context.Background(), "v1", asset); err != nil {
		t.Errorf("DownloadAsset() after release error = %v", err)
	}
}
