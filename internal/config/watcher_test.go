package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GabrielNunesIT/cwlogs-connector/internal/testutil"
)

// replaceFile swaps content in with a rename, the way editors save.
func replaceFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("failed to rename temp file: %v", err)
	}
}

func TestConfigWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("loglevel: info\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewConfigWatcher(path, testutil.NewTestLogger())
	w.SetDebounce(10 * time.Millisecond)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0644); err != nil {
		t.Fatalf("failed to write other file: %v", err)
	}
	replaceFile(t, path, "loglevel: debug\n")

	select {
	case cfg := <-w.Changes():
		if cfg.LogLevel != "debug" {
			t.Errorf("expected reloaded loglevel=debug, got %s", cfg.LogLevel)
		}
		if w.LastConfig() != cfg {
			t.Error("expected LastConfig to return the reloaded config")
		}
	case err := <-w.Errors():
		t.Fatalf("unexpected reload error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestConfigWatcher_InvalidConfigReportsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("loglevel: info\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewConfigWatcher(path, testutil.NewTestLogger())
	w.SetDebounce(10 * time.Millisecond)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	replaceFile(t, path, "pipeline:\n  workers: 0\n")

	select {
	case <-w.Errors():
	case cfg := <-w.Changes():
		t.Fatalf("expected validation error, got config %+v", cfg)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload error")
	}
	if w.LastConfig() != nil {
		t.Error("expected no successful config")
	}
}

func TestConfigWatcher_MissingDirectory(t *testing.T) {
	w := NewConfigWatcher("/nonexistent/dir/config.yaml", testutil.NewTestLogger())
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected error watching a missing directory")
	}
}

func TestConfigWatcher_UnchangedSaveIsIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("loglevel: info\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewConfigWatcher(path, testutil.NewTestLogger())
	w.SetDebounce(10 * time.Millisecond)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Same settings, different text.
	replaceFile(t, path, "# touched\nloglevel: info\n")

	select {
	case cfg := <-w.Changes():
		t.Fatalf("expected no reload for an unchanged config, got %+v", cfg)
	case err := <-w.Errors():
		t.Fatalf("unexpected reload error: %v", err)
	case <-time.After(300 * time.Millisecond):
	}
	if w.LastConfig() != nil {
		t.Error("expected no published config")
	}
}
