package config

import (
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	write := func(body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, JSONFile), []byte(body), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	write(`{"models":{"coding":"before"}}`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	w := NewWatcher(dir, cfg, log.New(os.Stderr, "[test] ", log.LstdFlags))
	go w.Start()
	defer w.Stop()

	// Give the watch a moment to establish before mutating the file.
	time.Sleep(200 * time.Millisecond)
	write(`{"models":{"coding":"after"}}`)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if w.Current().Models.Coding == "after" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("config change not picked up; still %q", w.Current().Models.Coding)
}

func TestWatcherKeepsConfigOnParseError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, JSONFile), []byte(`{"models":{"coding":"good"}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	w := NewWatcher(dir, cfg, log.New(os.Stderr, "[test] ", log.LstdFlags))

	// Drive reload directly; a malformed file must not clobber the last
	// good config.
	if err := os.WriteFile(filepath.Join(dir, JSONFile), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write broken config: %v", err)
	}
	w.reload()
	if got := w.Current().Models.Coding; got != "good" {
		t.Errorf("expected previous config kept, got %q", got)
	}
}
