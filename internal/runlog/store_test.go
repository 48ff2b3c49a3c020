package runlog

import (
	"path/filepath"
	"testing"
	"time"
)

func TestRecordAndRecent(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "runs.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	base := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	attempts := []Attempt{
		{TicketID: "0001-first", Attempt: 1, Model: "gpt-5-codex", ExitCode: 1, TimeoutKind: "no-output", Duration: 90 * time.Second, LogPath: "/tmp/a1.jsonl", StartedAt: base},
		{TicketID: "0001-first", Attempt: 2, Model: "gpt-5-codex", ExitCode: 0, TimeoutKind: "none", Duration: 3 * time.Minute, LogPath: "/tmp/a2.jsonl", StartedAt: base.Add(2 * time.Minute)},
	}
	for _, a := range attempts {
		if err := store.Record(a); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(got))
	}
	// Newest first.
	if got[0].Attempt != 2 || got[1].Attempt != 1 {
		t.Errorf("expected newest first, got %+v", got)
	}
	if got[0].ExitCode != 0 || got[0].TimeoutKind != "none" {
		t.Errorf("row fields lost: %+v", got[0])
	}
	if got[1].Duration != 90*time.Second {
		t.Errorf("duration lost: %s", got[1].Duration)
	}
	if !got[1].StartedAt.Equal(base) {
		t.Errorf("started_at lost: %s", got[1].StartedAt)
	}
}

func TestRecentLimit(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "runs.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	for i := 1; i <= 5; i++ {
		a := Attempt{TicketID: "0001-x", Attempt: i, Model: "gpt-5", TimeoutKind: "none", StartedAt: time.Now()}
		if err := store.Record(a); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	got, err := store.Recent(3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3, got %d", len(got))
	}
}
