package plan

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPendingEntryNames(t *testing.T) {
	if got := PendingEntryName(7); got != "0007-0007.md" {
		t.Errorf("PendingEntryName(7) = %q", got)
	}

	cases := []struct {
		name string
		id   int
		ok   bool
	}{
		{"0001-0001.md", 1, true},
		{"0042-0042.md", 42, true},
		{"1-1.md", 0, false},
		{"0001-0001.txt", 0, false},
		{"0001.md", 0, false},
		{"abcd-0001.md", 0, false},
	}
	for _, c := range cases {
		id, ok := ParsePendingEntryName(c.name)
		if ok != c.ok || id != c.id {
			t.Errorf("ParsePendingEntryName(%q) = %d,%v; want %d,%v", c.name, id, ok, c.id, c.ok)
		}
	}
}

func TestQueueEntryRoundTrip(t *testing.T) {
	in := QueueEntry{
		TicketID: 3,
		Ticket:   "0003-do-things.md",
		Branch:   "scriptorium/ticket-0003",
		Worktree: "/repo/.scriptorium/worktrees/0003",
		Summary:  "implemented the things",
	}
	out := ParseQueueEntry(FormatQueueEntry(in))
	if out != in {
		t.Errorf("round trip mismatch:\n in=%+v\nout=%+v", in, out)
	}
}

func TestListPendingFIFO(t *testing.T) {
	planDir := t.TempDir()
	dir := filepath.Join(planDir, PendingDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"0002-0002.md", "0001-0001.md", ".gitkeep", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	names, err := ListPending(planDir)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(names) != 2 || names[0] != "0001-0001.md" || names[1] != "0002-0002.md" {
		t.Errorf("expected FIFO order of valid entries, got %v", names)
	}
}

func TestActiveFile(t *testing.T) {
	planDir := t.TempDir()

	// Missing file reads as idle.
	active, err := ReadActive(planDir)
	if err != nil || active != "" {
		t.Fatalf("expected idle, got %q, %v", active, err)
	}

	if err := WriteActive(planDir, PendingDir+"/0001-0001.md"); err != nil {
		t.Fatalf("WriteActive: %v", err)
	}
	active, err = ReadActive(planDir)
	if err != nil {
		t.Fatalf("ReadActive: %v", err)
	}
	if active != PendingDir+"/0001-0001.md" {
		t.Errorf("unexpected active entry %q", active)
	}

	if err := WriteActive(planDir, ""); err != nil {
		t.Fatalf("clear active: %v", err)
	}
	active, err = ReadActive(planDir)
	if err != nil || active != "" {
		t.Errorf("expected cleared, got %q, %v", active, err)
	}
}
