package worktree

import (
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/monofuel/scriptorium/internal/gitcmd"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	git(t, dir, "init", "-b", "master")
	git(t, dir, "config", "user.email", "test@example.com")
	git(t, dir, "config", "user.name", "Test")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# test\n"), 0o644); err != nil {
		t.Fatalf("write README: %v", err)
	}
	git(t, dir, "add", "-A")
	git(t, dir, "commit", "-m", "initial")
	return dir
}

func git(t *testing.T, dir string, args ...string) {
	t.Helper()
	if out, err := gitcmd.Run(dir, args...); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func testManager(t *testing.T, repo string) *Manager {
	t.Helper()
	return NewManager(repo, log.New(os.Stderr, "[test] ", log.LstdFlags))
}

func TestNaming(t *testing.T) {
	if got := TicketBranch(7); got != "scriptorium/ticket-0007" {
		t.Errorf("TicketBranch(7) = %q", got)
	}
	if got := TicketPath("/repo", 7); got != "/repo/.scriptorium/worktrees/0007" {
		t.Errorf("TicketPath = %q", got)
	}
}

func TestCreateAndRemove(t *testing.T) {
	repo := initTestRepo(t)
	m := testManager(t, repo)

	branch, path, err := m.Create(1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if branch != "scriptorium/ticket-0001" {
		t.Errorf("unexpected branch %q", branch)
	}
	if path != TicketPath(repo, 1) {
		t.Errorf("unexpected path %q", path)
	}
	if _, err := os.Stat(filepath.Join(path, "README.md")); err != nil {
		t.Errorf("worktree checkout incomplete: %v", err)
	}
	if !gitcmd.BranchExists(repo, branch) {
		t.Error("expected ticket branch to exist")
	}

	if err := m.Remove(1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected worktree dir to be removed")
	}
	if gitcmd.BranchExists(repo, branch) {
		t.Error("expected ticket branch to be deleted")
	}
}

func TestCreateHandlesStaleBranch(t *testing.T) {
	repo := initTestRepo(t)
	m := testManager(t, repo)

	git(t, repo, "branch", "scriptorium/ticket-0002")

	_, path, err := m.Create(2)
	if err != nil {
		t.Fatalf("Create with stale branch: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("worktree should exist: %v", err)
	}
	if err := m.Remove(2); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}

func TestCreateHandlesStaleWorktree(t *testing.T) {
	repo := initTestRepo(t)
	m := testManager(t, repo)

	if _, _, err := m.Create(3); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	// Simulate a crashed run: the worktree and branch are left behind.
	if _, _, err := m.Create(3); err != nil {
		t.Fatalf("second Create over stale state: %v", err)
	}
	if err := m.Remove(3); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}

func TestRemoveWorktreeOnlyKeepsBranch(t *testing.T) {
	repo := initTestRepo(t)
	m := testManager(t, repo)

	branch, path, err := m.Create(4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m.RemoveWorktreeOnly(4)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected worktree dir to be removed")
	}
	if !gitcmd.BranchExists(repo, branch) {
		t.Error("expected branch to survive RemoveWorktreeOnly")
	}
}
