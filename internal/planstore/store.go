// Package planstore reads and writes orchestration state on the plan branch.
// Every mutation goes through a short-lived git worktree: add a worktree for
// the plan branch at a temp directory, run the caller's operation, and
// force-remove the worktree on every exit path. Commits happen only when the
// index is dirty, so the branch history never carries empty commits.
package planstore

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/monofuel/scriptorium/internal/gitcmd"
)

// PlanBranch is the branch that owns all orchestration state.
const PlanBranch = "scriptorium/plan"

// ErrPlanBranchMissing is returned when the plan branch does not exist in
// the repository.
var ErrPlanBranchMissing = errors.New("plan branch " + PlanBranch + " missing")

// Store is a handle on one repository's plan branch.
type Store struct {
	repoDir string
	logger  *log.Logger
}

// New creates a Store for the repository at repoDir.
func New(repoDir string, logger *log.Logger) *Store {
	return &Store{repoDir: repoDir, logger: logger}
}

// RepoDir returns the main repository checkout path.
func (s *Store) RepoDir() string {
	return s.repoDir
}

// WithWorktree opens a scoped plan worktree, runs fn with its path, and
// removes the worktree on all exit paths. Returns ErrPlanBranchMissing when
// the plan branch does not exist.
func (s *Store) WithWorktree(fn func(planDir string) error) error {
	if !gitcmd.BranchExists(s.repoDir, PlanBranch) {
		return ErrPlanBranchMissing
	}
	dir, err := os.MkdirTemp("", "scriptorium-plan-")
	if err != nil {
		return fmt.Errorf("create plan worktree dir: %w", err)
	}
	// worktree add refuses a pre-existing directory; hand git the path only.
	if err := os.Remove(dir); err != nil {
		return fmt.Errorf("prepare plan worktree dir: %w", err)
	}
	if _, err := gitcmd.Run(s.repoDir, "worktree", "add", dir, PlanBranch); err != nil {
		return err
	}
	defer func() {
		if _, rmErr := gitcmd.Run(s.repoDir, "worktree", "remove", "--force", dir); rmErr != nil {
			s.logger.Printf("PlanStore: worktree remove failed, cleaning manually: %v", rmErr)
			_ = os.RemoveAll(dir)
			_, _ = gitcmd.Run(s.repoDir, "worktree", "prune")
		}
	}()
	return fn(dir)
}

// ReadFile reads a file at a path relative to the plan root without opening
// a worktree, via git show.
func (s *Store) ReadFile(rel string) (string, error) {
	if !gitcmd.BranchExists(s.repoDir, PlanBranch) {
		return "", ErrPlanBranchMissing
	}
	out, err := gitcmd.Show(s.repoDir, PlanBranch, filepath.ToSlash(rel))
	if err != nil {
		return "", err
	}
	return out, nil
}

// ListMarkdown lists the .md files committed on the plan branch, sorted
// lexicographically by full path.
func (s *Store) ListMarkdown() ([]string, error) {
	if !gitcmd.BranchExists(s.repoDir, PlanBranch) {
		return nil, ErrPlanBranchMissing
	}
	paths, err := gitcmd.LsTree(s.repoDir, PlanBranch)
	if err != nil {
		return nil, err
	}
	var md []string
	for _, p := range paths {
		if strings.HasSuffix(strings.ToLower(p), ".md") {
			md = append(md, p)
		}
	}
	sort.Strings(md)
	return md, nil
}

// CommitAll stages everything in the plan worktree and commits with the
// given message when the index is dirty. Reports whether a commit was made.
func CommitAll(planDir, message string) (bool, error) {
	if _, err := gitcmd.Run(planDir, "add", "-A"); err != nil {
		return false, err
	}
	// diff --cached --quiet exits 1 when there are staged changes.
	if gitcmd.Ok(planDir, "diff", "--cached", "--quiet") {
		return false, nil
	}
	if _, err := gitcmd.Run(planDir, "commit", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}

// EnsureLayout creates the plan directory skeleton (tickets states, queue,
// decisions) with .gitkeep files inside an open plan worktree.
func EnsureLayout(planDir string) error {
	dirs := []string{
		"areas",
		"tickets/open",
		"tickets/in-progress",
		"tickets/done",
		"queue/merge/pending",
		"decisions",
	}
	for _, d := range dirs {
		abs := filepath.Join(planDir, d)
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
		keep := filepath.Join(abs, ".gitkeep")
		if _, err := os.Stat(keep); os.IsNotExist(err) {
			if err := os.WriteFile(keep, nil, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", keep, err)
			}
		}
	}
	return nil
}
