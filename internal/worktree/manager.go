// Package worktree provides git worktree isolation for ticket branches.
// Each assigned ticket gets its own checkout (branch + directory) so the
// coding agent never mutates the main repository checkout directly.
package worktree

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/monofuel/scriptorium/internal/gitcmd"
)

// worktreeRoot is where ticket worktrees live, relative to the repo root.
const worktreeRoot = ".scriptorium/worktrees"

// TicketBranch returns the branch name for a ticket id.
func TicketBranch(ticketID int) string {
	return fmt.Sprintf("scriptorium/ticket-%04d", ticketID)
}

// TicketPath returns the deterministic worktree path for a ticket id.
func TicketPath(repoDir string, ticketID int) string {
	return filepath.Join(repoDir, worktreeRoot, fmt.Sprintf("%04d", ticketID))
}

// Manager creates and removes per-ticket worktrees in one repository.
type Manager struct {
	repoDir string
	logger  *log.Logger
}

// NewManager creates a worktree Manager for the repository at repoDir.
func NewManager(repoDir string, logger *log.Logger) *Manager {
	return &Manager{repoDir: repoDir, logger: logger}
}

// Create branches scriptorium/ticket-<NNNN> off master and adds a worktree
// for it at the deterministic ticket path. A stale branch or worktree left
// by a previous run is pruned first.
func (m *Manager) Create(ticketID int) (branch, path string, err error) {
	branch = TicketBranch(ticketID)
	path = TicketPath(m.repoDir, ticketID)

	if _, statErr := os.Stat(path); statErr == nil {
		m.logger.Printf("WorktreeManager: removing stale worktree at %s", path)
		if _, rmErr := gitcmd.Run(m.repoDir, "worktree", "remove", "--force", path); rmErr != nil {
			_ = os.RemoveAll(path)
			_, _ = gitcmd.Run(m.repoDir, "worktree", "prune")
		}
	}
	if gitcmd.BranchExists(m.repoDir, branch) {
		_, _ = gitcmd.Run(m.repoDir, "worktree", "prune")
		if _, delErr := gitcmd.Run(m.repoDir, "branch", "-D", branch); delErr != nil {
			m.logger.Printf("WorktreeManager: warning: could not delete stale branch %s: %v", branch, delErr)
		}
	}

	if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
		return "", "", fmt.Errorf("create worktree parent dir: %w", mkErr)
	}
	if _, err = gitcmd.Run(m.repoDir, "worktree", "add", "-b", branch, path, "master"); err != nil {
		return "", "", err
	}
	m.logger.Printf("WorktreeManager: created worktree for ticket %04d at %s (branch %s)", ticketID, path, branch)
	return branch, path, nil
}

// Remove deletes a ticket worktree and its branch. Git removal failures
// fall back to manual directory cleanup plus a prune.
func (m *Manager) Remove(ticketID int) error {
	branch := TicketBranch(ticketID)
	path := TicketPath(m.repoDir, ticketID)

	if _, err := gitcmd.Run(m.repoDir, "worktree", "remove", "--force", path); err != nil {
		m.logger.Printf("WorktreeManager: git worktree remove failed, trying manual: %v", err)
		if rmErr := os.RemoveAll(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("remove worktree dir: %w (git: %v)", rmErr, err)
		}
	}
	_, _ = gitcmd.Run(m.repoDir, "worktree", "prune")

	if gitcmd.BranchExists(m.repoDir, branch) {
		if _, err := gitcmd.Run(m.repoDir, "branch", "-D", branch); err != nil {
			m.logger.Printf("WorktreeManager: warning: could not delete branch %s: %v", branch, err)
		}
	}
	m.logger.Printf("WorktreeManager: removed worktree for ticket %04d", ticketID)
	return nil
}

// RemoveWorktreeOnly removes the checkout directory but keeps the branch.
// Used after a successful merge, where the branch history stays reachable
// from master.
func (m *Manager) RemoveWorktreeOnly(ticketID int) {
	path := TicketPath(m.repoDir, ticketID)
	if _, err := gitcmd.Run(m.repoDir, "worktree", "remove", "--force", path); err != nil {
		_ = os.RemoveAll(path)
		_, _ = gitcmd.Run(m.repoDir, "worktree", "prune")
	}
}
