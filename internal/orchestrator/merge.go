package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/monofuel/scriptorium/internal/gitcmd"
	"github.com/monofuel/scriptorium/internal/plan"
	"github.com/monofuel/scriptorium/internal/planstore"
)

// failureExcerptLen bounds the diagnostic excerpt appended to reopened
// tickets.
const failureExcerptLen = 1200

// ProcessMergeQueue drains at most one pending entry. Returns true when a
// queue entry was worked on (including a red-master halt or a stale-state
// convergence), false when the queue was empty. Single-flight is enforced
// by queue/merge/active.md on the plan branch.
func (o *Orchestrator) ProcessMergeQueue() (bool, error) {
	processed := false
	err := o.store.WithWorktree(func(planDir string) error {
		active, err := plan.ReadActive(planDir)
		if err != nil {
			return err
		}

		// Step 1: resume the active entry when its pending file survives;
		// otherwise pick the FIFO head.
		entryRel := ""
		if active != "" {
			if fileExists(filepath.Join(planDir, filepath.FromSlash(active))) {
				entryRel = active
			}
		}
		if entryRel == "" {
			pending, err := plan.ListPending(planDir)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				if active != "" {
					// A crash left active.md naming a deleted entry; converge.
					if err := plan.WriteActive(planDir, ""); err != nil {
						return err
					}
					if _, err := planstore.CommitAll(planDir, "scriptorium: clear stale merge entry"); err != nil {
						return err
					}
					o.logger.Printf("MergeQueue: cleared stale active entry %s", active)
					processed = true
				}
				return nil
			}
			entryRel = plan.PendingDir + "/" + pending[0]
		}

		// Step 2: record the chosen entry as active.
		if active != entryRel {
			if err := plan.WriteActive(planDir, entryRel); err != nil {
				return err
			}
			if _, err := planstore.CommitAll(planDir, "scriptorium: set active merge entry"); err != nil {
				return err
			}
		}
		processed = true

		data, err := os.ReadFile(filepath.Join(planDir, filepath.FromSlash(entryRel)))
		if err != nil {
			return fmt.Errorf("read queue entry %s: %w", entryRel, err)
		}
		entry := plan.ParseQueueEntry(string(data))

		// Step 3: master health gate. Red master halts the queue; state is
		// left as-is for the next tick.
		if ok, out := o.runHealth(); !ok {
			o.logger.Printf("MergeQueue: master is red, queue halted: %s", firstLine(out))
			return nil
		}

		ticketRel := filepath.Join(plan.TicketsDir, plan.StateProgress, entry.Ticket)
		if !fileExists(filepath.Join(planDir, ticketRel)) {
			// The ticket already left in-progress (crash between moving the
			// ticket and clearing the queue); finish the queue bookkeeping.
			_ = os.Remove(filepath.Join(planDir, filepath.FromSlash(entryRel)))
			if err := plan.WriteActive(planDir, ""); err != nil {
				return err
			}
			if _, err := planstore.CommitAll(planDir, fmt.Sprintf("scriptorium: merge ticket %04d", entry.TicketID)); err != nil {
				return err
			}
			o.logger.Printf("MergeQueue: converged partially-merged ticket %04d", entry.TicketID)
			return nil
		}

		// Step 4: bring the ticket branch up to date with master.
		if out, mergeErr := gitcmd.Run(entry.Worktree, "merge", "master", "--no-edit"); mergeErr != nil {
			_, _ = gitcmd.Run(entry.Worktree, "merge", "--abort")
			o.logger.Printf("MergeQueue: ticket %04d conflicts with master, reopening", entry.TicketID)
			return o.reopenTicket(planDir, entry, "CONFLICT", out)
		}

		// Step 5: merge the ticket branch into master.
		preMerge, err := gitcmd.Run(o.repoDir, "rev-parse", "HEAD")
		if err != nil {
			return err
		}
		preMerge = strings.TrimSpace(preMerge)
		if out, mergeErr := gitcmd.Run(o.repoDir, "merge", entry.Branch, "--no-ff", "--no-edit"); mergeErr != nil {
			_, _ = gitcmd.Run(o.repoDir, "merge", "--abort")
			o.logger.Printf("MergeQueue: merging ticket %04d into master failed, reopening", entry.TicketID)
			return o.reopenTicket(planDir, entry, "CONFLICT", out)
		}

		// Step 6: post-merge health gate. A red result rolls master back.
		if ok, out := o.runHealth(); !ok {
			_, _ = gitcmd.Run(o.repoDir, "reset", "--hard", preMerge)
			o.logger.Printf("MergeQueue: ticket %04d broke master health checks, rolled back", entry.TicketID)
			return o.reopenTicket(planDir, entry, "FAIL", out)
		}

		// Step 7: success. Move the ticket to done, drop the queue entry,
		// and clear active, all in one commit.
		doneRel := filepath.Join(plan.TicketsDir, plan.StateDone, entry.Ticket)
		if err := os.Rename(filepath.Join(planDir, ticketRel), filepath.Join(planDir, doneRel)); err != nil {
			return fmt.Errorf("move ticket to done: %w", err)
		}
		if err := os.Remove(filepath.Join(planDir, filepath.FromSlash(entryRel))); err != nil {
			return fmt.Errorf("remove pending entry: %w", err)
		}
		if err := plan.WriteActive(planDir, ""); err != nil {
			return err
		}
		if _, err := planstore.CommitAll(planDir, fmt.Sprintf("scriptorium: merge ticket %04d", entry.TicketID)); err != nil {
			return err
		}
		o.worktrees.RemoveWorktreeOnly(entry.TicketID)
		o.logger.Printf("MergeQueue: merged ticket %04d into master", entry.TicketID)
		return nil
	})
	return processed, err
}

// reopenTicket moves a failed ticket back to open: worktree line stripped,
// failure section appended, pending entry removed, active cleared, one
// commit. The ticket worktree and branch are destroyed.
func (o *Orchestrator) reopenTicket(planDir string, entry plan.QueueEntry, tag, output string) error {
	srcRel := filepath.Join(plan.TicketsDir, plan.StateProgress, entry.Ticket)
	data, err := os.ReadFile(filepath.Join(planDir, srcRel))
	if err != nil {
		return fmt.Errorf("read in-progress ticket %s: %w", entry.Ticket, err)
	}
	body := plan.StripWorktree(string(data))
	body = plan.AppendFailure(body, entry.Summary, tag, tailString(output, failureExcerptLen))

	dstRel := filepath.Join(plan.TicketsDir, plan.StateOpen, entry.Ticket)
	if err := os.WriteFile(filepath.Join(planDir, dstRel), []byte(body), 0o644); err != nil {
		return fmt.Errorf("write reopened ticket: %w", err)
	}
	if err := os.Remove(filepath.Join(planDir, srcRel)); err != nil {
		return fmt.Errorf("remove in-progress ticket: %w", err)
	}
	_ = os.Remove(filepath.Join(planDir, plan.PendingDir, plan.PendingEntryName(entry.TicketID)))
	if err := plan.WriteActive(planDir, ""); err != nil {
		return err
	}
	if _, err := planstore.CommitAll(planDir, fmt.Sprintf("scriptorium: reopen ticket %04d after merge failure", entry.TicketID)); err != nil {
		return err
	}

	if err := o.worktrees.Remove(entry.TicketID); err != nil {
		o.logger.Printf("MergeQueue: warning: worktree cleanup for ticket %04d: %v", entry.TicketID, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func tailString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
