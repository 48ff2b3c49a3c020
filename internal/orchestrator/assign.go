package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/monofuel/scriptorium/internal/plan"
	"github.com/monofuel/scriptorium/internal/planstore"
	"github.com/monofuel/scriptorium/internal/worktree"
)

// Assignment is the result of handing an open ticket to a coding agent.
type Assignment struct {
	TicketID         int
	Slug             string
	Branch           string
	Worktree         string
	InProgressTicket string // filename under tickets/in-progress/
}

// AssignOldestOpenTicket picks the lexicographically smallest open ticket,
// creates its branch and worktree off master, moves the ticket file to
// in-progress with the worktree recorded, and commits. Returns
// ErrNoTicketsAvailable when open/ is empty. Assignment is single-flight:
// the caller only invokes this when no ticket is in progress.
func (o *Orchestrator) AssignOldestOpenTicket() (*Assignment, error) {
	var a *Assignment
	err := o.store.WithWorktree(func(planDir string) error {
		names, err := plan.ListTickets(planDir, plan.StateOpen)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return ErrNoTicketsAvailable
		}
		name := names[0]
		id, ok := plan.TicketID(name)
		if !ok {
			return fmt.Errorf("open ticket %q has no numeric id prefix", name)
		}
		stem := strings.TrimSuffix(name, ".md")
		_, slug, _ := strings.Cut(stem, "-")

		branch, wtPath, err := o.worktrees.Create(id)
		if err != nil {
			return err
		}

		src := filepath.Join(planDir, plan.TicketsDir, plan.StateOpen, name)
		dst := filepath.Join(planDir, plan.TicketsDir, plan.StateProgress, name)
		body, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("read ticket %s: %w", name, err)
		}
		if err := os.WriteFile(dst, []byte(plan.AppendWorktree(string(body), wtPath)), 0o644); err != nil {
			return fmt.Errorf("write in-progress ticket: %w", err)
		}
		if err := os.Remove(src); err != nil {
			return fmt.Errorf("remove open ticket: %w", err)
		}
		if _, err := planstore.CommitAll(planDir, fmt.Sprintf("scriptorium: assign ticket %04d", id)); err != nil {
			return err
		}

		a = &Assignment{
			TicketID:         id,
			Slug:             slug,
			Branch:           branch,
			Worktree:         wtPath,
			InProgressTicket: name,
		}
		o.logger.Printf("Assign: ticket %04d-%s -> %s (%s)", id, slug, branch, wtPath)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// EnqueueMergeRequest writes the pending queue entry for an assignment and
// commits. Called when the agent signalled completion via submit_pr.
func (o *Orchestrator) EnqueueMergeRequest(a *Assignment, summary string) error {
	return o.store.WithWorktree(func(planDir string) error {
		entry := plan.QueueEntry{
			TicketID: a.TicketID,
			Ticket:   a.InProgressTicket,
			Branch:   a.Branch,
			Worktree: a.Worktree,
			Summary:  summary,
		}
		dir := filepath.Join(planDir, plan.PendingDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create pending dir: %w", err)
		}
		name := plan.PendingEntryName(a.TicketID)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(plan.FormatQueueEntry(entry)), 0o644); err != nil {
			return fmt.Errorf("write pending entry %s: %w", name, err)
		}
		if _, err := planstore.CommitAll(planDir, fmt.Sprintf("scriptorium: enqueue merge for ticket %04d", a.TicketID)); err != nil {
			return err
		}
		o.logger.Printf("Assign: enqueued merge request for ticket %04d", a.TicketID)
		return nil
	})
}

// inProgressTicket returns the filename of the single in-progress ticket,
// or "" when none exists.
func (o *Orchestrator) inProgressTicket() (string, error) {
	name := ""
	err := o.store.WithWorktree(func(planDir string) error {
		names, err := plan.ListTickets(planDir, plan.StateProgress)
		if err != nil {
			return err
		}
		if len(names) > 0 {
			name = names[0]
		}
		return nil
	})
	return name, err
}

// assignmentFromInProgress rebuilds an Assignment for a resumed in-progress
// ticket from its filename and recorded worktree line.
func assignmentFromInProgress(repoDir, name, body string) (*Assignment, error) {
	id, ok := plan.TicketID(name)
	if !ok {
		return nil, fmt.Errorf("in-progress ticket %q has no numeric id prefix", name)
	}
	stem := strings.TrimSuffix(name, ".md")
	_, slug, _ := strings.Cut(stem, "-")
	wt := plan.ParseWorktree(body)
	if wt == "" {
		wt = worktree.TicketPath(repoDir, id)
	}
	return &Assignment{
		TicketID:         id,
		Slug:             slug,
		Branch:           worktree.TicketBranch(id),
		Worktree:         wt,
		InProgressTicket: name,
	}, nil
}
