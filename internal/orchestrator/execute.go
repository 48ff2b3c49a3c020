package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/monofuel/scriptorium/internal/agent"
	"github.com/monofuel/scriptorium/internal/plan"
	"github.com/monofuel/scriptorium/internal/planstore"
)

// agentInstructions is appended to the ticket body to form the coding
// agent's prompt.
const agentInstructions = "Work only inside the current directory, which is a dedicated git worktree " +
	"for this ticket. Commit your changes as you go. When the ticket is complete, " +
	"call the submit_pr tool with a one-paragraph summary of the change."

// executeInProgress runs the coding agent for the current in-progress
// ticket, if any. A non-empty submit_pr summary enqueues a merge request;
// an empty one records a note on the ticket and leaves it in-progress for
// the next tick to resume.
func (o *Orchestrator) executeInProgress() error {
	if o.runner == nil {
		return nil
	}
	name, body, err := o.readInProgress()
	if err != nil || name == "" {
		return err
	}
	a, err := assignmentFromInProgress(o.repoDir, name, body)
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(a.Worktree); statErr != nil {
		return fmt.Errorf("ticket %04d worktree %s missing: %w", a.TicketID, a.Worktree, statErr)
	}

	// Drop any summary left over from a previous, aborted run.
	if o.summary != nil {
		o.summary()
	}

	cfg := o.config()
	ticketTag := fmt.Sprintf("%04d-%s", a.TicketID, a.Slug)
	res, err := o.runner.Run(agent.RunOptions{
		Prompt:            strings.TrimRight(body, "\n") + "\n\n" + agentInstructions + "\n",
		WorkDir:           a.Worktree,
		Model:             cfg.Models.Coding,
		ReasoningEffort:   cfg.ReasoningEffort.Coding,
		TicketID:          ticketTag,
		Binary:            cfg.Agent.Binary,
		SkipGitRepoCheck:  cfg.Agent.SkipGitRepoCheck,
		LogRoot:           o.logRoot,
		NoOutputTimeoutMs: cfg.Agent.NoOutputTimeoutMs,
		HardTimeoutMs:     cfg.Agent.HardTimeoutMs,
		MCPEndpoint:       o.mcpURL,
		MaxAttempts:       cfg.Agent.MaxAttempts,
	})
	if err != nil {
		return err
	}

	summary := ""
	if o.summary != nil {
		summary = o.summary()
	}
	if summary != "" {
		o.logger.Printf("Execute: ticket %s submitted (exit=%d, attempts=%d)", ticketTag, res.ExitCode, res.Attempts)
		return o.EnqueueMergeRequest(a, summary)
	}

	o.logger.Printf("Execute: ticket %s produced no submit_pr call (exit=%d, timeout=%s); leaving in-progress", ticketTag, res.ExitCode, res.TimeoutKind)
	note := fmt.Sprintf("- Agent run ended without submit_pr (exit code %d, timeout: %s, attempts: %d).", res.ExitCode, res.TimeoutKind, res.Attempts)
	return o.appendTicketNote(name, note)
}

// readInProgress returns the in-progress ticket filename and body, or ""
// when none exists.
func (o *Orchestrator) readInProgress() (string, string, error) {
	var name, body string
	err := o.store.WithWorktree(func(planDir string) error {
		names, err := plan.ListTickets(planDir, plan.StateProgress)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return nil
		}
		name = names[0]
		data, err := os.ReadFile(filepath.Join(planDir, plan.TicketsDir, plan.StateProgress, name))
		if err != nil {
			return fmt.Errorf("read in-progress ticket %s: %w", name, err)
		}
		body = string(data)
		return nil
	})
	return name, body, err
}

// appendTicketNote appends one note line under an "## Agent Notes" section
// of an in-progress ticket and commits.
func (o *Orchestrator) appendTicketNote(name, note string) error {
	return o.store.WithWorktree(func(planDir string) error {
		path := filepath.Join(planDir, plan.TicketsDir, plan.StateProgress, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("read ticket %s: %w", name, err)
		}
		body := strings.TrimRight(string(data), "\n")
		if !strings.Contains(body, "## Agent Notes") {
			body += "\n\n## Agent Notes\n"
		}
		body += "\n" + note + "\n"
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return fmt.Errorf("write ticket %s: %w", name, err)
		}
		id, _ := plan.TicketID(name)
		_, err = planstore.CommitAll(planDir, fmt.Sprintf("scriptorium: record agent result for ticket %04d", id))
		return err
	})
}
