// Package plan implements the ticket and merge-queue state machine as pure
// functions over a plan worktree path. All orchestration state lives as
// committed markdown files on the plan branch; this package only interprets
// and rewrites those files — committing is the store's job.
package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Plan-branch layout. Directories hold .gitkeep files so empty states
// survive commits.
const (
	SpecFile      = "spec.md"
	AreasDir      = "areas"
	TicketsDir    = "tickets"
	StateOpen     = "open"
	StateProgress = "in-progress"
	StateDone     = "done"
	QueueDir      = "queue/merge"
	PendingDir    = "queue/merge/pending"
	ActiveFile    = "queue/merge/active.md"
	DecisionsDir  = "decisions"
)

// AreaMarker and WorktreeMarker are the ticket-body lines the state machine
// reads and maintains.
const (
	AreaMarker     = "**Area:**"
	WorktreeMarker = "**Worktree:**"
	FailureHeading = "## Merge Queue Failure"
)

// TicketStates lists the lifecycle directories under tickets/ in order.
var TicketStates = []string{StateOpen, StateProgress, StateDone}

// SlugError reports a slug that normalizes to nothing usable.
type SlugError struct {
	Input string
}

func (e *SlugError) Error() string {
	return fmt.Sprintf("invalid slug %q: normalizes to empty", e.Input)
}

// AreaPathError reports an area path that is absolute, escapes the plan
// root, or is not a markdown file.
type AreaPathError struct {
	Path   string
	Reason string
}

func (e *AreaPathError) Error() string {
	return fmt.Sprintf("invalid area path %q: %s", e.Path, e.Reason)
}

// ParseAreaID scans a ticket body and returns the area id from the first
// line beginning with the area marker, or "" when the body has none.
func ParseAreaID(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, AreaMarker) {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, AreaMarker))
		}
	}
	return ""
}

// ParseWorktree returns the worktree path recorded in a ticket body, or "".
func ParseWorktree(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, WorktreeMarker) {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, WorktreeMarker))
		}
	}
	return ""
}

// StripWorktree removes every worktree marker line from a ticket body.
// Used when a ticket leaves in-progress.
func StripWorktree(body string) string {
	lines := strings.Split(body, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), WorktreeMarker) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// AppendWorktree records the worktree path at the end of a ticket body.
func AppendWorktree(body, absPath string) string {
	body = strings.TrimRight(body, "\n")
	return body + "\n\n" + WorktreeMarker + " " + absPath + "\n"
}

// AppendFailure appends a merge-queue failure section with the enqueued
// summary and a diagnostic tag (FAIL, CONFLICT, or a timeout kind) plus an
// excerpt of the failing output.
func AppendFailure(body, summary, tag, excerpt string) string {
	body = strings.TrimRight(body, "\n")
	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n\n")
	b.WriteString(FailureHeading)
	b.WriteString("\n\n- Summary: ")
	b.WriteString(summary)
	b.WriteString("\n- Diagnostic: ")
	b.WriteString(tag)
	b.WriteString("\n")
	if excerpt = strings.TrimSpace(excerpt); excerpt != "" {
		b.WriteString("\n```\n")
		b.WriteString(excerpt)
		b.WriteString("\n```\n")
	}
	return b.String()
}

// TicketID parses the numeric id prefix of a ticket filename
// ("0042-fix-parser.md" -> 42). Returns false when the prefix up to the
// first hyphen is not digits-only.
func TicketID(filename string) (int, bool) {
	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	prefix, _, _ := strings.Cut(name, "-")
	if prefix == "" {
		return 0, false
	}
	for _, r := range prefix {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, false
	}
	return id, true
}

// NextTicketID scans all three state directories under the plan worktree and
// returns max(observed id)+1, or 1 when no ticket carries a numeric prefix.
func NextTicketID(planDir string) (int, error) {
	maxID := 0
	for _, state := range TicketStates {
		entries, err := os.ReadDir(filepath.Join(planDir, TicketsDir, state))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, fmt.Errorf("scan tickets/%s: %w", state, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			if id, ok := TicketID(e.Name()); ok && id > maxID {
				maxID = id
			}
		}
	}
	return maxID + 1, nil
}

// TicketFilename builds the canonical <NNNN>-<slug>.md filename.
func TicketFilename(id int, slug string) string {
	return fmt.Sprintf("%04d-%s.md", id, slug)
}

// NormalizeSlug lowercases, keeps [a-z0-9], maps spaces/underscores/hyphens
// to single hyphens, collapses runs, and trims trailing hyphens. An empty
// result is rejected with *SlugError.
func NormalizeSlug(s string) (string, error) {
	var b strings.Builder
	lastHyphen := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r == ' ' || r == '_' || r == '-':
			if b.Len() > 0 && !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return "", &SlugError{Input: s}
	}
	return out, nil
}

// NormalizeAreaPath validates an area file path relative to the plan root:
// it must be relative, must not contain "..", and must end in .md
// (case-insensitive). Returns the slash-cleaned path.
func NormalizeAreaPath(p string) (string, error) {
	if p == "" {
		return "", &AreaPathError{Path: p, Reason: "empty"}
	}
	if filepath.IsAbs(p) {
		return "", &AreaPathError{Path: p, Reason: "must be relative"}
	}
	cleaned := filepath.ToSlash(filepath.Clean(p))
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return "", &AreaPathError{Path: p, Reason: "must not escape the plan root"}
		}
	}
	if !strings.HasSuffix(strings.ToLower(cleaned), ".md") {
		return "", &AreaPathError{Path: p, Reason: "must be a .md file"}
	}
	return cleaned, nil
}

// ListTickets returns the ticket filenames under one state directory,
// sorted lexicographically. Missing directories read as empty.
func ListTickets(planDir, state string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(planDir, TicketsDir, state))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan tickets/%s: %w", state, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ActiveAreas returns the union of area ids referenced by tickets in open
// and in-progress.
func ActiveAreas(planDir string) (map[string]bool, error) {
	active := make(map[string]bool)
	for _, state := range []string{StateOpen, StateProgress} {
		names, err := ListTickets(planDir, state)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			body, err := os.ReadFile(filepath.Join(planDir, TicketsDir, state, name))
			if err != nil {
				return nil, fmt.Errorf("read ticket %s/%s: %w", state, name, err)
			}
			if id := ParseAreaID(string(body)); id != "" {
				active[id] = true
			}
		}
	}
	return active, nil
}

// AreasNeedingTickets returns the sorted plan-relative paths of area files
// whose stem has no ticket in open or in-progress.
func AreasNeedingTickets(planDir string) ([]string, error) {
	active, err := ActiveAreas(planDir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(planDir, AreasDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan areas: %w", err)
	}
	var needs []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ".md")
		if !active[stem] {
			needs = append(needs, filepath.ToSlash(filepath.Join(AreasDir, e.Name())))
		}
	}
	sort.Strings(needs)
	return needs, nil
}
