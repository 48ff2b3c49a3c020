// Package agent supervises coding-agent CLI runs: harness selection, argv
// construction, streaming capture with dual watchdogs, and bounded retries
// with a continuation prompt.
package agent

import (
	"errors"
	"strings"
)

// Harness identifies the CLI family driving a model.
type Harness string

const (
	HarnessClaude Harness = "claude-code"
	HarnessCodex  Harness = "codex"
	HarnessTypoi  Harness = "typoi"
)

// ErrBackendUnimplemented is returned when a harness other than codex is
// selected. The claude-code and typoi harnesses are declared but stubbed.
var ErrBackendUnimplemented = errors.New("backend unimplemented for selected harness")

// HarnessFor selects the harness from the model name: claude-* uses the
// claude-code harness, codex-* and gpt-* the codex harness, anything else
// the generic typoi harness.
func HarnessFor(model string) Harness {
	switch {
	case strings.HasPrefix(model, "claude-"):
		return HarnessClaude
	case strings.HasPrefix(model, "codex-"), strings.HasPrefix(model, "gpt-"):
		return HarnessCodex
	default:
		return HarnessTypoi
	}
}

// SanitizeTicketID maps a ticket id to a filesystem-safe token: characters
// outside [A-Za-z0-9_-] become hyphens, and an empty input becomes "adhoc".
func SanitizeTicketID(id string) string {
	if id == "" {
		return "adhoc"
	}
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
