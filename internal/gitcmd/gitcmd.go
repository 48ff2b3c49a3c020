// Package gitcmd wraps git subprocess invocations. All commands capture
// combined stdout+stderr; non-zero exits surface as *Error carrying the
// argument vector and the captured output.
package gitcmd

import (
	"fmt"
	"os/exec"
	"strings"
)

// Error is returned for any git invocation that exits non-zero.
type Error struct {
	Args   []string
	Output string
}

func (e *Error) Error() string {
	return fmt.Sprintf("git %s: %s", strings.Join(e.Args, " "), strings.TrimSpace(e.Output))
}

// Run executes git with the given arguments in dir and returns the combined
// stdout+stderr. A non-zero exit returns the output and an *Error.
func Run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), &Error{Args: args, Output: string(out)}
	}
	return string(out), nil
}

// Ok runs git and reports only whether it exited zero.
func Ok(dir string, args ...string) bool {
	_, err := Run(dir, args...)
	return err == nil
}

// RefExists reports whether a ref resolves in the repository.
func RefExists(dir, ref string) bool {
	return Ok(dir, "rev-parse", "--verify", ref)
}

// BranchExists reports whether a local branch exists.
func BranchExists(dir, branch string) bool {
	return RefExists(dir, "refs/heads/"+branch)
}

// IsAncestor reports whether ancestor is reachable from descendant.
func IsAncestor(dir, ancestor, descendant string) bool {
	return Ok(dir, "merge-base", "--is-ancestor", ancestor, descendant)
}

// RevCount returns the commit count reachable from ref.
func RevCount(dir, ref string) (int, error) {
	out, err := Run(dir, "rev-list", "--count", ref)
	if err != nil {
		return 0, err
	}
	n := 0
	if _, err := fmt.Sscanf(strings.TrimSpace(out), "%d", &n); err != nil {
		return 0, fmt.Errorf("parse rev-list count %q: %w", strings.TrimSpace(out), err)
	}
	return n, nil
}

// Show returns the contents of path at ref (ref:path).
func Show(dir, ref, path string) (string, error) {
	return Run(dir, "show", ref+":"+path)
}

// LsTree returns the file paths recorded in the tree at ref, one per entry.
func LsTree(dir, ref string) ([]string, error) {
	out, err := Run(dir, "ls-tree", "-r", "--name-only", ref)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}
