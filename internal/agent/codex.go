package agent

import "fmt"

// codexArgs builds the codex CLI argument vector. The order is fixed:
// the configuration pair forcing empty developer instructions, the dynamic
// configuration pair for MCP servers, the optional reasoning-effort pair,
// then the exec subcommand with its flags, and finally "-" so the prompt is
// read from stdin.
func codexArgs(o RunOptions, lastMessagePath string) []string {
	args := []string{"-c", `instructions=""`}

	if o.MCPEndpoint != "" {
		args = append(args, "-c", fmt.Sprintf(
			`mcp_servers={scriptorium={type="http",url="%s/mcp",enabled=true,required=true}}`,
			o.MCPEndpoint))
	} else {
		args = append(args, "-c", "mcp_servers={}")
	}

	if o.ReasoningEffort != "" {
		args = append(args, "-c", fmt.Sprintf(`model_reasoning_effort=%q`, o.ReasoningEffort))
	}

	args = append(args,
		"exec",
		"--json",
		"--output-last-message", lastMessagePath,
		"--cd", o.WorkDir,
		"--model", o.Model,
		"--dangerously-bypass-approvals-and-sandbox",
	)
	if o.SkipGitRepoCheck {
		args = append(args, "--skip-git-repo-check")
	}
	return append(args, "-")
}
