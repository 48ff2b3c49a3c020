// Scriptorium daemon: drives a fleet of coding agents through a git-native
// planning and merge workflow. `run` starts the tick loop; `status` and
// `worktrees` read the plan branch.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/monofuel/scriptorium/internal/agent"
	"github.com/monofuel/scriptorium/internal/config"
	"github.com/monofuel/scriptorium/internal/mcpserver"
	"github.com/monofuel/scriptorium/internal/orchestrator"
	"github.com/monofuel/scriptorium/internal/plan"
	"github.com/monofuel/scriptorium/internal/planstore"
	"github.com/monofuel/scriptorium/internal/runlog"
)

// Version is set by -ldflags at build time.
var Version = "dev"

var (
	flagRepo  string
	flagTicks int
)

func main() {
	root := &cobra.Command{
		Use:           "scriptorium",
		Short:         "Agent-orchestration daemon with a git-native merge queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagRepo, "repo", "", "repository root (default: current directory)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the orchestrator tick loop",
		RunE:  func(cmd *cobra.Command, args []string) error { return runDaemon() },
	}
	runCmd.Flags().IntVar(&flagTicks, "ticks", 0, "run at most N ticks (0 = until shutdown)")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show plan-branch ticket counts, queue state, and recent agent runs",
		RunE:  func(cmd *cobra.Command, args []string) error { return runStatus() },
	}

	worktreesCmd := &cobra.Command{
		Use:   "worktrees",
		Short: "List in-progress tickets and their worktrees",
		RunE:  func(cmd *cobra.Command, args []string) error { return runWorktrees() },
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the scriptorium version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("scriptorium " + Version)
		},
	}

	root.AddCommand(runCmd, statusCmd, worktreesCmd, versionCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "scriptorium: %v\n", err)
		os.Exit(1)
	}
}

func repoDir() (string, error) {
	if flagRepo != "" {
		return filepath.Abs(flagRepo)
	}
	return os.Getwd()
}

// logRoot returns /tmp/scriptorium/<project> for the repository.
func logRoot(repo string) string {
	return filepath.Join(os.TempDir(), "scriptorium", filepath.Base(repo))
}

func runDaemon() error {
	repo, err := repoDir()
	if err != nil {
		return err
	}
	cfg, err := config.Load(repo)
	if err != nil {
		return err
	}
	endpoint, err := config.ParseEndpoint(cfg.Endpoints.Local)
	if err != nil {
		return err
	}

	root := logRoot(repo)
	logger, logPath, err := setupLogger(root)
	if err != nil {
		return err
	}
	logger.Printf("Starting scriptorium %s (repo=%s)", Version, repo)
	logger.Printf("Log file: %s", logPath)

	ledger, err := runlog.Open(filepath.Join(root, "runs.sqlite"))
	if err != nil {
		return err
	}
	defer ledger.Close()

	srv := mcpserver.New(endpoint, logger)
	if err := srv.Start(); err != nil {
		return err
	}
	fmt.Printf("scriptorium listening on %s\n", srv.MCPURL())

	watcher := config.NewWatcher(repo, cfg, logger)

	orch := orchestrator.New(orchestrator.Options{
		RepoDir:      repo,
		Config:       cfg,
		ConfigSource: watcher.Current,
		Runner:       agent.NewRunner(logger, &ledgerObserver{ledger}),
		Summary:      mcpserver.ConsumeSubmitPrSummary,
		Logger:       logger,
		MCPEndpoint:  endpoint.URL(),
		LogRoot:      root,
	})
	// Area and ticket generators are injected LLM adapters; without them the
	// plan-sync phases are quiet and the plan branch is authored externally.
	logger.Printf("PlanSync: no generator adapters wired; author areas/tickets on %s", planstore.PlanBranch)

	orchestrator.InstallSignalHandlers(logger)

	var g errgroup.Group
	g.Go(func() error {
		watcher.Start()
		return nil
	})
	g.Go(func() error {
		if flagTicks > 0 {
			orch.RunForTicks(flagTicks)
			orchestrator.RequestShutdown()
		} else {
			orch.Run()
		}
		watcher.Stop()
		srv.Shutdown()
		return nil
	})
	return g.Wait()
}

func runStatus() error {
	repo, err := repoDir()
	if err != nil {
		return err
	}
	logger := log.New(io.Discard, "", 0)
	store := planstore.New(repo, logger)

	err = store.WithWorktree(func(planDir string) error {
		for _, state := range plan.TicketStates {
			names, err := plan.ListTickets(planDir, state)
			if err != nil {
				return err
			}
			fmt.Printf("%-12s %d\n", state, len(names))
		}
		pending, err := plan.ListPending(planDir)
		if err != nil {
			return err
		}
		active, err := plan.ReadActive(planDir)
		if err != nil {
			return err
		}
		fmt.Printf("%-12s %d\n", "queued", len(pending))
		if active != "" {
			fmt.Printf("%-12s %s\n", "active", active)
		}
		return nil
	})
	if err != nil {
		return err
	}

	ledger, err := runlog.Open(filepath.Join(logRoot(repo), "runs.sqlite"))
	if err != nil {
		return nil // ledger unavailable; the plan summary is already printed
	}
	defer ledger.Close()
	attempts, err := ledger.Recent(10)
	if err != nil || len(attempts) == 0 {
		return nil
	}
	fmt.Println("\nrecent agent runs:")
	for _, a := range attempts {
		fmt.Printf("  %s  %s attempt %d  exit=%d timeout=%s  %s\n",
			a.StartedAt.Local().Format("2006-01-02 15:04"),
			a.TicketID, a.Attempt, a.ExitCode, a.TimeoutKind,
			a.Duration.Round(time.Second))
	}
	return nil
}

func runWorktrees() error {
	repo, err := repoDir()
	if err != nil {
		return err
	}
	logger := log.New(io.Discard, "", 0)
	store := planstore.New(repo, logger)

	return store.WithWorktree(func(planDir string) error {
		names, err := plan.ListTickets(planDir, plan.StateProgress)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("no tickets in progress")
			return nil
		}
		for _, name := range names {
			data, err := os.ReadFile(filepath.Join(planDir, plan.TicketsDir, plan.StateProgress, name))
			if err != nil {
				return err
			}
			wt := plan.ParseWorktree(string(data))
			state := "missing"
			if _, err := os.Stat(wt); err == nil {
				state = "ok"
			}
			fmt.Printf("%s  %s  [%s]\n", name, wt, state)
		}
		return nil
	})
}

// setupLogger opens the per-session log file under the log root and returns
// a logger writing there, plus stderr when stderr is an interactive
// terminal.
func setupLogger(root string) (*log.Logger, string, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, "", fmt.Errorf("create log dir: %w", err)
	}
	stamp := time.Now().UTC().Format("20060102T150405Z")
	logPath := filepath.Join(root, "run_"+stamp+".log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("open log file: %w", err)
	}

	writers := []io.Writer{f}
	if info, statErr := os.Stderr.Stat(); statErr == nil && (info.Mode()&os.ModeCharDevice) != 0 {
		writers = append(writers, os.Stderr)
	}
	return log.New(io.MultiWriter(writers...), "[scriptorium] ", log.LstdFlags), logPath, nil
}

// ledgerObserver bridges the agent runner's attempt callback to the runlog
// store.
type ledgerObserver struct {
	store *runlog.Store
}

func (l *ledgerObserver) ObserveAttempt(ticketID string, attempt int, model string, exitCode int, timeoutKind string, duration time.Duration, logPath string, startedAt time.Time) {
	_ = l.store.Record(runlog.Attempt{
		TicketID:    ticketID,
		Attempt:     attempt,
		Model:       model,
		ExitCode:    exitCode,
		TimeoutKind: timeoutKind,
		Duration:    duration,
		LogPath:     logPath,
		StartedAt:   startedAt,
	})
}
