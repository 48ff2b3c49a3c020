// Package orchestrator drives the tick loop: health check, plan sync,
// assignment, agent execution, and merge-queue draining, in that order,
// once per tick. All orchestration state lives on the plan branch; nothing
// is cached in memory across ticks.
package orchestrator

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/monofuel/scriptorium/internal/agent"
	"github.com/monofuel/scriptorium/internal/config"
	"github.com/monofuel/scriptorium/internal/planstore"
	"github.com/monofuel/scriptorium/internal/worktree"
)

// Expected nothing-to-do conditions; the loop treats these as a quiet tick,
// not a failure.
var (
	ErrSpecMissing        = errors.New("spec.md missing on plan branch")
	ErrNoTicketsAvailable = errors.New("no open tickets available")
)

// idleSleep is the pause between ticks.
const idleSleep = 200 * time.Millisecond

// shouldRun is the process-wide shutdown flag. Signal handlers clear it;
// the loop checks it between ticks. It is one of the two
// documented process globals (the other is the MCP summary slot).
var shouldRun atomic.Bool

// RequestShutdown asks the loop to stop after the current tick.
func RequestShutdown() {
	shouldRun.Store(false)
}

// InstallSignalHandlers wires SIGINT and SIGTERM to RequestShutdown.
func InstallSignalHandlers(logger *log.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("TickLoop: received %v, shutting down after current tick", sig)
		RequestShutdown()
	}()
}

// AgentRunner runs one supervised coding-agent session. The concrete
// implementation is agent.Runner; tests substitute fakes.
type AgentRunner interface {
	Run(o agent.RunOptions) (*agent.Result, error)
}

// SummarySource consumes the submit_pr completion slot (read-and-clear).
type SummarySource func() string

// Options configures an Orchestrator.
type Options struct {
	RepoDir        string
	Config         *config.Config
	ConfigSource   func() *config.Config // optional live source; falls back to Config
	AreaGen        AreaGenerator
	TicketGen      TicketGenerator
	Runner         AgentRunner
	Summary        SummarySource
	Logger         *log.Logger
	MCPEndpoint    string // scheme://host:port advertised to agents; "" disables
	LogRoot        string
	HealthCommands [][]string // override for tests; default Config.HealthCommands()
}

// Orchestrator owns one repository's tick loop.
type Orchestrator struct {
	repoDir    string
	store      *planstore.Store
	worktrees  *worktree.Manager
	runner     AgentRunner
	summary    SummarySource
	areaGen    AreaGenerator
	ticketGen  TicketGenerator
	logger     *log.Logger
	mcpURL     string
	logRoot    string
	cfg        *config.Config
	cfgSource  func() *config.Config
	healthCmds [][]string
}

// New creates an Orchestrator from options.
func New(o Options) *Orchestrator {
	logger := o.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[scriptorium] ", log.LstdFlags)
	}
	cfg := o.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	healthCmds := o.HealthCommands
	if healthCmds == nil {
		healthCmds = cfg.HealthCommands()
	}
	return &Orchestrator{
		repoDir:    o.RepoDir,
		store:      planstore.New(o.RepoDir, logger),
		worktrees:  worktree.NewManager(o.RepoDir, logger),
		runner:     o.Runner,
		summary:    o.Summary,
		areaGen:    o.AreaGen,
		ticketGen:  o.TicketGen,
		logger:     logger,
		mcpURL:     o.MCPEndpoint,
		logRoot:    o.LogRoot,
		cfg:        cfg,
		cfgSource:  o.ConfigSource,
		healthCmds: healthCmds,
	}
}

// Store exposes the orchestrator's plan store.
func (o *Orchestrator) Store() *planstore.Store {
	return o.store
}

func (o *Orchestrator) config() *config.Config {
	if o.cfgSource != nil {
		if cfg := o.cfgSource(); cfg != nil {
			return cfg
		}
	}
	return o.cfg
}

// RunForTicks executes at most n ticks, stopping early on shutdown.
func (o *Orchestrator) RunForTicks(n int) {
	shouldRun.Store(true)
	for i := 0; i < n && shouldRun.Load(); i++ {
		o.tick()
		if i < n-1 {
			time.Sleep(idleSleep)
		}
	}
}

// Run executes ticks until a shutdown is requested.
func (o *Orchestrator) Run() {
	shouldRun.Store(true)
	for shouldRun.Load() {
		o.tick()
		time.Sleep(idleSleep)
	}
	o.logger.Printf("TickLoop: stopped")
}

// tick runs one pass: health, plan sync, assign, execute, drain. A failure
// in one phase is logged and does not skip the following phases.
func (o *Orchestrator) tick() {
	masterGreen, _ := o.runHealth()
	if !masterGreen {
		o.logger.Printf("TickLoop: master is red")
	}

	if err := o.SyncAreasFromSpec(); err != nil && !isQuiet(err) {
		o.logger.Printf("TickLoop: ERROR: sync areas: %v", err)
	}
	if err := o.SyncTicketsFromAreas(); err != nil && !isQuiet(err) {
		o.logger.Printf("TickLoop: ERROR: sync tickets: %v", err)
	}

	if masterGreen {
		inProgress, err := o.inProgressTicket()
		if err != nil && !isQuiet(err) {
			o.logger.Printf("TickLoop: ERROR: read in-progress: %v", err)
		}
		if err == nil && inProgress == "" {
			if _, err := o.AssignOldestOpenTicket(); err != nil && !isQuiet(err) {
				o.logger.Printf("TickLoop: ERROR: assign: %v", err)
			}
		}
	}

	if err := o.executeInProgress(); err != nil && !isQuiet(err) {
		o.logger.Printf("TickLoop: ERROR: execute: %v", err)
	}

	if _, err := o.ProcessMergeQueue(); err != nil && !isQuiet(err) {
		o.logger.Printf("TickLoop: ERROR: merge queue: %v", err)
	}
}

// isQuiet reports the expected nothing-to-do conditions.
func isQuiet(err error) bool {
	return errors.Is(err, ErrSpecMissing) ||
		errors.Is(err, ErrNoTicketsAvailable) ||
		errors.Is(err, planstore.ErrPlanBranchMissing)
}
