// Package mcpserver exposes the HTTP MCP endpoint the coding agent calls
// back into. It registers a single tool, submit_pr, whose summary argument
// lands in a process-wide single-slot mailbox consumed by the tick loop.
package mcpserver

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/monofuel/scriptorium/internal/config"
)

// Version is stamped by -ldflags at build time.
var Version = "dev"

// submitPr is the single-slot mailbox between the agent's MCP call and the
// tick loop. A slot, not a stream: one writer (the HTTP handler), one
// reader-clearer (the tick loop).
var (
	submitPrMu      sync.Mutex
	submitPrSummary string
)

// SetSubmitPrSummary stores the completion summary from the child agent.
func SetSubmitPrSummary(summary string) {
	submitPrMu.Lock()
	submitPrSummary = summary
	submitPrMu.Unlock()
}

// ConsumeSubmitPrSummary atomically reads and clears the summary slot. An
// empty return means the agent did not signal completion.
func ConsumeSubmitPrSummary() string {
	submitPrMu.Lock()
	defer submitPrMu.Unlock()
	s := submitPrSummary
	submitPrSummary = ""
	return s
}

// Server is the HTTP MCP server bound to the configured local endpoint.
type Server struct {
	endpoint config.Endpoint
	logger   *log.Logger

	httpServer *http.Server
	ln         net.Listener
}

// New builds the MCP server for the given endpoint.
func New(endpoint config.Endpoint, logger *log.Logger) *Server {
	return &Server{endpoint: endpoint, logger: logger}
}

// MCPURL returns the URL child agents use to reach the MCP endpoint.
func (s *Server) MCPURL() string {
	return s.endpoint.URL() + "/mcp"
}

// Start binds the listener and serves in a background goroutine. Returns
// once the listener is bound so callers know the endpoint is reachable
// before spawning agents.
func (s *Server) Start() error {
	mcpServer := server.NewMCPServer(
		"scriptorium",
		Version,
		server.WithInstructions("Call submit_pr exactly once when the ticket is complete."),
	)
	registerSubmitPr(mcpServer, s.logger)

	ln, err := net.Listen("tcp", s.endpoint.Addr())
	if err != nil {
		return fmt.Errorf("mcp listen on %s: %w", s.endpoint.Addr(), err)
	}
	s.ln = ln

	streamSrv := server.NewStreamableHTTPServer(mcpServer)
	mux := http.NewServeMux()
	mux.Handle("/mcp", streamSrv)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","port":%d}`, s.endpoint.Port)
	})

	s.httpServer = &http.Server{Handler: mux}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("MCPServer: ERROR: %v", err)
		}
	}()
	s.logger.Printf("MCPServer: listening on %s", s.MCPURL())
	return nil
}

// Shutdown closes the HTTP server and waits for in-flight requests.
func (s *Server) Shutdown() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Printf("MCPServer: shutdown error: %v", err)
	}
}

// registerSubmitPr registers the submit_pr tool. The input schema requires a
// single string field, summary.
func registerSubmitPr(s *server.MCPServer, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("submit_pr",
			mcp.WithDescription(
				"Signal that the ticket is complete and ready to merge. "+
					"Provide a one-paragraph summary of the change; the orchestrator "+
					"enqueues the ticket branch for merge into master."),
			mcp.WithString("summary", mcp.Required(), mcp.Description("Summary of the completed work")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			summary, _ := args["summary"].(string)
			if summary == "" {
				return nil, fmt.Errorf("summary is required")
			}
			SetSubmitPrSummary(summary)
			logger.Printf("MCPServer: submit_pr received (%d bytes)", len(summary))
			return mcp.NewToolResultText("Merge request recorded. The orchestrator will merge your branch."), nil
		},
	)
}
