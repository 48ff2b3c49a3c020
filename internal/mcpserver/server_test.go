package mcpserver

import (
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"testing"

	"github.com/monofuel/scriptorium/internal/config"
)

func TestSummarySlotConsumeAndClear(t *testing.T) {
	ConsumeSubmitPrSummary() // reset from other tests

	if got := ConsumeSubmitPrSummary(); got != "" {
		t.Errorf("expected empty slot, got %q", got)
	}

	SetSubmitPrSummary("all done")
	if got := ConsumeSubmitPrSummary(); got != "all done" {
		t.Errorf("expected stored summary, got %q", got)
	}
	// Read clears.
	if got := ConsumeSubmitPrSummary(); got != "" {
		t.Errorf("expected slot cleared after consume, got %q", got)
	}

	// Last write wins: a slot, not a stream.
	SetSubmitPrSummary("first")
	SetSubmitPrSummary("second")
	if got := ConsumeSubmitPrSummary(); got != "second" {
		t.Errorf("expected latest summary, got %q", got)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestServerStartHealthShutdown(t *testing.T) {
	port := freePort(t)
	ep := config.Endpoint{Scheme: "http", Host: "127.0.0.1", Port: port}
	srv := New(ep, log.New(os.Stderr, "[test] ", log.LstdFlags))

	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Shutdown()

	if want := fmt.Sprintf("http://127.0.0.1:%d/mcp", port); srv.MCPURL() != want {
		t.Errorf("MCPURL = %q; want %q", srv.MCPURL(), want)
	}

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status %d: %s", resp.StatusCode, body)
	}

	srv.Shutdown()
	if _, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port)); err == nil {
		t.Error("expected health endpoint to be down after shutdown")
	}
}

func TestServerStartPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	srv := New(config.Endpoint{Scheme: "http", Host: "127.0.0.1", Port: port}, log.New(os.Stderr, "[test] ", log.LstdFlags))
	if err := srv.Start(); err == nil {
		srv.Shutdown()
		t.Error("expected bind failure on busy port")
	}
}
