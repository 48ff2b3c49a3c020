package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := DefaultConfig()
	if *cfg != *def {
		t.Errorf("expected defaults for missing config, got %+v", cfg)
	}
	if cfg.Endpoints.Local != "http://127.0.0.1:8097" {
		t.Errorf("unexpected default endpoint %q", cfg.Endpoints.Local)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	body := `{
  "models": {"coding": "gpt-5-codex-mini"},
  "endpoints": {"local": "http://127.0.0.1:9000"},
  "health": {"integrationTest": true}
}`
	if err := os.WriteFile(filepath.Join(dir, JSONFile), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Models.Coding != "gpt-5-codex-mini" {
		t.Errorf("coding model not applied: %q", cfg.Models.Coding)
	}
	// Unset fields keep defaults.
	if cfg.Models.Architect != DefaultConfig().Models.Architect {
		t.Errorf("architect default lost: %q", cfg.Models.Architect)
	}
	if cfg.Endpoints.Local != "http://127.0.0.1:9000" {
		t.Errorf("endpoint not applied: %q", cfg.Endpoints.Local)
	}
	cmds := cfg.HealthCommands()
	if len(cmds) != 2 || cmds[1][1] != "integration-test" {
		t.Errorf("expected integration-test health command, got %v", cmds)
	}
}

func TestLoadYAMLFallback(t *testing.T) {
	dir := t.TempDir()
	body := "models:\n  manager: gpt-5-mini\n"
	if err := os.WriteFile(filepath.Join(dir, YAMLFile), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Models.Manager != "gpt-5-mini" {
		t.Errorf("yaml manager model not applied: %q", cfg.Models.Manager)
	}
}

func TestLoadJSONWinsOverYAML(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, JSONFile), []byte(`{"models":{"coding":"from-json"}}`), 0o644)
	os.WriteFile(filepath.Join(dir, YAMLFile), []byte("models:\n  coding: from-yaml\n"), 0o644)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Models.Coding != "from-json" {
		t.Errorf("expected JSON to win, got %q", cfg.Models.Coding)
	}
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, JSONFile), []byte("{nope"), 0o644)
	if _, err := Load(dir); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		host string
		port int
	}{
		{"http://127.0.0.1:8097", "127.0.0.1", 8097},
		{"http://localhost", "localhost", 80},
		{"https://example.com", "example.com", 443},
		{"https://example.com:8443/mcp", "example.com", 8443},
	}
	for _, c := range cases {
		ep, err := ParseEndpoint(c.in)
		if err != nil {
			t.Errorf("ParseEndpoint(%q): %v", c.in, err)
			continue
		}
		if ep.Host != c.host || ep.Port != c.port {
			t.Errorf("ParseEndpoint(%q) = %s:%d; want %s:%d", c.in, ep.Host, ep.Port, c.host, c.port)
		}
	}

	bad := []string{"", "127.0.0.1:8097", "http://", "ftp://host", "http://host:0", "http://host:70000"}
	for _, in := range bad {
		if _, err := ParseEndpoint(in); err == nil {
			t.Errorf("ParseEndpoint(%q): expected error", in)
		}
	}
}

func TestEndpointAddrURL(t *testing.T) {
	ep := Endpoint{Scheme: "http", Host: "127.0.0.1", Port: 8097}
	if ep.Addr() != "127.0.0.1:8097" {
		t.Errorf("Addr = %q", ep.Addr())
	}
	if ep.URL() != "http://127.0.0.1:8097" {
		t.Errorf("URL = %q", ep.URL())
	}
}
