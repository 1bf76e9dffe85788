package main

import (
	"os"
	"testing"
	"time"

	"github.com/vinayprograms/warden/internal/permission"
	"github.com/vinayprograms/warden/internal/prompt"
)

func TestIsTerminal(t *testing.T) {
	f, err := os.CreateTemp("", "test-terminal-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if isTerminal(f) {
		t.Error("expected temp file to not be a terminal")
	}
}

func TestParseRetryConfig(t *testing.T) {
	cfg := parseRetryConfig(3, "45s")
	if cfg.MaxRetries != 3 || cfg.MaxBackoff != 45*time.Second {
		t.Errorf("unexpected retry config %+v", cfg)
	}

	cfg = parseRetryConfig(0, "soon")
	if cfg.MaxBackoff != 0 {
		t.Errorf("invalid backoff should be ignored, got %v", cfg.MaxBackoff)
	}
}

func TestDecisionProvider(t *testing.T) {
	tests := []struct {
		mode        string
		tty         bool
		interactive bool
	}{
		{"auto", true, true},
		{"auto", false, false},
		{"", false, false},
		{"always", false, true},
		{"never", true, false},
	}
	for _, tt := range tests {
		p := decisionProvider(tt.mode, tt.tty)
		_, isInteractive := p.(*prompt.Interactive)
		_, isDeny := p.(permission.AlwaysDeny)
		if isInteractive != tt.interactive || isDeny == tt.interactive {
			t.Errorf("mode %q tty %v: got %T", tt.mode, tt.tty, p)
		}
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := loadConfig(&Globals{Tier: "permissive", Workspace: "/tmp/ws"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tier() != permission.TierPermissive || cfg.Agent.Workspace != "/tmp/ws" {
		t.Errorf("overrides not applied: %+v", cfg.Agent)
	}

	if _, err := loadConfig(&Globals{Tier: "lenient"}); err == nil {
		t.Error("unknown tier should be rejected")
	}
}
