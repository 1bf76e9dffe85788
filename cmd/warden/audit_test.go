package main

import (
	"strings"
	"testing"
	"time"

	"github.com/vinayprograms/warden/internal/audit"
)

func sampleEntries() []audit.Entry {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []audit.Entry{
		{Timestamp: at, Action: "read", Resource: "notes.txt", Allowed: true, Tier: "balanced", Source: audit.SourcePolicy},
		{Timestamp: at, Action: "execute-command", Resource: "rm -rf build", Allowed: false, Tier: "restrictive", Source: audit.SourcePolicy},
		{Timestamp: at, Action: "write", Resource: "out.txt", Allowed: true, Remember: true, Tier: "balanced", Source: audit.SourcePrompt},
		{Timestamp: at, Action: "execute-command", Resource: "make", Allowed: false, Tier: "balanced", Source: audit.SourcePrompt, Details: "build step"},
	}
}

func TestAuditFilter(t *testing.T) {
	tests := []struct {
		name string
		cmd  AuditCmd
		want []string
	}{
		{"all", AuditCmd{}, []string{"notes.txt", "rm -rf build", "out.txt", "make"}},
		{"denied", AuditCmd{Denied: true}, []string{"rm -rf build", "make"}},
		{"action", AuditCmd{Action: "write"}, []string{"out.txt"}},
		{"limit keeps newest", AuditCmd{Limit: 2}, []string{"out.txt", "make"}},
		{"combined", AuditCmd{Action: "execute-command", Denied: true, Limit: 1}, []string{"make"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cmd.filter(sampleEntries())
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for i, e := range got {
				if e.Resource != tt.want[i] {
					t.Errorf("entry %d: got %q, want %q", i, e.Resource, tt.want[i])
				}
			}
		})
	}
}

func TestFormatEntry(t *testing.T) {
	entries := sampleEntries()

	line := formatEntry(entries[2], 80)
	for _, want := range []string{"allow", "write", "out.txt", "prompt", "remembered"} {
		if !strings.Contains(line, want) {
			t.Errorf("missing %q in %q", want, line)
		}
	}

	line = formatEntry(entries[3], 80)
	if !strings.Contains(line, "deny") || !strings.Contains(line, "\n") || !strings.Contains(line, "build step") {
		t.Errorf("denial with details rendered as %q", line)
	}

	failed := audit.Entry{
		Timestamp: entries[0].Timestamp, Action: "execute-command", Resource: "make test",
		Tier: "balanced", Source: audit.SourceFailure, Details: "tests", Error: "exit status 2",
	}
	line = formatEntry(failed, 80)
	for _, want := range []string{"fail", "make test", "failure", "exit status 2"} {
		if !strings.Contains(line, want) {
			t.Errorf("missing %q in failure line %q", want, line)
		}
	}
	if strings.Contains(line, "deny") {
		t.Errorf("failure rendered as a denial: %q", line)
	}
}

func TestAuditFilter_DeniedExcludesFailures(t *testing.T) {
	entries := append(sampleEntries(), audit.Entry{Action: "read", Resource: "gone.txt", Source: audit.SourceFailure, Error: "no such file"})
	got := (&AuditCmd{Denied: true}).filter(entries)
	for _, e := range got {
		if e.Source == audit.SourceFailure {
			t.Errorf("step failure listed as a denial: %+v", e)
		}
	}
	if len(got) != 2 {
		t.Errorf("expected the two denials, got %d", len(got))
	}
}
