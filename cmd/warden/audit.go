package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/vinayprograms/warden/internal/audit"
	"github.com/vinayprograms/warden/internal/permission"
)

var (
	allowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	denyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Run prints the audit log.
func (c *AuditCmd) Run(g *Globals) error {
	if c.Action != "" {
		if _, err := permission.ParseAction(c.Action); err != nil {
			return err
		}
	}
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	path := cfg.AuditLogPath()

	if c.Follow {
		ctx, cancel := signalContext()
		defer cancel()
		err := audit.Follow(ctx, path, func(e audit.Entry) {
			if c.matches(e) {
				printEntry(os.Stdout, e)
			}
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	entries, err := audit.ReadAll(path)
	if err != nil {
		return err
	}
	entries = c.filter(entries)
	if len(entries) == 0 {
		fmt.Fprintf(os.Stderr, "No matching audit entries in %s\n", path)
		return nil
	}
	for _, e := range entries {
		printEntry(os.Stdout, e)
	}
	return nil
}

func (c *AuditCmd) matches(e audit.Entry) bool {
	if c.Action != "" && e.Action != c.Action {
		return false
	}
	if c.Denied && (e.Allowed || e.Source == audit.SourceFailure) {
		return false
	}
	return true
}

// filter applies the action and denial filters, then the limit.
func (c *AuditCmd) filter(entries []audit.Entry) []audit.Entry {
	var out []audit.Entry
	for _, e := range entries {
		if c.matches(e) {
			out = append(out, e)
		}
	}
	if c.Limit > 0 && len(out) > c.Limit {
		out = out[len(out)-c.Limit:]
	}
	return out
}

func printEntry(w io.Writer, e audit.Entry) {
	fmt.Fprintln(w, formatEntry(e, terminalWidth()))
}

// formatEntry renders one entry as a status line followed, when present, by
// its details wrapped to width.
func formatEntry(e audit.Entry, width int) string {
	verdict := allowStyle.Render("✓ allow")
	if e.Source == audit.SourceFailure {
		verdict = denyStyle.Render("✗ fail ")
	} else if !e.Allowed {
		verdict = denyStyle.Render("✗ deny ")
	}
	remember := ""
	if e.Remember {
		remember = ", remembered"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %-15s %s %s",
		dimStyle.Render(e.Timestamp.Local().Format("2006-01-02 15:04:05")),
		verdict,
		e.Action,
		e.Resource,
		dimStyle.Render(fmt.Sprintf("(%s, %s%s)", e.Source, e.Tier, remember)))
	if e.Details != "" {
		details := wordwrap.String(e.Details, width-4)
		for _, line := range strings.Split(details, "\n") {
			b.WriteString("\n    " + dimStyle.Render(line))
		}
	}
	if e.Error != "" {
		for _, line := range strings.Split(wordwrap.String(e.Error, width-4), "\n") {
			b.WriteString("\n    " + denyStyle.Render(line))
		}
	}
	return b.String()
}
