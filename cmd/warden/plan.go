package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/vinayprograms/warden/internal/agent"
	"github.com/vinayprograms/warden/internal/plan"
)

var (
	ordinalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true)
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Bold(true)
	statusStyles = map[plan.Status]lipgloss.Style{
		plan.StatusPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		plan.StatusApproved:  lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		plan.StatusExecuting: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		plan.StatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		plan.StatusFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// Run asks the agent for a proposal, saves it as a pending plan and optionally executes it.
func (c *PlanCreateCmd) Run(g *Globals) error {
	query := strings.TrimSpace(strings.Join(c.Query, " "))
	if query == "" {
		return fmt.Errorf("empty query")
	}

	rt, err := start(g)
	if err != nil {
		return err
	}
	defer rt.cleanup()
	if err := rt.requireAgent(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Fprintf(os.Stderr, "Planning: %s\n", query)
	text, err := agent.Ask(ctx, rt.agent, plan.ProposalPrompt(query), nil, rt.exec.OnAgentEvent)
	if err != nil {
		return err
	}
	p, err := plan.ParseProposal(query, text)
	if err != nil {
		return err
	}
	path, err := rt.plans.Save(p)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Saved plan %s to %s\n\n", p.ID, path)
	fmt.Println(wrap(plan.Render(p)))

	if !c.Exec {
		return nil
	}
	return executePlan(rt, p)
}

// Run lists plans, numbering the pending ones.
func (c *PlanListCmd) Run(g *Globals) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	m := plan.NewManager(cfg.PlansDir())
	all, err := m.List()
	if err != nil {
		return err
	}
	renderList(os.Stdout, all, c.All)
	return nil
}

// Run prints a plan document.
func (c *PlanShowCmd) Run(g *Globals) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	p, err := plan.NewManager(cfg.PlansDir()).Resolve(c.Ref)
	if err != nil {
		return err
	}
	fmt.Println(wrap(plan.Render(p)))
	return nil
}

// Run executes a plan.
func (c *PlanExecCmd) Run(g *Globals) error {
	rt, err := start(g)
	if err != nil {
		return err
	}
	defer rt.cleanup()

	p, err := rt.plans.Resolve(c.Ref)
	if err != nil {
		return err
	}
	return executePlan(rt, p)
}

func executePlan(rt *runtime, p *plan.Plan) error {
	ctx, cancel := signalContext()
	defer cancel()

	fmt.Fprintf(os.Stderr, "Executing plan %s: %s (tier: %s)\n\n", p.ID, p.Title(), rt.exec.Tier())
	if err := rt.exec.ExecutePlan(ctx, p, rt.plans); err != nil {
		fmt.Fprintf(os.Stderr, "\n✗ Plan %s\n", p.Status)
		if len(p.Rollback) > 0 {
			fmt.Fprintln(os.Stderr, "Rollback strategy:")
			for _, r := range p.Rollback {
				fmt.Fprintf(os.Stderr, "  - %s\n", r)
			}
		}
		return err
	}
	fmt.Fprintf(os.Stderr, "\n✓ Plan complete\n")
	return nil
}

// Run deletes plans.
func (c *PlanDeleteCmd) Run(g *Globals) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	n, err := deletePlans(plan.NewManager(cfg.PlansDir()), c.Target)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Deleted %d plan(s)\n", n)
	return nil
}

// deletePlans removes the plans named by target: an id, a pending ordinal,
// "all" or "all-completed".
func deletePlans(m *plan.Manager, target string) (int, error) {
	switch strings.TrimSpace(target) {
	case "all":
		return m.DeleteAll()
	case "all-completed":
		return m.DeleteCompleted()
	}
	p, err := m.Resolve(target)
	if err != nil {
		return 0, err
	}
	if err := m.Delete(p.ID); err != nil {
		return 0, err
	}
	return 1, nil
}

// renderList writes pending plans with their ordinals, then, when all is set,
// the remaining plans. Both groups are newest first.
func renderList(w io.Writer, plans []*plan.Plan, all bool) {
	var pending, others []*plan.Plan
	for _, p := range plans {
		if p.Status == plan.StatusPending {
			pending = append(pending, p)
		} else {
			others = append(others, p)
		}
	}

	if len(pending) == 0 {
		fmt.Fprintln(w, headerStyle.Render("No pending plans"))
	} else {
		fmt.Fprintln(w, headerStyle.Render("Pending"))
		for i, p := range pending {
			fmt.Fprintf(w, "%s %s  %s  %s\n",
				ordinalStyle.Render(fmt.Sprintf("#%d", i+1)),
				idStyle.Render(p.ID),
				p.Created.Local().Format("2006-01-02 15:04"),
				p.Title())
		}
	}

	if !all || len(others) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Other"))
	for _, p := range others {
		fmt.Fprintf(w, "   %s  %s  %s  %s\n",
			idStyle.Render(p.ID),
			statusStyles[p.Status].Render(fmt.Sprintf("%-9s", p.Status)),
			p.Created.Local().Format("2006-01-02 15:04"),
			p.Title())
	}
}

// wrap fits text to the terminal width.
func wrap(text string) string {
	return wordwrap.String(text, terminalWidth())
}
