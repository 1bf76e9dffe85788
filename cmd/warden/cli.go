// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Plan    PlanCmd    `cmd:"" help:"Create, inspect, execute and delete plans"`
	Run     RunCmd     `cmd:"" help:"Run a workflow"`
	Watch   WatchCmd   `cmd:"" help:"Run workflows dropped into a trigger directory"`
	Audit   AuditCmd   `cmd:"" help:"Show the permission audit log"`
	Setup   SetupCmd   `cmd:"" help:"Interactive setup wizard"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// Globals are flags shared by every command.
type Globals struct {
	Config    string `short:"c" help:"Config file path (default ./warden.toml)" type:"path"`
	Tier      string `help:"Escalation tier: restrictive, balanced or permissive (overrides config)"`
	Workspace string `short:"w" help:"Workspace directory (overrides config)"`
}

// PlanCmd groups the plan lifecycle commands.
type PlanCmd struct {
	Create PlanCreateCmd `cmd:"" help:"Ask the agent for a plan and save it as pending"`
	List   PlanListCmd   `cmd:"" help:"List pending plans (numbered) and, with --all, finished ones"`
	Show   PlanShowCmd   `cmd:"" help:"Print a plan document"`
	Exec   PlanExecCmd   `cmd:"" help:"Execute a plan by id or pending ordinal"`
	Delete PlanDeleteCmd `cmd:"" help:"Delete a plan by id or ordinal, or 'all' / 'all-completed'"`
}

// PlanCreateCmd asks the agent for a plan.
type PlanCreateCmd struct {
	Query []string `arg:"" help:"What the plan should accomplish"`
	Exec  bool     `short:"x" help:"Execute the plan right after saving it"`
}

// PlanListCmd lists plans.
type PlanListCmd struct {
	All bool `short:"a" help:"Include completed and failed plans"`
}

// PlanShowCmd prints one plan.
type PlanShowCmd struct {
	Ref string `arg:"" help:"Plan id or pending ordinal (1, #1)"`
}

// PlanExecCmd executes one plan.
type PlanExecCmd struct {
	Ref string `arg:"" help:"Plan id or pending ordinal (1, #1)"`
}

// PlanDeleteCmd deletes plans.
type PlanDeleteCmd struct {
	Target string `arg:"" help:"Plan id, pending ordinal, 'all' or 'all-completed'"`
}

// RunCmd executes a workflow document.
type RunCmd struct {
	File  string            `short:"f" default:"workflow.yaml" help:"Workflow file path"`
	Input map[string]string `short:"i" help:"Input key=value (repeatable)"`
}

// WatchCmd runs workflows as they appear in a directory.
type WatchCmd struct {
	Dir string `short:"d" help:"Trigger directory (default from config)"`
}

// AuditCmd prints audit entries.
type AuditCmd struct {
	Action string `help:"Only show entries for this action"`
	Denied bool   `help:"Only show denials"`
	Limit  int    `short:"n" help:"Show only the last N entries"`
	Follow bool   `short:"f" help:"Keep printing entries as they are appended"`
}

// SetupCmd runs the interactive setup wizard.
type SetupCmd struct{}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
