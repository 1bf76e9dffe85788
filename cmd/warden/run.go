package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/vinayprograms/warden/internal/workflow"
)

// Run executes a workflow file and prints its outputs as JSON.
func (c *RunCmd) Run(g *Globals) error {
	wf, err := workflow.LoadFile(c.File)
	if err != nil {
		return fmt.Errorf("error loading workflow: %w", err)
	}

	rt, err := start(g)
	if err != nil {
		return err
	}
	defer rt.cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Fprintf(os.Stderr, "Running workflow: %s (tier: %s)\n\n", wf.Name, rt.exec.Tier())
	result, err := rt.exec.RunWorkflow(ctx, wf, c.Input)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n✓ Workflow complete\n")
	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}
