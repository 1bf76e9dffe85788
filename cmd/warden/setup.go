package main

import (
	"fmt"

	"github.com/vinayprograms/warden/internal/config"
	"github.com/vinayprograms/warden/internal/setup"
)

// Run starts the setup wizard for the config file.
func (c *SetupCmd) Run(g *Globals) error {
	path := g.Config
	if path == "" {
		path = config.DefaultFile
	}
	return setup.Run(path)
}

// Run prints version information.
func (c *VersionCmd) Run() error {
	fmt.Printf("warden version %s (commit: %s, built: %s)\n", version, commit, buildTime)
	return nil
}
