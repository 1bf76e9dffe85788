package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vinayprograms/agentkit/logging"
	"golang.org/x/time/rate"

	"github.com/vinayprograms/warden/internal/config"
	"github.com/vinayprograms/warden/internal/workflow"
)

// Run watches the trigger directory and runs each workflow written into it.
func (c *WatchCmd) Run(g *Globals) error {
	rt, err := start(g)
	if err != nil {
		return err
	}
	defer rt.cleanup()

	dir := c.Dir
	if dir == "" {
		dir = config.ExpandHome(rt.cfg.Watch.Dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating trigger directory: %w", err)
	}
	minInterval := config.Duration(rt.cfg.Watch.MinInterval, 2*time.Second)

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Fprintf(os.Stderr, "Watching %s for workflows (tier: %s, Ctrl+C to stop)\n", dir, rt.exec.Tier())
	err = watchTriggers(ctx, dir, minInterval, func(ctx context.Context, path string) error {
		wf, err := workflow.LoadFile(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "\nRunning workflow: %s (%s)\n", wf.Name, filepath.Base(path))
		result, err := rt.exec.RunWorkflow(ctx, wf, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Workflow %s %s\n", wf.Name, result.Status)
		return nil
	})
	if err == context.Canceled {
		return nil
	}
	return err
}

// watchTriggers calls run for every workflow file created or written in dir
// until ctx ends. Runs are sequential and start no more often than minInterval;
// events for a file within minInterval of its last successful run are dropped.
func watchTriggers(ctx context.Context, dir string, minInterval time.Duration, run func(context.Context, string) error) error {
	logger := logging.New().WithComponent("watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	limiter := rate.NewLimiter(rate.Every(minInterval), 1)
	lastRun := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", map[string]interface{}{"error": err.Error()})

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isWorkflowFile(event.Name) {
				continue
			}
			if last, seen := lastRun[event.Name]; seen && time.Since(last) < minInterval {
				logger.Debug("trigger coalesced", map[string]interface{}{"file": event.Name})
				continue
			}
			if err := limiter.Wait(ctx); err != nil {
				return ctx.Err()
			}
			if err := run(ctx, event.Name); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				fmt.Fprintf(os.Stderr, "✗ %s: %v\n", filepath.Base(event.Name), err)
				logger.Error("triggered workflow failed", map[string]interface{}{
					"file":  event.Name,
					"error": err.Error(),
				})
				continue
			}
			lastRun[event.Name] = time.Now()
		}
	}
}

func isWorkflowFile(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
