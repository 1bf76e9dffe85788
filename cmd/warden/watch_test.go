package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIsWorkflowFile(t *testing.T) {
	tests := map[string]bool{
		"nightly.yaml":     true,
		"nightly.YML":      true,
		"dir/deploy.yml":   true,
		".nightly.yaml.sw": false,
		".hidden.yaml":     false,
		"notes.txt":        false,
		"workflow":         false,
	}
	for path, want := range tests {
		if got := isWorkflowFile(path); got != want {
			t.Errorf("isWorkflowFile(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestWatchTriggers_RunsNewWorkflows(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ran := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- watchTriggers(ctx, dir, 10*time.Millisecond, func(ctx context.Context, path string) error {
			ran <- filepath.Base(path)
			return nil
		})
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "job.yaml"), []byte("name: job\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case name := <-ran:
		if name != "job.yaml" {
			t.Errorf("unexpected trigger %q", name)
		}
	case <-ctx.Done():
		t.Fatal("workflow was never triggered")
	}

	cancel()
	if err := <-done; err != context.Canceled && err != context.DeadlineExceeded {
		t.Errorf("unexpected watch result %v", err)
	}
}
