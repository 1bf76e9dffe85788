package tools

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/vinayprograms/warden/internal/faults"
	"github.com/vinayprograms/warden/internal/permission"
)

type bash struct {
	r       *Registry
	timeout time.Duration
}

func (t *bash) Name() string              { return "bash" }
func (t *bash) Action() permission.Action { return permission.ActionExecute }
func (t *bash) Resource(args map[string]interface{}) (string, error) {
	return stringArg(args, "command")
}

// Call runs the command in the workspace and returns its trimmed stdout. The
// process is killed when the timeout expires.
func (t *bash) Call(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	command, err := stringArg(args, "command")
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = t.r.Workspace()
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	t.r.logger.Debug("bash finished", map[string]interface{}{
		"command":     command,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, faults.New(faults.KindCommandTimeout, "command %q exceeded %s", command, t.timeout)
	}
	if runErr != nil {
		var ee *exec.ExitError
		if errors.As(runErr, &ee) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = strings.TrimSpace(stdout.String())
			}
			return nil, faults.New(faults.KindCommandExecutionFailure, "command %q exited %d: %s", command, ee.ExitCode(), msg)
		}
		return nil, faults.Wrap(faults.KindCommandExecutionFailure, runErr, "command %q", command)
	}
	return strings.TrimSpace(stdout.String()), nil
}
