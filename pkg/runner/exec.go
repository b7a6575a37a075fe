package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Compile-time check that ExecRunner implements Runner.
var _ Runner = (*ExecRunner)(nil)

// ExecRunner implements Runner with os/exec.
type ExecRunner struct {
	log logrus.FieldLogger
}

// NewExecRunner creates an ExecRunner logging through log.
func NewExecRunner(log logrus.FieldLogger) *ExecRunner {
	return &ExecRunner{log: log}
}

func (r *ExecRunner) command(ctx context.Context, c Command) (*exec.Cmd, error) {
	path, err := exec.LookPath(c.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrToolNotFound, c.Name, err)
	}
	//nolint:gosec // G204: tool names come from configuration
	cmd := exec.CommandContext(ctx, path, c.Args...)
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	return cmd, nil
}

// Run executes c and waits for it, capturing stdout and stderr.
func (r *ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	cmd, err := r.command(ctx, c)
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.WithField("tool", c.Name).Debugf("exec %s", c)
	start := time.Now()
	runErr := cmd.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("%s interrupted: %w", c.Name, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, &ExitError{
				Command:  c,
				ExitCode: res.ExitCode,
				Stderr:   strings.TrimSpace(res.Stderr),
			}
		}
		return res, fmt.Errorf("%s: %w", c, runErr)
	}

	r.log.WithFields(logrus.Fields{
		"tool":     c.Name,
		"duration": res.Duration.Round(time.Millisecond),
	}).Debug("tool finished")
	return res, nil
}

// Start launches c in the background. The child outlives cancellation of ctx
// and is reaped in a goroutine; its exit status is only logged.
func (r *ExecRunner) Start(ctx context.Context, c Command) error {
	cmd, err := r.command(context.WithoutCancel(ctx), c)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.Name, err)
	}
	r.log.WithField("tool", c.Name).Debugf("started %s (pid %d)", c, cmd.Process.Pid)

	go func() {
		if err := cmd.Wait(); err != nil {
			r.log.WithField("tool", c.Name).Debugf("background tool exited: %v", err)
		}
	}()
	return nil
}
