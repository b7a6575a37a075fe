// Package runner executes external tools.
//
// All subprocesses launched by atlasreg go through the Runner interface so
// that tool behaviour can be faked in tests without FSL installed.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrToolFailed indicates the tool exited with a non-zero status.
	ErrToolFailed = errors.New("external tool failed")

	// ErrToolNotFound indicates the tool binary is not on PATH.
	ErrToolNotFound = errors.New("external tool not found")
)

// Command is a single tool invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current one.
	Dir string
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is what a finished tool left behind.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner defines how external tools are launched.
type Runner interface {
	// Run executes cmd and blocks until it exits. A non-zero exit status is
	// returned as an *ExitError wrapping ErrToolFailed.
	Run(ctx context.Context, cmd Command) (*Result, error)

	// Start launches cmd without waiting for it to exit.
	Start(ctx context.Context, cmd Command) error
}

// ExitError describes a tool that exited with a non-zero status.
type ExitError struct {
	Command  Command
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Command.Name, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Unwrap lets errors.Is match ErrToolFailed.
func (e *ExitError) Unwrap() error {
	return ErrToolFailed
}
