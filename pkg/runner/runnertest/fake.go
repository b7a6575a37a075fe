// Package runnertest provides a fake runner.Runner for tests.
//
// Fake records every command and lets tests simulate what a tool writes:
//
//	fake := runnertest.New()
//	fake.Handle("flirt", func(c runner.Command) error {
//	    return runnertest.Touch(runnertest.ArgAfter(c, "-omat"))
//	})
package runnertest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"atlasreg/pkg/runner"
)

// Compile-time check that Fake implements runner.Runner.
var _ runner.Runner = (*Fake)(nil)

// HandlerFunc simulates a tool. A returned error fails the invocation.
type HandlerFunc func(c runner.Command) error

// Fake is a recording runner.Runner.
type Fake struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	runs     []runner.Command
	starts   []runner.Command
}

// New creates a Fake whose tools succeed without side effects.
func New() *Fake {
	return &Fake{handlers: make(map[string]HandlerFunc)}
}

// Handle installs fn for tool name.
func (f *Fake) Handle(name string, fn HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[name] = fn
}

// Fail makes tool name exit with status code.
func (f *Fake) Fail(name string, code int) {
	f.Handle(name, func(c runner.Command) error {
		return &runner.ExitError{Command: c, ExitCode: code, Stderr: "simulated failure"}
	})
}

// Run records c and calls its handler.
func (f *Fake) Run(ctx context.Context, c runner.Command) (*runner.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.runs = append(f.runs, c)
	fn := f.handlers[c.Name]
	f.mu.Unlock()

	if fn != nil {
		if err := fn(c); err != nil {
			res := &runner.Result{ExitCode: 1}
			if exitErr, ok := err.(*runner.ExitError); ok {
				res.ExitCode = exitErr.ExitCode
			}
			return res, err
		}
	}
	return &runner.Result{}, nil
}

// Start records c without calling any handler.
func (f *Fake) Start(_ context.Context, c runner.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, c)
	return nil
}

// Runs returns the commands passed to Run, in order.
func (f *Fake) Runs() []runner.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runner.Command(nil), f.runs...)
}

// Starts returns the commands passed to Start, in order.
func (f *Fake) Starts() []runner.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runner.Command(nil), f.starts...)
}

// Names returns the tool names passed to Run, in order.
func (f *Fake) Names() []string {
	runs := f.Runs()
	names := make([]string, len(runs))
	for i, c := range runs {
		names[i] = c.Name
	}
	return names
}

// ArgAfter returns the argument following flag, for "-flag value" tools.
func ArgAfter(c runner.Command, flag string) string {
	for i, a := range c.Args {
		if a == flag && i+1 < len(c.Args) {
			return c.Args[i+1]
		}
	}
	return ""
}

// ArgValue returns the value of a "--flag=value" argument.
func ArgValue(c runner.Command, flag string) string {
	prefix := flag + "="
	for _, a := range c.Args {
		if strings.HasPrefix(a, prefix) {
			return strings.TrimPrefix(a, prefix)
		}
	}
	return ""
}

// Touch creates an empty file at path, including parent directories.
func Touch(path string) error {
	if path == "" {
		return fmt.Errorf("touch: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, nil, 0644)
}
