// Package fsl wraps the FSL registration tools used by the pipeline.
//
// Each function builds the argument list of one tool, runs it through a
// runner.Runner and checks that the file the tool is expected to write
// exists afterwards. Output names are derived with package naming.
package fsl

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"atlasreg/pkg/config"
	"atlasreg/pkg/runner"
)

var (
	// ErrMissingOutput indicates a tool exited cleanly without writing its output.
	ErrMissingOutput = errors.New("expected output missing")

	// ErrInvalidInterp indicates an interpolation mode the resampler does not
	// accept, or one that would corrupt a label volume.
	ErrInvalidInterp = errors.New("invalid interpolation")

	// ErrWrongDirection indicates a warp of the wrong direction was supplied.
	ErrWrongDirection = errors.New("wrong warp direction")

	// ErrNotCanonical indicates a volume that has not been converted to .nii.gz.
	ErrNotCanonical = errors.New("volume not in canonical format")
)

// Interp is an applywarp interpolation mode
type Interp string

const (
	InterpTrilinear Interp = "trilinear"
	InterpNearest   Interp = "nn"
	InterpSinc      Interp = "sinc"
	InterpSpline    Interp = "spline"
)

// Interps lists every mode applywarp accepts
var Interps = []Interp{InterpTrilinear, InterpNearest, InterpSinc, InterpSpline}

// ParseInterp validates s as an applywarp interpolation mode
func ParseInterp(s string) (Interp, error) {
	for _, i := range Interps {
		if string(i) == s {
			return i, nil
		}
	}
	return "", fmt.Errorf("%w: %q not one of %v", ErrInvalidInterp, s, Interps)
}

// Toolkit runs FSL tools.
type Toolkit struct {
	runner runner.Runner
	tools  config.Tools
	log    logrus.FieldLogger
}

// New creates a Toolkit invoking the binaries named in tools.
func New(r runner.Runner, tools config.Tools, log logrus.FieldLogger) *Toolkit {
	return &Toolkit{runner: r, tools: tools, log: log}
}

func (t *Toolkit) run(ctx context.Context, name string, args ...string) error {
	cmd := runner.Command{Name: name, Args: args}
	t.log.WithField("tool", name).Info(cmd.String())
	if _, err := t.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}

// requireOutput is the postcondition shared by every tool: a clean exit is
// not trusted unless the output is on disk.
func requireOutput(tool, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s did not write %s", ErrMissingOutput, tool, path)
	}
	return nil
}
