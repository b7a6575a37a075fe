package visualization

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"atlasreg/internal/models"
	"atlasreg/pkg/runner"
)

// ErrNothingToShow indicates the viewer was given no volumes.
var ErrNothingToShow = errors.New("no volumes to display")

// Viewer launches an ITK-SNAP compatible viewer on the pipeline results.
// The viewer runs detached: the pipeline does not wait for the user to
// close it.
type Viewer struct {
	runner runner.Runner
	tool   string
	log    logrus.FieldLogger
}

// NewViewer creates a viewer launching tool
func NewViewer(r runner.Runner, tool string, log logrus.FieldLogger) *Viewer {
	return &Viewer{
		runner: r,
		tool:   tool,
		log:    log,
	}
}

// Args builds the viewer command line: the first volume is the main image,
// the rest are overlays and seg is loaded as the segmentation layer.
func Args(volumes []models.Volume, seg models.Volume) ([]string, error) {
	if len(volumes) == 0 {
		return nil, ErrNothingToShow
	}

	args := []string{"-g", volumes[0].Path}
	if len(volumes) > 1 {
		args = append(args, "-o")
		for _, v := range volumes[1:] {
			args = append(args, v.Path)
		}
	}
	if seg.Path != "" {
		args = append(args, "-s", seg.Path)
	}
	return args, nil
}

// Show starts the viewer on volumes with seg as segmentation overlay
func (v *Viewer) Show(ctx context.Context, volumes []models.Volume, seg models.Volume) error {
	args, err := Args(volumes, seg)
	if err != nil {
		return err
	}

	cmd := runner.Command{Name: v.tool, Args: args}
	if err := v.runner.Start(ctx, cmd); err != nil {
		return fmt.Errorf("launch viewer: %w", err)
	}
	v.log.WithField("tool", v.tool).Infof("viewer started with %d volumes", len(volumes))
	return nil
}
