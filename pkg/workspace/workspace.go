// Package workspace prepares the output directory a pipeline run works in.
//
// The subject T1, the template and the atlas are copied side by side into the
// output directory so that every artifact of a run lives in one place. All
// later steps only use the paths returned by Prepare.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"atlasreg/internal/models"
	"atlasreg/pkg/atlas"
	"atlasreg/pkg/fsl"
	"atlasreg/pkg/naming"
	"atlasreg/pkg/runner"
)

var (
	// ErrInputMissing indicates the subject T1 does not exist.
	ErrInputMissing = errors.New("input volume missing")

	// ErrUnsupportedFormat indicates a T1 container neither FSL nor the
	// converter understands.
	ErrUnsupportedFormat = errors.New("unsupported volume format")

	// ErrNameCollision indicates a T1 whose copy would replace the template
	// or the atlas in the output directory.
	ErrNameCollision = errors.New("input name collides with bundled asset")
)

// Workspace is a prepared output directory.
type Workspace struct {
	Dir      string
	T1       models.Volume
	Template models.Volume
	Labels   models.Volume

	// Converted is set when the T1 was converted to .nii.gz
	Converted bool
}

// Preparer copies inputs into output directories.
type Preparer struct {
	runner  runner.Runner
	convert string
	log     logrus.FieldLogger
}

// NewPreparer creates a Preparer converting native volumes with the convert tool.
func NewPreparer(r runner.Runner, convert string, log logrus.FieldLogger) *Preparer {
	return &Preparer{runner: r, convert: convert, log: log}
}

// CheckInput fails with ErrInputMissing unless path is an existing file.
func CheckInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInputMissing, path)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInputMissing, path)
	}
	if models.FormatOf(path) == models.FormatUnknown {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return nil
}

// Prepare creates outDir (it may exist already), copies the T1 and the
// bundled assets into it and converts the T1 to .nii.gz when needed.
func (p *Preparer) Prepare(ctx context.Context, t1Path, outDir string, assets atlas.Assets) (*Workspace, error) {
	if err := CheckInput(t1Path); err != nil {
		return nil, err
	}
	if err := checkCollision(t1Path, assets); err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(outDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("error creating output directory: %w", err)
	}

	ws := &Workspace{Dir: dir}

	if ws.Template, err = copyInto(assets.Template, dir); err != nil {
		return nil, err
	}
	if ws.Labels, err = copyInto(assets.Labels, dir); err != nil {
		return nil, err
	}
	if ws.T1, err = copyInto(models.NewVolume(t1Path, models.KindIntensity), dir); err != nil {
		return nil, err
	}
	p.log.WithField("path", dir).Debug("copied inputs")

	if ws.T1.Format == models.FormatNative {
		converted, err := p.toCanonical(ctx, ws.T1)
		if err != nil {
			return nil, err
		}
		ws.T1 = converted
		ws.Converted = true
	}

	return ws, nil
}

// checkCollision compares base names, so a native T1 is caught before its
// conversion would overwrite an asset copy.
func checkCollision(t1Path string, assets atlas.Assets) error {
	base := naming.Base(t1Path)
	for _, v := range []models.Volume{assets.Template, assets.Labels} {
		if base == naming.Base(v.Path) {
			return fmt.Errorf("%w: %s and %s", ErrNameCollision, t1Path, v.Path)
		}
	}
	return nil
}

func (p *Preparer) toCanonical(ctx context.Context, v models.Volume) (models.Volume, error) {
	out := naming.Canonical(v.Path)
	p.log.WithFields(logrus.Fields{"path": v.Path, "format": v.Format}).Info("converting to " + models.CanonicalExt)

	cmd := runner.Command{Name: p.convert, Args: []string{"-in", v.Path, "-out", out}}
	if _, err := p.runner.Run(ctx, cmd); err != nil {
		return models.Volume{}, fmt.Errorf("convert %s: %w", v.Path, err)
	}
	if _, err := os.Stat(out); err != nil {
		return models.Volume{}, fmt.Errorf("%w: %s did not write %s", fsl.ErrMissingOutput, p.convert, out)
	}
	return models.NewVolume(out, v.Kind), nil
}

// copyInto copies v into dir keeping its base name and asserts the copy exists.
func copyInto(v models.Volume, dir string) (models.Volume, error) {
	dst := filepath.Join(dir, filepath.Base(v.Path))
	if err := copyFile(v.Path, dst); err != nil {
		return models.Volume{}, fmt.Errorf("copy %s: %w", v.Path, err)
	}
	if _, err := os.Stat(dst); err != nil {
		return models.Volume{}, fmt.Errorf("%w: copy of %s", fsl.ErrMissingOutput, v.Path)
	}
	return models.NewVolume(dst, v.Kind), nil
}

func copyFile(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	// Rerunning on a T1 that already lives in the output directory must not
	// truncate it.
	if dstInfo, err := os.Stat(dst); err == nil && os.SameFile(srcInfo, dstInfo) {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
