package fsl

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"atlasreg/internal/models"
	"atlasreg/pkg/naming"
)

// AffineOptions parameterise flirt.
type AffineOptions struct {
	DOF  int
	Cost string
}

// Flirt computes the affine transform aligning in to ref. The matrix is
// written as invol2refvol.mat next to in; the resampled volume flirt also
// produces is left on disk but not returned.
func (t *Toolkit) Flirt(ctx context.Context, in, ref models.Volume, opts AffineOptions) (models.AffineMatrix, error) {
	if err := requireCanonical(in, ref); err != nil {
		return models.AffineMatrix{}, err
	}

	out := naming.WithSuffix(in.Path, naming.SuffixReg)
	mat := naming.AffineMatrixPath(filepath.Dir(in.Path))

	err := t.run(ctx, t.tools.Flirt,
		"-in", in.Path,
		"-ref", ref.Path,
		"-out", out,
		"-omat", mat,
		"-dof", strconv.Itoa(opts.DOF),
		"-cost", opts.Cost,
	)
	if err != nil {
		return models.AffineMatrix{}, err
	}
	if err := requireOutput(t.tools.Flirt, mat); err != nil {
		return models.AffineMatrix{}, err
	}
	return models.AffineMatrix{Path: mat}, nil
}

// NonlinearOptions parameterise fnirt.
type NonlinearOptions struct {
	Interp string
}

// Fnirt refines the affine alignment of in to ref with a nonlinear warp.
// fnirt names its coefficient file <in base>_warpcoef.nii.gz by itself; its
// presence is the only evidence the registration succeeded.
func (t *Toolkit) Fnirt(ctx context.Context, in, ref models.Volume, aff models.AffineMatrix, opts NonlinearOptions) (models.Warp, error) {
	if err := requireCanonical(in, ref); err != nil {
		return models.Warp{}, err
	}

	iout := naming.WithSuffix(in.Path, naming.SuffixNonlin)
	coef := naming.WithSuffix(in.Path, naming.SuffixWarpCoef)

	err := t.run(ctx, t.tools.Fnirt,
		"--in="+in.Path,
		"--ref="+ref.Path,
		"--aff="+aff.Path,
		"--interp="+opts.Interp,
		"--iout="+iout,
	)
	if err != nil {
		return models.Warp{}, err
	}
	if err := requireOutput(t.tools.Fnirt, coef); err != nil {
		return models.Warp{}, err
	}
	return models.Warp{Path: coef, Direction: models.Forward}, nil
}

func requireCanonical(vols ...models.Volume) error {
	for _, v := range vols {
		if v.Format != models.FormatCanonical {
			return fmt.Errorf("%w: %s (%s)", ErrNotCanonical, v.Path, v.Format)
		}
	}
	return nil
}
