package fsl

import (
	"context"
	"fmt"

	"atlasreg/internal/models"
	"atlasreg/pkg/naming"
)

// InvWarp inverts a forward warp so it maps template space to the space of
// ref, which also defines the sampling grid of the result.
func (t *Toolkit) InvWarp(ctx context.Context, warp models.Warp, ref models.Volume) (models.Warp, error) {
	if warp.Direction != models.Forward {
		return models.Warp{}, fmt.Errorf("%w: invwarp needs a forward warp, got %s", ErrWrongDirection, warp.Direction)
	}

	out := naming.WithSuffix(warp.Path, naming.SuffixInverse)
	err := t.run(ctx, t.tools.InvWarp,
		"--warp="+warp.Path,
		"--out="+out,
		"--ref="+ref.Path,
	)
	if err != nil {
		return models.Warp{}, err
	}
	if err := requireOutput(t.tools.InvWarp, out); err != nil {
		return models.Warp{}, err
	}
	return models.Warp{Path: out, Direction: models.Inverse}, nil
}

// ApplyWarp resamples in onto the grid of ref through an inverse warp.
// The output is named after ref, not in, so every transferred volume
// carries the subject's name: <ref base><suffix>.nii.gz.
//
// interp is checked before anything is launched; label volumes only
// accept nearest-neighbour.
func (t *Toolkit) ApplyWarp(ctx context.Context, in, ref models.Volume, warp models.Warp, interp Interp, suffix string) (models.Volume, error) {
	if _, err := ParseInterp(string(interp)); err != nil {
		return models.Volume{}, err
	}
	if in.Kind == models.KindLabel && interp != InterpNearest {
		return models.Volume{}, fmt.Errorf("%w: label volume %s must use %s, not %s",
			ErrInvalidInterp, in.Path, InterpNearest, interp)
	}
	if warp.Direction != models.Inverse {
		return models.Volume{}, fmt.Errorf("%w: applywarp needs an inverse warp, got %s", ErrWrongDirection, warp.Direction)
	}

	out := naming.WithSuffix(ref.Path, suffix)
	err := t.run(ctx, t.tools.ApplyWarp,
		"--in="+in.Path,
		"--out="+out,
		"--ref="+ref.Path,
		"--warp="+warp.Path,
		"--interp="+string(interp),
	)
	if err != nil {
		return models.Volume{}, err
	}
	if err := requireOutput(t.tools.ApplyWarp, out); err != nil {
		return models.Volume{}, err
	}
	t.log.WithField("path", in.Path).Info("finished transformation")
	return models.NewVolume(out, in.Kind), nil
}
