// Package naming derives artifact paths from input volume names.
// Every file the pipeline writes is named by Derive so that outputs are a
// deterministic function of the subject's T1 base name.
package naming

import (
	"path/filepath"
	"strings"

	"atlasreg/internal/models"
)

// Suffixes appended to the T1 base name for each artifact
const (
	SuffixReg      = "_reg"
	SuffixNonlin   = "_nreg"
	SuffixWarpCoef = "_warpcoef"
	SuffixInverse  = "_inv"
	SuffixMNI      = "_mni"
	SuffixHammers  = "_hammers"
)

// AffineMatrixName is the fixed file name of the affine registration matrix
const AffineMatrixName = "invol2refvol.mat"

// Base returns the file name of path without directory and without a known
// volume extension. Unknown extensions are kept.
func Base(path string) string {
	name := filepath.Base(path)
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, models.CanonicalExt) {
		return name[:len(name)-len(models.CanonicalExt)]
	}
	for _, ext := range models.NativeExts {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// Derive builds dir/base+suffix+".nii.gz"
func Derive(dir, base, suffix string) string {
	return filepath.Join(dir, base+suffix+models.CanonicalExt)
}

// WithSuffix names a canonical sibling of path carrying suffix
func WithSuffix(path, suffix string) string {
	return Derive(filepath.Dir(path), Base(path), suffix)
}

// Canonical is the path a native volume takes after conversion
func Canonical(path string) string {
	return WithSuffix(path, "")
}

// AffineMatrixPath places the affine matrix next to the moving volume
func AffineMatrixPath(dir string) string {
	return filepath.Join(dir, AffineMatrixName)
}
