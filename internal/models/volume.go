package models

import (
	"strings"
)

// Format tags the container a volume is stored in
type Format int

const (
	// FormatUnknown is any extension the pipeline cannot handle
	FormatUnknown Format = iota

	// FormatNative is a container the format converter understands
	// but the registration tools should not consume directly
	FormatNative

	// FormatCanonical is gzipped NIfTI, the only format handed to FSL
	FormatCanonical
)

// CanonicalExt is the extension of FormatCanonical volumes
const CanonicalExt = ".nii.gz"

// NativeExts lists extensions of volumes that are converted before use.
// ".nii" must stay after ".nii.gz" is checked, see FormatOf.
var NativeExts = []string{".nii", ".nrrd", ".nhdr", ".mha", ".mhd"}

func (f Format) String() string {
	switch f {
	case FormatNative:
		return "native"
	case FormatCanonical:
		return "canonical"
	default:
		return "unknown"
	}
}

// FormatOf classifies a path by its extension
func FormatOf(path string) Format {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, CanonicalExt) {
		return FormatCanonical
	}
	for _, ext := range NativeExts {
		if strings.HasSuffix(lower, ext) {
			return FormatNative
		}
	}
	return FormatUnknown
}

// Kind says how voxel values of a volume are to be interpreted
type Kind int

const (
	// KindIntensity volumes hold continuous values (T1, template)
	KindIntensity Kind = iota

	// KindLabel volumes hold discrete region labels and may only be
	// resampled with nearest-neighbour interpolation
	KindLabel
)

func (k Kind) String() string {
	if k == KindLabel {
		return "label"
	}
	return "intensity"
}

// Volume is an image volume on disk
type Volume struct {
	// Path is the location of the volume file
	Path string

	// Format is derived from the extension of Path
	Format Format

	// Kind tells resampling steps which interpolation is legal
	Kind Kind
}

// NewVolume creates a Volume, deriving its format from the path
func NewVolume(path string, kind Kind) Volume {
	return Volume{
		Path:   path,
		Format: FormatOf(path),
		Kind:   kind,
	}
}

// AffineMatrix is the text matrix written by affine registration
type AffineMatrix struct {
	Path string
}

// Direction of a deformation field
type Direction int

const (
	// Forward warps map subject space to template space
	Forward Direction = iota

	// Inverse warps map template space to subject space
	Inverse
)

func (d Direction) String() string {
	if d == Inverse {
		return "inverse"
	}
	return "forward"
}

// Warp is a deformation field file
type Warp struct {
	Path      string
	Direction Direction
}
