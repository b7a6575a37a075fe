package labels

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/henghuang/nifti"
)

// ErrUnsupportedVolume indicates a NIfTI file whose layout or voxel type
// cannot be decoded. It is never reported as altered labels.
var ErrUnsupportedVolume = errors.New("unsupported label volume")

// Datatype is a NIfTI-1 voxel type code.
type Datatype int16

// Voxel types accepted for label volumes
const (
	DatatypeUint8   Datatype = 2
	DatatypeInt16   Datatype = 4
	DatatypeInt32   Datatype = 8
	DatatypeFloat32 Datatype = 16
	DatatypeFloat64 Datatype = 64
	DatatypeInt8    Datatype = 256
	DatatypeUint16  Datatype = 512
	DatatypeUint32  Datatype = 768
)

const (
	headerSize = 348
	// headerSize as read from a big-endian file
	swappedHeaderSize = 0x5c010000
)

// Bitpix returns the bits per voxel of d, or 0 for types not listed above.
func (d Datatype) Bitpix() int16 {
	switch d {
	case DatatypeUint8, DatatypeInt8:
		return 8
	case DatatypeInt16, DatatypeUint16:
		return 16
	case DatatypeInt32, DatatypeUint32, DatatypeFloat32:
		return 32
	case DatatypeFloat64:
		return 64
	}
	return 0
}

// decoder recovers the stored value from what nifti.GetAt returns. The
// library picks its conversion from the voxel width alone: 1 and 2 byte
// voxels come back as exact unsigned integers, 4 byte voxels as the raw bits
// reinterpreted as float32 and 8 byte voxels as a float64 narrowed to float32.
func (d Datatype) decoder() func(float32) float64 {
	switch d {
	case DatatypeUint8, DatatypeUint16, DatatypeFloat32, DatatypeFloat64:
		return func(v float32) float64 { return float64(v) }
	case DatatypeInt8:
		return func(v float32) float64 { return float64(int8(uint8(v))) }
	case DatatypeInt16:
		return func(v float32) float64 { return float64(int16(uint16(v))) }
	case DatatypeInt32:
		return func(v float32) float64 { return float64(int32(math.Float32bits(v))) }
	case DatatypeUint32:
		return func(v float32) float64 { return float64(math.Float32bits(v)) }
	}
	return nil
}

// volumeGrid holds the first time point of a decoded volume.
type volumeGrid struct {
	dims   [3]int
	voxels []float64
}

func (g *volumeGrid) Dims() (int, int, int) {
	return g.dims[0], g.dims[1], g.dims[2]
}

func (g *volumeGrid) At(x, y, z int) float64 {
	return g.voxels[x+g.dims[0]*(y+g.dims[1]*z)]
}

// Load reads a single-file .nii or .nii.gz volume as a Grid, applying
// scl_slope and scl_inter. Only the first time point of 4D files is read.
func Load(path string) (Grid, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	hdr, err := safelyLoadHeader(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := checkHeader(&hdr); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	dt := Datatype(hdr.Datatype)

	img, err := safelyLoad(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	g := &volumeGrid{}
	for i := range g.dims {
		g.dims[i] = int(hdr.Dim[i+1])
	}
	g.voxels, err = safelyDecode(img, g.dims, dt.decoder(), scaling(hdr.SclSlope, hdr.SclInter))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return g, nil
}

func checkHeader(hdr *nifti.Nifti1Header) error {
	switch {
	case hdr.SizeofHdr == swappedHeaderSize:
		return fmt.Errorf("%w: big-endian files are not supported", ErrUnsupportedVolume)
	case hdr.SizeofHdr != headerSize:
		return fmt.Errorf("%w: not a NIfTI-1 file (header size %d)", ErrUnsupportedVolume, hdr.SizeofHdr)
	case string(hdr.Magic[:3]) != "n+1":
		return fmt.Errorf("%w: only single-file NIfTI-1 is supported", ErrUnsupportedVolume)
	case hdr.Dim[0] < 3 || hdr.Dim[0] > 7:
		return fmt.Errorf("%w: expected a 3D volume, got %d dimensions", ErrUnsupportedVolume, hdr.Dim[0])
	case hdr.VoxOffset < headerSize:
		return fmt.Errorf("%w: voxel offset %g inside the header", ErrUnsupportedVolume, hdr.VoxOffset)
	}
	for i := 1; i <= 3; i++ {
		if hdr.Dim[i] < 1 {
			return fmt.Errorf("%w: empty dimension %d", ErrUnsupportedVolume, i)
		}
	}

	dt := Datatype(hdr.Datatype)
	want := dt.Bitpix()
	if want == 0 {
		return fmt.Errorf("%w: datatype %d", ErrUnsupportedVolume, hdr.Datatype)
	}
	if hdr.Bitpix != want {
		return fmt.Errorf("%w: datatype %d with %d bits per voxel", ErrUnsupportedVolume, hdr.Datatype, hdr.Bitpix)
	}
	return nil
}

// scaling returns the scl_slope/scl_inter transform; a zero slope means the
// stored values are used as is.
func scaling(slope, inter float32) func(float64) float64 {
	if slope == 0 || math.IsNaN(float64(slope)) || (slope == 1 && inter == 0) {
		return func(v float64) float64 { return v }
	}
	s, i := float64(slope), float64(inter)
	return func(v float64) float64 { return v*s + i }
}

// safelyLoadHeader turns panics of the nifti library into errors.
func safelyLoadHeader(path string) (hdr nifti.Nifti1Header, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	hdr.LoadHeader(path)
	return hdr, nil
}

// safelyLoad turns panics of the nifti library into errors.
func safelyLoad(path string) (img *nifti.Nifti1Image, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			img, err = nil, fmt.Errorf("%v", panicErr)
		}
	}()

	img = &nifti.Nifti1Image{}
	img.LoadImage(path, true)
	return img, nil
}

// safelyDecode reads every voxel of the first time point. The library
// panics on out-of-range reads, which is how truncated files show up.
func safelyDecode(img *nifti.Nifti1Image, dims [3]int, decode func(float32) float64, scale func(float64) float64) (voxels []float64, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			voxels, err = nil, fmt.Errorf("%w: truncated voxel data: %v", ErrUnsupportedVolume, panicErr)
		}
	}()

	voxels = make([]float64, 0, dims[0]*dims[1]*dims[2])
	for z := 0; z < dims[2]; z++ {
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				voxels = append(voxels, scale(decode(img.GetAt(x, y, z, 0))))
			}
		}
	}
	return voxels, nil
}

// Verify compares the source atlas at sourcePath with the warped atlas at
// warpedPath.
func Verify(sourcePath, warpedPath string) (Report, error) {
	source, err := Load(sourcePath)
	if err != nil {
		return Report{}, err
	}
	warped, err := Load(warpedPath)
	if err != nil {
		return Report{}, err
	}
	return Compare(Count(source), Count(warped)), nil
}
