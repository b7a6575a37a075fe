// Package labelstest writes small NIfTI-1 label volumes for tests.
package labelstest

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/henghuang/nifti"

	"atlasreg/pkg/labels"
)

// voxOffset leaves the 4 byte extension flag after the header.
const voxOffset = 352

// Volume describes a volume to write. Voxels are in x-fastest order.
type Volume struct {
	Datatype labels.Datatype
	Dims     [3]int
	Voxels   []float64

	// SclSlope and SclInter are written to the header as is
	SclSlope float32
	SclInter float32
}

// Write stores v at path, gzip-compressed when path ends in .gz.
func Write(path string, v Volume) error {
	n := v.Dims[0] * v.Dims[1] * v.Dims[2]
	if len(v.Voxels) != n {
		return fmt.Errorf("volume has %d voxels, dims need %d", len(v.Voxels), n)
	}
	if v.Datatype.Bitpix() == 0 {
		return fmt.Errorf("datatype %d not supported", v.Datatype)
	}

	hdr := nifti.Nifti1Header{
		SizeofHdr: 348,
		Regular:   'r',
		Datatype:  int16(v.Datatype),
		Bitpix:    v.Datatype.Bitpix(),
		VoxOffset: voxOffset,
		SclSlope:  v.SclSlope,
		SclInter:  v.SclInter,
		Magic:     [4]byte{'n', '+', '1', 0},
	}
	hdr.Dim = [8]int16{3, int16(v.Dims[0]), int16(v.Dims[1]), int16(v.Dims[2]), 1, 1, 1, 1}
	hdr.Pixdim = [8]float32{1, 1, 1, 1, 1, 1, 1, 1}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	buf.Write(make([]byte, voxOffset-buf.Len()))
	for _, x := range v.Voxels {
		if err := writeVoxel(&buf, v.Datatype, x); err != nil {
			return err
		}
	}

	data := buf.Bytes()
	if strings.HasSuffix(path, ".gz") {
		var gz bytes.Buffer
		zw := gzip.NewWriter(&gz)
		if _, err := zw.Write(data); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		data = gz.Bytes()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func writeVoxel(buf *bytes.Buffer, dt labels.Datatype, x float64) error {
	var val any
	switch dt {
	case labels.DatatypeUint8:
		val = uint8(x)
	case labels.DatatypeInt8:
		val = int8(x)
	case labels.DatatypeInt16:
		val = int16(x)
	case labels.DatatypeUint16:
		val = uint16(x)
	case labels.DatatypeInt32:
		val = int32(x)
	case labels.DatatypeUint32:
		val = uint32(x)
	case labels.DatatypeFloat32:
		val = math.Float32bits(float32(x))
	case labels.DatatypeFloat64:
		val = math.Float64bits(x)
	default:
		return fmt.Errorf("datatype %d not supported", dt)
	}
	return binary.Write(buf, binary.LittleEndian, val)
}

// Labels builds a volume of dims holding the given label values in order,
// padded with background.
func Labels(dt labels.Datatype, dims [3]int, values ...float64) Volume {
	voxels := make([]float64, dims[0]*dims[1]*dims[2])
	copy(voxels, values)
	return Volume{Datatype: dt, Dims: dims, Voxels: voxels}
}
