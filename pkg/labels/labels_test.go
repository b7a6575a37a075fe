package labels

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// memGrid is a row-major in-memory volume.
type memGrid struct {
	x, y, z int
	data    []float64
}

func newMemGrid(x, y, z int) *memGrid {
	return &memGrid{x: x, y: y, z: z, data: make([]float64, x*y*z)}
}

func (g *memGrid) Dims() (int, int, int) { return g.x, g.y, g.z }
func (g *memGrid) At(x, y, z int) float64 {
	return g.data[z*g.x*g.y+y*g.x+x]
}
func (g *memGrid) set(x, y, z int, v float64) {
	g.data[z*g.x*g.y+y*g.x+x] = v
}

// nearestResample maps each target voxel to a source voxel, the way
// nearest-neighbour interpolation does, using pick to choose the source.
func nearestResample(src *memGrid, x, y, z int, pick func(i int) int) *memGrid {
	dst := newMemGrid(x, y, z)
	for i := range dst.data {
		dst.data[i] = src.data[pick(i)]
	}
	return dst
}

func TestCount(t *testing.T) {
	g := newMemGrid(3, 2, 2)
	g.set(0, 0, 0, 4)
	g.set(1, 0, 0, 4)
	g.set(2, 1, 1, 17)
	g.set(0, 1, 1, 2.5)

	h := Count(g)
	require.Equal(t, map[int]int{4: 2, 17: 1}, h.Counts)
	require.Equal(t, 1, h.NonIntegral)
	require.Equal(t, []int{4, 17}, h.Labels())
}

func TestCompare_Preserved(t *testing.T) {
	source := Histogram{Counts: map[int]int{1: 100, 2: 50, 3: 10}}
	warped := Histogram{Counts: map[int]int{1: 210, 2: 98, 3: 22}}

	r := Compare(source, warped)
	require.Equal(t, []int{1, 2, 3}, r.SourceLabels)
	require.Equal(t, []int{1, 2, 3}, r.WarpedLabels)
	require.Empty(t, r.Extraneous)
	require.Empty(t, r.Missing)
	require.InDelta(t, 1.0, r.CountCorrelation, 0.01)
	require.NoError(t, r.Check(true))
}

func TestCompare_ExtraneousLabel(t *testing.T) {
	source := Histogram{Counts: map[int]int{1: 10, 2: 10}}
	warped := Histogram{Counts: map[int]int{1: 10, 2: 9, 9: 1}}

	r := Compare(source, warped)
	require.Equal(t, []int{9}, r.Extraneous)

	err := r.Check(false)
	require.ErrorIs(t, err, ErrLabelsAltered)
	require.Contains(t, err.Error(), "[9]")
}

func TestCompare_MissingLabel(t *testing.T) {
	source := Histogram{Counts: map[int]int{1: 10, 2: 10, 3: 1}}
	warped := Histogram{Counts: map[int]int{1: 10, 2: 10}}

	r := Compare(source, warped)
	require.Equal(t, []int{3}, r.Missing)
	require.NoError(t, r.Check(false), "vanished labels are tolerated by default")
	require.ErrorIs(t, r.Check(true), ErrLabelsAltered)
}

func TestCompare_Smoothed(t *testing.T) {
	source := Histogram{Counts: map[int]int{1: 10}}
	warped := Histogram{Counts: map[int]int{1: 8}, NonIntegral: 2}

	r := Compare(source, warped)
	require.Equal(t, 2, r.NonIntegral)
	require.ErrorIs(t, r.Check(false), ErrLabelsAltered)
	require.Zero(t, r.CountCorrelation, "a single label has no correlation")
}

func TestNearestResamplingPreservesLabels(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		sx := rapid.IntRange(1, 6).Draw(r, "sx")
		sy := rapid.IntRange(1, 6).Draw(r, "sy")
		sz := rapid.IntRange(1, 6).Draw(r, "sz")
		src := newMemGrid(sx, sy, sz)
		for i := range src.data {
			src.data[i] = float64(rapid.IntRange(0, 95).Draw(r, "label"))
		}

		dx := rapid.IntRange(1, 8).Draw(r, "dx")
		dy := rapid.IntRange(1, 8).Draw(r, "dy")
		dz := rapid.IntRange(1, 8).Draw(r, "dz")
		picks := rapid.SliceOfN(rapid.IntRange(0, len(src.data)-1), dx*dy*dz, dx*dy*dz).Draw(r, "picks")
		dst := nearestResample(src, dx, dy, dz, func(i int) int { return picks[i] })

		report := Compare(Count(src), Count(dst))
		if len(report.Extraneous) != 0 {
			r.Fatalf("nearest resampling introduced labels %v", report.Extraneous)
		}
		if report.NonIntegral != 0 {
			r.Fatalf("nearest resampling produced %d fractional voxels", report.NonIntegral)
		}
		if err := report.Check(false); err != nil {
			r.Fatalf("check failed: %v", err)
		}
	})
}

