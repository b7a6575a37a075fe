// Package labels checks that resampling an atlas preserved its region labels.
//
// Nearest-neighbour resampling can only copy voxel values, so a warped atlas
// must never contain a label the source atlas lacks, nor a fractional value.
// Small regions may legitimately vanish when the subject grid is coarser;
// those are reported and only fail the check when all labels are required.
package labels

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ErrLabelsAltered indicates the warped atlas does not carry the source labels.
var ErrLabelsAltered = errors.New("atlas labels altered by resampling")

// Background is the label value outside every region.
const Background = 0

// Grid is a 3D volume of voxel values.
type Grid interface {
	Dims() (x, y, z int)
	At(x, y, z int) float64
}

// Histogram holds voxel counts per label.
type Histogram struct {
	Counts map[int]int

	// NonIntegral counts voxels whose value is not a whole number
	NonIntegral int
}

// Count builds the label histogram of g, skipping background voxels.
func Count(g Grid) Histogram {
	h := Histogram{Counts: make(map[int]int)}
	xm, ym, zm := g.Dims()
	for z := 0; z < zm; z++ {
		for y := 0; y < ym; y++ {
			for x := 0; x < xm; x++ {
				v := g.At(x, y, z)
				if v != math.Trunc(v) {
					h.NonIntegral++
					continue
				}
				label := int(v)
				if label == Background {
					continue
				}
				h.Counts[label]++
			}
		}
	}
	return h
}

// Labels returns the distinct labels of h in ascending order.
func (h Histogram) Labels() []int {
	out := make([]int, 0, len(h.Counts))
	for l := range h.Counts {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// Report compares a source atlas with its warped copy.
type Report struct {
	SourceLabels []int `yaml:"source_labels"`
	WarpedLabels []int `yaml:"warped_labels"`

	// Extraneous labels appear in the warped atlas only
	Extraneous []int `yaml:"extraneous,omitempty"`

	// Missing labels vanished during warping
	Missing []int `yaml:"missing,omitempty"`

	// NonIntegral voxels in the warped atlas, a sign of smoothing
	NonIntegral int `yaml:"non_integral"`

	// CountCorrelation is the Pearson correlation of per-label voxel counts
	// between source and warped atlas; 0 when it cannot be computed.
	CountCorrelation float64 `yaml:"count_correlation"`
}

// Compare builds the report for source and warped histograms.
func Compare(source, warped Histogram) Report {
	r := Report{
		SourceLabels: source.Labels(),
		WarpedLabels: warped.Labels(),
		NonIntegral:  warped.NonIntegral,
	}

	for _, l := range r.WarpedLabels {
		if _, ok := source.Counts[l]; !ok {
			r.Extraneous = append(r.Extraneous, l)
		}
	}
	for _, l := range r.SourceLabels {
		if _, ok := warped.Counts[l]; !ok {
			r.Missing = append(r.Missing, l)
		}
	}

	xs := make([]float64, len(r.SourceLabels))
	ys := make([]float64, len(r.SourceLabels))
	for i, l := range r.SourceLabels {
		xs[i] = float64(source.Counts[l])
		ys[i] = float64(warped.Counts[l])
	}
	if len(xs) > 1 {
		if c := stat.Correlation(xs, ys, nil); !math.IsNaN(c) {
			r.CountCorrelation = c
		}
	}
	return r
}

// Check turns the report into an error when labels were altered.
func (r Report) Check(requireAll bool) error {
	if len(r.Extraneous) > 0 {
		return fmt.Errorf("%w: labels %v not in source atlas", ErrLabelsAltered, r.Extraneous)
	}
	if r.NonIntegral > 0 {
		return fmt.Errorf("%w: %d voxels hold fractional values", ErrLabelsAltered, r.NonIntegral)
	}
	if requireAll && len(r.Missing) > 0 {
		return fmt.Errorf("%w: labels %v vanished", ErrLabelsAltered, r.Missing)
	}
	return nil
}
