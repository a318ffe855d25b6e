// Package validation checks locus coeruleus marking masks against the
// marking protocol: three shared axial slices, right LC lateral to left LC
// in voxel x, a centred pontine tegmentum reference six voxels ventral to
// the LC, and fixed ROI sizes.
package validation

import (
	"fmt"
	"sort"

	"lccnr/internal/models"
)

// Label is an ROI value in a marking mask
type Label int

const (
	Background Label = 0
	RightLC    Label = 1
	LeftLC     Label = 2
	PT         Label = 3
)

// ROILabels lists the marked labels in mask order
var ROILabels = []Label{RightLC, LeftLC, PT}

func (l Label) String() string {
	switch l {
	case Background:
		return "background"
	case RightLC:
		return "right LC"
	case LeftLC:
		return "left LC"
	case PT:
		return "PT"
	}
	return fmt.Sprintf("label %d", int(l))
}

// Coords holds the voxel coordinates of one label as parallel arrays
type Coords struct {
	X, Y, Z []int
}

// CoordinatesForLabel returns every voxel whose value equals label.
// No match is a valid, empty result.
func CoordinatesForLabel(v *models.Volume, label Label) Coords {
	var c Coords
	want := float64(label)
	for x := 0; x < v.Width; x++ {
		for y := 0; y < v.Height; y++ {
			for z := 0; z < v.Depth; z++ {
				if v.At(x, y, z) == want {
					c.X = append(c.X, x)
					c.Y = append(c.Y, y)
					c.Z = append(c.Z, z)
				}
			}
		}
	}
	return c
}

// Len returns the number of voxels in the set
func (c Coords) Len() int {
	return len(c.X)
}

// OnSlice returns the subset of voxels lying on axial slice z
func (c Coords) OnSlice(z int) Coords {
	var out Coords
	for i, zi := range c.Z {
		if zi == z {
			out.X = append(out.X, c.X[i])
			out.Y = append(out.Y, c.Y[i])
			out.Z = append(out.Z, zi)
		}
	}
	return out
}

// DistinctSlices returns the ascending set of z values present
func (c Coords) DistinctSlices() []int {
	return distinct(c.Z)
}

func distinct(values []int) []int {
	seen := make(map[int]struct{}, len(values))
	out := make([]int, 0)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// MarkedSlices returns the ascending z indices holding any non-zero voxel
func MarkedSlices(v *models.Volume) []int {
	plane := v.Width * v.Height
	var out []int
	for z := 0; z < v.Depth; z++ {
		for _, value := range v.Data[z*plane : (z+1)*plane] {
			if value != 0 {
				out = append(out, z)
				break
			}
		}
	}
	return out
}

// countLabel counts voxels equal to label in a 2-D plane
func countLabel(plane []float64, label Label) int {
	want := float64(label)
	n := 0
	for _, v := range plane {
		if v == want {
			n++
		}
	}
	return n
}
