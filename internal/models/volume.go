package models

import (
	"fmt"
)

// Volume is a dense 3-D image loaded from a NIfTI file.
// Both label masks and intensity scans are held in this form.
type Volume struct {
	// Data is the 3D volume data as a 1D array with x varying fastest
	Data []float64

	// Width is the number of voxels along x (left-right)
	Width int

	// Height is the number of voxels along y (posterior-anterior)
	Height int

	// Depth is the number of voxels along z (inferior-superior), the slice axis
	Depth int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize struct {
		X, Y, Z float64
	}

	// Affine maps voxel indices (i, j, k, 1) to world coordinates in mm
	Affine [4][4]float64
}

// NewVolume allocates a zero-filled volume with an identity affine
func NewVolume(width, height, depth int) *Volume {
	v := &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
	v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z = 1, 1, 1
	for i := 0; i < 4; i++ {
		v.Affine[i][i] = 1
	}
	return v
}

// Index returns the position of voxel (x, y, z) in Data
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the value of voxel (x, y, z)
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores a value at voxel (x, y, z)
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// Slice returns a copy of the axial plane at z in row-major (y*Width + x) order
func (v *Volume) Slice(z int) ([]float64, error) {
	if z < 0 || z >= v.Depth {
		return nil, fmt.Errorf("slice %d outside depth %d", z, v.Depth)
	}
	size := v.Width * v.Height
	plane := make([]float64, size)
	copy(plane, v.Data[z*size:(z+1)*size])
	return plane, nil
}

// SameShape reports whether two volumes share the same dimensions
func (v *Volume) SameShape(other *Volume) bool {
	return v.Width == other.Width && v.Height == other.Height && v.Depth == other.Depth
}

// Shape returns the dimensions as a [width, height, depth] triple
func (v *Volume) Shape() [3]int {
	return [3]int{v.Width, v.Height, v.Depth}
}
