package nifti

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"lccnr/internal/models"
)

// AxisOrientation maps one voxel axis onto a world axis.
// Flip is -1 when the voxel index runs against the world direction.
type AxisOrientation struct {
	World int
	Flip  int
}

// Orientation returns, for each voxel axis, the world (RAS) axis it is
// closest to. The rotation part of the affine is first replaced by its
// closest orthogonal matrix so that shears and small obliquities do not
// change the answer.
func Orientation(affine [4][4]float64) [3]AxisOrientation {
	rzs := mat.NewDense(3, 3, nil)
	for j := 0; j < 3; j++ {
		zoom := math.Sqrt(affine[0][j]*affine[0][j] + affine[1][j]*affine[1][j] + affine[2][j]*affine[2][j])
		if zoom == 0 {
			zoom = 1
		}
		for i := 0; i < 3; i++ {
			rzs.Set(i, j, affine[i][j]/zoom)
		}
	}

	r := mat.NewDense(3, 3, nil)
	var svd mat.SVD
	if svd.Factorize(rzs, mat.SVDThin) {
		var u, v mat.Dense
		svd.UTo(&u)
		svd.VTo(&v)
		values := svd.Values(nil)
		tol := values[0] * 3 * 2.220446049250313e-16
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				var sum float64
				for k, s := range values {
					if s > tol {
						sum += u.At(i, k) * v.At(j, k)
					}
				}
				r.Set(i, j, sum)
			}
		}
	}

	var ornt [3]AxisOrientation
	var assigned [3]bool
	var used [3]bool
	for in := 0; in < 3; in++ {
		out, best := -1, 0.0
		for w := 0; w < 3; w++ {
			if a := math.Abs(r.At(w, in)); a > best+1e-12 {
				out, best = w, a
			}
		}
		if out < 0 {
			continue
		}
		flip := 1
		if r.At(out, in) < 0 {
			flip = -1
		}
		ornt[in] = AxisOrientation{World: out, Flip: flip}
		assigned[in] = true
		used[out] = true
		for j := 0; j < 3; j++ {
			r.Set(out, j, 0)
		}
	}

	// Degenerate axes take whatever world axes are left, unflipped
	for in := 0; in < 3; in++ {
		if assigned[in] {
			continue
		}
		for w := 0; w < 3; w++ {
			if !used[w] {
				ornt[in] = AxisOrientation{World: w, Flip: 1}
				used[w] = true
				break
			}
		}
	}
	return ornt
}

// IsCanonical reports whether the volume is already in RAS+ orientation
func IsCanonical(v *models.Volume) bool {
	for in, o := range Orientation(v.Affine) {
		if o.World != in || o.Flip != 1 {
			return false
		}
	}
	return true
}

// Canonical returns the volume reordered so that voxel axes follow RAS+.
// The input is not modified; a canonical input is returned as a copy.
func Canonical(v *models.Volume) (*models.Volume, error) {
	ornt := Orientation(v.Affine)
	inShape := v.Shape()
	inZoom := [3]float64{v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z}

	var outShape [3]int
	var outZoom [3]float64
	for in, o := range ornt {
		outShape[o.World] = inShape[in]
		outZoom[o.World] = inZoom[in]
	}
	if outShape[0]*outShape[1]*outShape[2] != len(v.Data) {
		return nil, fmt.Errorf("orientation %v does not preserve volume size", ornt)
	}

	out := models.NewVolume(outShape[0], outShape[1], outShape[2])
	out.VoxelSize.X, out.VoxelSize.Y, out.VoxelSize.Z = outZoom[0], outZoom[1], outZoom[2]

	var src [3]int
	for z := 0; z < out.Depth; z++ {
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				dst := [3]int{x, y, z}
				for in, o := range ornt {
					if o.Flip < 0 {
						src[in] = inShape[in] - 1 - dst[o.World]
					} else {
						src[in] = dst[o.World]
					}
				}
				out.Data[out.Index(x, y, z)] = v.At(src[0], src[1], src[2])
			}
		}
	}

	// new affine = old affine * (new index -> old index)
	t := mat.NewDense(4, 4, nil)
	for in, o := range ornt {
		t.Set(in, o.World, float64(o.Flip))
		if o.Flip < 0 {
			t.Set(in, 3, float64(inShape[in]-1))
		}
	}
	t.Set(3, 3, 1)
	var affine mat.Dense
	affine.Mul(affineDense(v.Affine), t)
	out.Affine = denseAffine(&affine)

	return out, nil
}
