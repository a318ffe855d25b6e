package nifti

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// bestAffine picks the voxel-to-world transform the way neuroimaging tools
// conventionally do: sform first, then qform, then a pixdim-only fallback.
func bestAffine(h *header) [4][4]float64 {
	switch {
	case h.SformCode > 0:
		return sformAffine(h)
	case h.QformCode > 0:
		return qformAffine(h)
	default:
		return baseAffine(h)
	}
}

func sformAffine(h *header) [4][4]float64 {
	var a [4][4]float64
	for j := 0; j < 4; j++ {
		a[0][j] = float64(h.SrowX[j])
		a[1][j] = float64(h.SrowY[j])
		a[2][j] = float64(h.SrowZ[j])
	}
	a[3][3] = 1
	return a
}

// qformAffine builds the transform from the quaternion parameters
func qformAffine(h *header) [4][4]float64 {
	b := float64(h.QuaternB)
	c := float64(h.QuaternC)
	d := float64(h.QuaternD)
	a := 1 - (b*b + c*c + d*d)
	if a < 1e-7 {
		// Quaternion is 180 degrees; renormalise b, c, d
		norm := math.Sqrt(b*b + c*c + d*d)
		if norm > 0 {
			b, c, d = b/norm, c/norm, d/norm
		}
		a = 0
	} else {
		a = math.Sqrt(a)
	}

	rot := mat.NewDense(3, 3, []float64{
		a*a + b*b - c*c - d*d, 2 * (b*c - a*d), 2 * (b*d + a*c),
		2 * (b*c + a*d), a*a + c*c - b*b - d*d, 2 * (c*d - a*b),
		2 * (b*d - a*c), 2 * (c*d + a*b), a*a + d*d - c*c - b*b,
	})

	qfac := float64(h.Pixdim[0])
	if qfac == 0 {
		qfac = 1
	}
	zooms := [3]float64{
		positiveZoom(h.Pixdim[1]),
		positiveZoom(h.Pixdim[2]),
		positiveZoom(h.Pixdim[3]) * qfac,
	}

	var out [4][4]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = rot.At(i, j) * zooms[j]
		}
	}
	out[0][3] = float64(h.QoffsetX)
	out[1][3] = float64(h.QoffsetY)
	out[2][3] = float64(h.QoffsetZ)
	out[3][3] = 1
	return out
}

// baseAffine is the Analyze-style fallback: x flipped, origin at the centre
func baseAffine(h *header) [4][4]float64 {
	nx, ny, nz := h.dims()
	zooms := [3]float64{
		positiveZoom(h.Pixdim[1]),
		positiveZoom(h.Pixdim[2]),
		positiveZoom(h.Pixdim[3]),
	}
	origin := [3]float64{
		float64(nx-1) / 2,
		float64(ny-1) / 2,
		float64(nz-1) / 2,
	}

	var out [4][4]float64
	out[0][0] = -zooms[0]
	out[1][1] = zooms[1]
	out[2][2] = zooms[2]
	out[0][3] = origin[0] * zooms[0]
	out[1][3] = -origin[1] * zooms[1]
	out[2][3] = -origin[2] * zooms[2]
	out[3][3] = 1
	return out
}

func positiveZoom(z float32) float64 {
	if z <= 0 || math.IsNaN(float64(z)) {
		return 1
	}
	return float64(z)
}

func affineDense(a [4][4]float64) *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m.Set(i, j, a[i][j])
		}
	}
	return m
}

func denseAffine(m mat.Matrix) [4][4]float64 {
	var a [4][4]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			a[i][j] = m.At(i, j)
		}
	}
	return a
}
