package validation

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrSliceCount means a label is not marked on the required number of slices
	ErrSliceCount = errors.New("labels are not marked on the required number of slices")

	// ErrSliceMismatch means the labels are marked on different slices
	ErrSliceMismatch = errors.New("labels are not marked on the same slices")
)

// StructuralError is a fatal mask defect: without a single shared slice set
// the per-slice rules cannot be evaluated.
type StructuralError struct {
	// Err is ErrSliceCount or ErrSliceMismatch
	Err error

	// Label is the offending label; for mismatches, the first label that
	// differs from right LC
	Label Label

	// Slices is the offending label's 0-based slice set
	Slices []int

	// Want is the expected slice count, or the reference slice set
	Want any
}

func (e *StructuralError) Error() string {
	if errors.Is(e.Err, ErrSliceCount) {
		return fmt.Sprintf("%v: %s found on %d slice(s) %v, want %v",
			e.Err, e.Label, len(e.Slices), oneBased(e.Slices), e.Want)
	}
	return fmt.Sprintf("%v: %s found on slices %v, %s on %v",
		e.Err, e.Label, oneBased(e.Slices), RightLC, e.Want)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// CheckLabelOnSlices verifies a label's distinct z values number exactly want
func CheckLabelOnSlices(label Label, zs []int, want int) ([]int, error) {
	unique := distinct(zs)
	if len(unique) != want {
		return nil, &StructuralError{Err: ErrSliceCount, Label: label, Slices: unique, Want: want}
	}
	return unique, nil
}

// CheckSameSlices verifies the three labels share an identical slice set and
// returns it in ascending order.
func CheckSameSlices(right, left, pt []int) ([]int, error) {
	ref := distinct(right)
	for _, other := range []struct {
		label Label
		zs    []int
	}{{LeftLC, left}, {PT, pt}} {
		got := distinct(other.zs)
		if !slices.Equal(ref, got) {
			return nil, &StructuralError{
				Err:    ErrSliceMismatch,
				Label:  other.label,
				Slices: got,
				Want:   oneBased(ref),
			}
		}
	}
	return ref, nil
}

// SharedSlices runs the slice-count check for every label, then the
// same-slices check, and returns the shared ascending slice set.
func SharedSlices(right, left, pt Coords, want int) ([]int, error) {
	for _, c := range []struct {
		label  Label
		coords Coords
	}{{RightLC, right}, {LeftLC, left}, {PT, pt}} {
		if _, err := CheckLabelOnSlices(c.label, c.coords.Z, want); err != nil {
			return nil, err
		}
	}
	return CheckSameSlices(right.Z, left.Z, pt.Z)
}

// oneBased converts 0-based slice indices for display
func oneBased(zs []int) []int {
	out := make([]int, len(zs))
	for i, z := range zs {
		out[i] = z + 1
	}
	return out
}
