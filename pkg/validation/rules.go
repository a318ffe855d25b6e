package validation

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Rule names one geometric check
type Rule string

const (
	RuleOrientation Rule = "label_orientation"
	RulePTXAxis     Rule = "pt_x_axis"
	RulePTYAxis     Rule = "pt_y_axis"
	RuleVoxelCount  Rule = "voxel_count"
)

// Outcome is the result of one rule on one slice. Failures is 0 when the
// rule passes; the voxel count rule counts one failure per wrong ROI.
type Outcome struct {
	Rule     Rule
	Slice    int
	Failures int
	Message  string
}

// Passed reports whether the rule held
func (o Outcome) Passed() bool {
	return o.Failures == 0
}

func pass(rule Rule, msg string) Outcome {
	return Outcome{Rule: rule, Message: msg}
}

func fail(rule Rule, format string, args ...any) Outcome {
	return Outcome{Rule: rule, Failures: 1, Message: fmt.Sprintf(format, args...)}
}

// CheckLabelOrientation passes when every right LC x coordinate is strictly
// greater than every left LC x coordinate.
func CheckLabelOrientation(rightX, leftX []int) Outcome {
	if len(rightX) == 0 || len(leftX) == 0 {
		return fail(RuleOrientation, "Cannot compare LC labels: %s", missing(rightX, leftX))
	}
	minRight := slices.Min(rightX)
	maxLeft := slices.Max(leftX)
	if minRight > maxLeft {
		return pass(RuleOrientation, "Left and right LC labels OK")
	}
	return fail(RuleOrientation,
		"Left and right LC ROIs are flipped (right LC min x %d, left LC max x %d)", minRight, maxLeft)
}

// CheckPTXAxis passes when the PT sits midway between the LC ROIs. When the
// gap cannot be split evenly the PT may sit one voxel closer to the left LC.
func CheckPTXAxis(rightX, leftX, ptX []int) Outcome {
	if len(rightX) == 0 || len(leftX) == 0 || len(ptX) == 0 {
		return fail(RulePTXAxis, "Cannot check PT x-axis: %s", missing(rightX, leftX, ptX))
	}
	gapRight := slices.Min(rightX) - slices.Max(ptX)
	gapLeft := slices.Min(ptX) - slices.Max(leftX)

	if gapLeft == gapRight {
		return pass(RulePTXAxis, "PT x-axis OK")
	}
	if (gapRight+gapLeft)%2 != 0 && gapLeft+1 == gapRight {
		return pass(RulePTXAxis, "PT x-axis OK (one voxel closer to left LC)")
	}
	return fail(RulePTXAxis,
		"PT is not equidistant from LC ROIs (gap to right LC %d, gap to left LC %d)", gapRight, gapLeft)
}

// CheckPTYAxis passes when the PT begins exactly offset voxels ventral to
// the centre of the more ventral LC ROI. The centre is the truncated median.
func CheckPTYAxis(rightY, leftY, ptY []int, offset int) Outcome {
	if len(rightY) == 0 || len(leftY) == 0 || len(ptY) == 0 {
		return fail(RulePTYAxis, "Cannot check PT y-axis: %s", missing(rightY, leftY, ptY))
	}
	ventralLC := int(max(median(rightY), median(leftY)))
	got := slices.Min(ptY) - ventralLC
	if got == offset {
		return pass(RulePTYAxis, "PT y-axis OK")
	}
	return fail(RulePTYAxis,
		"PT is not %d voxels ventral to most ventral LC (found %d)", offset, got)
}

// CheckVoxelCount counts each ROI over the whole slice plane, so stray
// voxels anywhere on the slice are caught.
func CheckVoxelCount(plane []float64, p Protocol) Outcome {
	out := Outcome{Rule: RuleVoxelCount}
	var problems []string
	for _, c := range []struct {
		label Label
		want  int
	}{{RightLC, p.LCVoxels}, {LeftLC, p.LCVoxels}, {PT, p.PTVoxels}} {
		if n := countLabel(plane, c.label); n != c.want {
			out.Failures++
			problems = append(problems, fmt.Sprintf("%s ROI has %d voxels, want %d", c.label, n, c.want))
		}
	}
	if out.Failures == 0 {
		out.Message = "Number of voxels in all ROIs is OK"
		return out
	}
	out.Message = strings.Join(problems, "; ")
	return out
}

// SliceROIs is the per-slice input to the geometric rules
type SliceROIs struct {
	Right, Left, PT Coords

	// Plane is the full label slice in row-major (y*Width + x) order
	Plane []float64
}

// CheckSlice evaluates every rule on one slice. A failing rule never stops
// the others.
func CheckSlice(rois SliceROIs, p Protocol) []Outcome {
	return []Outcome{
		CheckLabelOrientation(rois.Right.X, rois.Left.X),
		CheckPTXAxis(rois.Right.X, rois.Left.X, rois.PT.X),
		CheckPTYAxis(rois.Right.Y, rois.Left.Y, rois.PT.Y, p.PTVentralOffset),
		CheckVoxelCount(rois.Plane, p),
	}
}

// median calculates the median value of a slice of int values
func median(values []int) float64 {
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)

	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 0 {
		return float64(sorted[n/2-1]+sorted[n/2]) / 2
	}
	return float64(sorted[n/2])
}

// missing names the empty sets, given in right LC, left LC, PT order
func missing(sets ...[]int) string {
	var names []string
	for i, set := range sets {
		if len(set) == 0 {
			names = append(names, ROILabels[i].String())
		}
	}
	return strings.Join(names, ", ") + " missing"
}
