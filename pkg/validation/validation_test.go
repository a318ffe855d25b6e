package validation_test

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lccnr/internal/models"
	"lccnr/pkg/nifti"
	"lccnr/pkg/validation"
)

// placement describes one protocol-conforming slice layout
type placement struct {
	rightX, leftX int
	ptX0, ptY0    int
	lcY0          int
}

// goodPlacement is centred: gap to right LC = 31-25 = 6, gap to left LC = 16-10 = 6,
// LC median y = 7, PT starts at y = 13.
var goodPlacement = placement{rightX: 31, leftX: 10, ptX0: 16, ptY0: 13, lcY0: 5}

// paintSlice marks both LC ROIs as 5-voxel columns and the PT as a 10x10 block
func paintSlice(v *models.Volume, z int, p placement) {
	for y := p.lcY0; y < p.lcY0+5; y++ {
		v.Set(p.rightX, y, z, float64(validation.RightLC))
		v.Set(p.leftX, y, z, float64(validation.LeftLC))
	}
	for y := p.ptY0; y < p.ptY0+10; y++ {
		for x := p.ptX0; x < p.ptX0+10; x++ {
			v.Set(x, y, z, float64(validation.PT))
		}
	}
}

// createTestMask builds a 40x40x16 mask marked on the given slices
func createTestMask(slices ...int) *models.Volume {
	v := models.NewVolume(40, 40, 16)
	for _, z := range slices {
		paintSlice(v, z, goodPlacement)
	}
	return v
}

func TestCoordinatesForLabel(t *testing.T) {
	v := createTestMask(10, 11, 12)

	right := validation.CoordinatesForLabel(v, validation.RightLC)
	assert.Equal(t, 15, right.Len())
	assert.Equal(t, []int{10, 11, 12}, right.DistinctSlices())

	onSlice := right.OnSlice(11)
	assert.Equal(t, 5, onSlice.Len())
	for i := range onSlice.X {
		assert.Equal(t, 31, onSlice.X[i])
		assert.Equal(t, 11, onSlice.Z[i])
	}

	pt := validation.CoordinatesForLabel(v, validation.PT)
	assert.Equal(t, 300, pt.Len())

	empty := validation.CoordinatesForLabel(v, validation.Label(7))
	assert.Equal(t, 0, empty.Len())
	assert.Empty(t, empty.DistinctSlices())
}

func TestMarkedSlices(t *testing.T) {
	v := createTestMask(2, 5, 9)
	assert.Equal(t, []int{2, 5, 9}, validation.MarkedSlices(v))
	assert.Empty(t, validation.MarkedSlices(models.NewVolume(2, 2, 2)))
}

func TestCheckLabelOrientation(t *testing.T) {
	tcs := map[string]struct {
		rightX, leftX []int
		want          bool
	}{
		"right strictly lateral":  {rightX: []int{30, 31}, leftX: []int{9, 10}, want: true},
		"touching fails":          {rightX: []int{10, 31}, leftX: []int{10}, want: false},
		"one right voxel too far": {rightX: []int{31, 31, 8}, leftX: []int{9, 10}, want: false},
		"swapped":                 {rightX: []int{10}, leftX: []int{31}, want: false},
		"missing left":            {rightX: []int{31}, leftX: nil, want: false},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			got := validation.CheckLabelOrientation(tc.rightX, tc.leftX)
			assert.Equal(t, validation.RuleOrientation, got.Rule)
			assert.Equal(t, tc.want, got.Passed(), got.Message)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestCheckPTXAxis(t *testing.T) {
	pt := func(x0 int) []int {
		xs := make([]int, 10)
		for i := range xs {
			xs[i] = x0 + i
		}
		return xs
	}

	tcs := map[string]struct {
		rightX, leftX, ptX []int
		want               bool
	}{
		"symmetric":                    {rightX: []int{31}, leftX: []int{10}, ptX: pt(16), want: true},
		"odd span closer to left":      {rightX: []int{30}, leftX: []int{10}, ptX: pt(15), want: true},
		"odd span closer to right":     {rightX: []int{30}, leftX: []int{10}, ptX: pt(16), want: false},
		"even span off by two":         {rightX: []int{31}, leftX: []int{10}, ptX: pt(15), want: false},
		"even span shifted right by 1": {rightX: []int{31}, leftX: []int{10}, ptX: pt(17), want: false},
		"missing PT":                   {rightX: []int{31}, leftX: []int{10}, ptX: nil, want: false},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			got := validation.CheckPTXAxis(tc.rightX, tc.leftX, tc.ptX)
			assert.Equal(t, tc.want, got.Passed(), got.Message)
		})
	}
}

func TestCheckPTYAxis(t *testing.T) {
	lc := []int{5, 6, 7, 8, 9}

	tcs := map[string]struct {
		rightY, leftY, ptY []int
		want               bool
	}{
		"exactly six":                 {rightY: lc, leftY: lc, ptY: []int{13, 14, 22}, want: true},
		"one short":                   {rightY: lc, leftY: lc, ptY: []int{12, 20}, want: false},
		"one long":                    {rightY: lc, leftY: lc, ptY: []int{14, 20}, want: false},
		"uses ventral LC":             {rightY: []int{1, 2, 3, 4, 5}, leftY: lc, ptY: []int{13}, want: true},
		"half voxel median truncates": {rightY: []int{5, 6, 7, 8}, leftY: []int{4, 5, 6, 7, 8}, ptY: []int{12}, want: true},
		"missing LC":                  {rightY: nil, leftY: lc, ptY: []int{13}, want: false},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			got := validation.CheckPTYAxis(tc.rightY, tc.leftY, tc.ptY, 6)
			assert.Equal(t, tc.want, got.Passed(), got.Message)
		})
	}
}

func TestCheckVoxelCount(t *testing.T) {
	p := validation.DefaultProtocol()

	plane := func(right, left, pt int) []float64 {
		out := make([]float64, 0, right+left+pt+10)
		for i := 0; i < right; i++ {
			out = append(out, 1)
		}
		for i := 0; i < left; i++ {
			out = append(out, 2)
		}
		for i := 0; i < pt; i++ {
			out = append(out, 3)
		}
		// unlabeled padding
		return append(out, make([]float64, 10)...)
	}

	tcs := map[string]struct {
		plane        []float64
		wantFailures int
	}{
		"exact counts":     {plane: plane(5, 5, 100), wantFailures: 0},
		"right LC short":   {plane: plane(4, 5, 100), wantFailures: 1},
		"PT stray voxel":   {plane: plane(5, 5, 101), wantFailures: 1},
		"both LC wrong":    {plane: plane(6, 4, 100), wantFailures: 2},
		"everything wrong": {plane: plane(0, 0, 0), wantFailures: 3},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			got := validation.CheckVoxelCount(tc.plane, p)
			assert.Equal(t, tc.wantFailures, got.Failures, got.Message)
		})
	}
}

func TestSharedSlices(t *testing.T) {
	t.Run("four slices", func(t *testing.T) {
		v := createTestMask(10, 11, 12, 13)
		_, err := validation.SharedSlices(
			validation.CoordinatesForLabel(v, validation.RightLC),
			validation.CoordinatesForLabel(v, validation.LeftLC),
			validation.CoordinatesForLabel(v, validation.PT),
			3,
		)
		require.ErrorIs(t, err, validation.ErrSliceCount)

		var serr *validation.StructuralError
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, validation.RightLC, serr.Label)
		assert.Equal(t, []int{10, 11, 12, 13}, serr.Slices)
	})

	t.Run("PT on another slice", func(t *testing.T) {
		_, err := validation.CheckSameSlices([]int{10, 11, 12}, []int{12, 11, 10}, []int{10, 11, 13})
		require.ErrorIs(t, err, validation.ErrSliceMismatch)
		assert.Contains(t, err.Error(), "PT")
	})

	t.Run("shared set is sorted", func(t *testing.T) {
		got, err := validation.CheckSameSlices([]int{12, 10, 11, 10}, []int{11, 12, 10}, []int{10, 12, 11})
		require.NoError(t, err)
		assert.Equal(t, []int{10, 11, 12}, got)
	})

	t.Run("empty label", func(t *testing.T) {
		_, err := validation.CheckLabelOnSlices(validation.LeftLC, nil, 3)
		require.ErrorIs(t, err, validation.ErrSliceCount)
	})
}

func TestValidateCleanMask(t *testing.T) {
	v := createTestMask(10, 11, 12)

	report, err := validation.NewValidator(validation.DefaultProtocol(), nil).Validate(v)
	require.NoError(t, err)

	assert.Equal(t, 0, report.ErrorCount)
	assert.Equal(t, 0, report.Status())
	assert.True(t, report.Passed())
	assert.Equal(t, []int{10, 11, 12}, report.Slices)
	require.Len(t, report.Results, 3)
	for _, sr := range report.Results {
		assert.Len(t, sr.Outcomes, 4)
		assert.Equal(t, 0, sr.Errors)
	}
	assert.Empty(t, report.Failures())
	assert.Empty(t, report.Lines(slog.LevelError))
}

func TestValidateSwappedLabelsOnOneSlice(t *testing.T) {
	v := createTestMask(10, 12)
	swapped := goodPlacement
	swapped.rightX, swapped.leftX = goodPlacement.leftX, goodPlacement.rightX
	paintSlice(v, 11, swapped)

	report, err := validation.NewValidator(validation.DefaultProtocol(), nil).Validate(v)
	require.NoError(t, err)

	perSlice := map[int]int{}
	total := 0
	for _, sr := range report.Results {
		perSlice[sr.Slice] = sr.Errors
		total += sr.Errors
	}
	assert.Equal(t, 0, perSlice[10])
	assert.GreaterOrEqual(t, perSlice[11], 1)
	assert.Equal(t, 0, perSlice[12])
	assert.Equal(t, total, report.ErrorCount)

	failures := report.Failures()
	require.NotEmpty(t, failures)
	assert.Equal(t, validation.RuleOrientation, failures[0].Rule)
	assert.Equal(t, 11, failures[0].Slice)
	assert.Contains(t, report.Lines(slog.LevelError)[0], "slice 12")
}

func TestValidateStructuralFailure(t *testing.T) {
	v := createTestMask(10, 11, 12)
	// Move the PT of the last slice to slice 13
	for i, value := range v.Data {
		if value == float64(validation.PT) && i/(40*40) == 12 {
			v.Data[i] = 0
			v.Data[i+40*40] = float64(validation.PT)
		}
	}

	report, err := validation.NewValidator(validation.DefaultProtocol(), nil).Validate(v)
	require.ErrorIs(t, err, validation.ErrSliceMismatch)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Status())
	assert.Empty(t, report.Results)
	assert.Equal(t, 0, report.ErrorCount)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, slog.LevelError, report.Entries[0].Level)
}

func TestValidateIsIdempotent(t *testing.T) {
	v := createTestMask(10, 12)
	bad := goodPlacement
	bad.ptY0 = 15
	paintSlice(v, 11, bad)

	validator := validation.NewValidator(validation.DefaultProtocol(), nil)
	first, err := validator.Validate(v)
	require.NoError(t, err)
	second, err := validator.Validate(v)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, first.ErrorCount)
}

func TestValidateLogsEveryRule(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	v := createTestMask(10, 11, 12)
	_, err := validation.NewValidator(validation.DefaultProtocol(), logger).Validate(v)
	require.NoError(t, err)

	out := buf.String()
	for _, rule := range []validation.Rule{
		validation.RuleOrientation,
		validation.RulePTXAxis,
		validation.RulePTYAxis,
		validation.RuleVoxelCount,
	} {
		assert.Contains(t, out, "rule="+string(rule))
	}
	assert.Contains(t, out, "No errors found in mask")
}

func TestValidateFile(t *testing.T) {
	t.Run("canonical file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "LC_ROI_rater1.nii.gz")
		require.NoError(t, nifti.WriteFile(path, createTestMask(10, 11, 12), nifti.Uint8))

		report, err := validation.NewValidator(validation.DefaultProtocol(), nil).ValidateFile(path)
		require.NoError(t, err)
		assert.Equal(t, 0, report.Status())
		assert.Equal(t, path, report.Source)
	})

	t.Run("x stored right to left", func(t *testing.T) {
		canonical := createTestMask(10, 11, 12)
		stored := models.NewVolume(40, 40, 16)
		for z := 0; z < 16; z++ {
			for y := 0; y < 40; y++ {
				for x := 0; x < 40; x++ {
					stored.Set(39-x, y, z, canonical.At(x, y, z))
				}
			}
		}
		stored.Affine[0][0] = -1

		path := filepath.Join(t.TempDir(), "las.nii")
		require.NoError(t, nifti.WriteFile(path, stored, nifti.Int16))

		report, err := validation.NewValidator(validation.DefaultProtocol(), nil).ValidateFile(path)
		require.NoError(t, err)
		assert.Equal(t, 0, report.ErrorCount)
	})

	t.Run("unreadable file", func(t *testing.T) {
		report, err := validation.NewValidator(validation.DefaultProtocol(), nil).
			ValidateFile(filepath.Join(t.TempDir(), "missing.nii"))
		require.Error(t, err)
		assert.Nil(t, report)
	})
}
