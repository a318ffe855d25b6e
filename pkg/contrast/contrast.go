// Package contrast computes neuromelanin contrast of the locus coeruleus
// against the pontine tegmentum, slice by slice.
package contrast

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"lccnr/internal/models"
	"lccnr/pkg/table"
	"lccnr/pkg/validation"
)

// Column names of the result table, in output order
const (
	ColSlice    = "Slice"
	ColLeftLC   = "Left_LC"
	ColRightLC  = "Right_LC"
	ColPT       = "PT"
	ColCNR      = "CNR"
	ColLeftCNR  = "Left_CNR"
	ColRightCNR = "Right_CNR"
)

// Columns lists the value columns in output order
var Columns = []string{ColLeftLC, ColRightLC, ColPT, ColCNR, ColLeftCNR, ColRightCNR}

// MinReference is the smallest PT mean accepted as a denominator
const MinReference = 1e-9

var ErrShapeMismatch = errors.New("intensity and mask volumes differ in shape")

// Record is the contrast result for one marked slice
type Record struct {
	// Slice is the 1-based slice number
	Slice int

	LeftLC   float64
	RightLC  float64
	PT       float64
	CNR      float64
	LeftCNR  float64
	RightCNR float64
}

// Values returns the record's values in Columns order
func (r Record) Values() []float64 {
	return []float64{r.LeftLC, r.RightLC, r.PT, r.CNR, r.LeftCNR, r.RightCNR}
}

// Defined reports whether the contrast ratios are finite
func (r Record) Defined() bool {
	return !math.IsNaN(r.CNR)
}

// Table is the ordered per-slice result of one contrast computation
type Table struct {
	Records []Record
}

// CNR returns the contrast ratios of the mean LC, left LC and right LC
// against the PT. A PT mean that is missing or within MinReference of zero
// yields NaN for all three.
func CNR(leftLC, rightLC, pt float64) (cnr, leftCNR, rightCNR float64) {
	if math.IsNaN(pt) || math.Abs(pt) < MinReference {
		nan := math.NaN()
		return nan, nan, nan
	}
	lc := (leftLC + rightLC) / 2
	return (lc - pt) / pt, (leftLC - pt) / pt, (rightLC - pt) / pt
}

// SliceMeans averages intensity within each ROI of one slice. Both planes
// are in the same row-major order. An empty ROI has a NaN mean.
func SliceMeans(intensity, mask []float64) (leftLC, rightLC, pt float64) {
	var left, right, ref []float64
	for i, label := range mask {
		switch label {
		case float64(validation.LeftLC):
			left = append(left, intensity[i])
		case float64(validation.RightLC):
			right = append(right, intensity[i])
		case float64(validation.PT):
			ref = append(ref, intensity[i])
		}
	}
	return mean(left), mean(right), mean(ref)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}

// Compute builds the result table for the given 0-based slices. With nil
// slices every slice carrying a non-zero label is used.
func Compute(intensity, mask *models.Volume, slices []int) (*Table, error) {
	if !intensity.SameShape(mask) {
		return nil, fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, intensity.Shape(), mask.Shape())
	}
	if slices == nil {
		slices = validation.MarkedSlices(mask)
	}

	t := &Table{Records: make([]Record, 0, len(slices))}
	for _, z := range slices {
		img, err := intensity.Slice(z)
		if err != nil {
			return nil, err
		}
		labels, err := mask.Slice(z)
		if err != nil {
			return nil, err
		}

		rec := Record{Slice: z + 1}
		rec.LeftLC, rec.RightLC, rec.PT = SliceMeans(img, labels)
		rec.CNR, rec.LeftCNR, rec.RightCNR = CNR(rec.LeftLC, rec.RightLC, rec.PT)
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

// Undefined returns the 1-based slices whose ratios could not be computed
func (t *Table) Undefined() []int {
	var out []int
	for _, r := range t.Records {
		if !r.Defined() {
			out = append(out, r.Slice)
		}
	}
	return out
}

// Table converts the records to a generic table keyed by slice number
func (t *Table) Table() (*table.Table, error) {
	b := table.NewBuilder(ColSlice, Columns...)
	for _, r := range t.Records {
		b.Add(strconv.Itoa(r.Slice), r.Values()...)
	}
	return b.Build()
}

// WriteTSV writes the tab-separated result table with a Slice index column
func (t *Table) WriteTSV(w io.Writer) error {
	tbl, err := t.Table()
	if err != nil {
		return err
	}
	return tbl.WriteDelimited(w, '\t')
}

// WriteFile saves the result table to path
func (t *Table) WriteFile(path string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	return t.WriteTSV(file)
}
