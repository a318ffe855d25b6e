// Package summary reduces per-slice contrast tables to per-subject values
// and gathers them across subjects rated by two raters.
package summary

import (
	"errors"
	"fmt"

	"lccnr/pkg/contrast"
	"lccnr/pkg/table"
)

var ErrEmptyTable = errors.New("contrast table has no rows")

// Methods lists the summary suffixes in output order
var Methods = []string{"rostral2", "avg3", "max1", "rostral1", "middle", "caudal1"}

// Series is an ordered list of named values
type Series struct {
	Names  []string
	Values []float64
}

func (s *Series) add(suffix string, columns []string, values []float64) {
	for i, col := range columns {
		s.Names = append(s.Names, col+"_"+suffix)
		s.Values = append(s.Values, values[i])
	}
}

// Summarise reduces a per-slice contrast table to one series. Slices are
// numbered rostral to caudal, so rostral rows have the smallest Slice
// values. For every value column it emits:
//
//	rostral2  mean of the two most rostral slices
//	avg3      mean of all slices
//	max1      the row with the highest CNR
//	rostral1  the most rostral slice
//	middle    the middle row in file order
//	caudal1   the most caudal slice
func Summarise(t *table.Table) (Series, error) {
	if t.Len() == 0 {
		return Series{}, ErrEmptyTable
	}
	values, err := t.Drop(contrast.ColSlice)
	if err != nil {
		return Series{}, err
	}
	columns := values.Columns()

	var s Series

	rostral2, err := t.NSmallest(2, contrast.ColSlice)
	if err != nil {
		return Series{}, err
	}
	s.add("rostral2", columns, dropSlice(rostral2).Mean())

	s.add("avg3", columns, values.Mean())

	max1, err := t.NLargest(1, contrast.ColCNR)
	if err != nil {
		return Series{}, err
	}
	s.add("max1", columns, dropSlice(max1).Mean())

	rostral1, err := t.NSmallest(1, contrast.ColSlice)
	if err != nil {
		return Series{}, err
	}
	s.add("rostral1", columns, dropSlice(rostral1).Mean())

	s.add("middle", columns, values.Row((values.Len()-1)/2))

	caudal1, err := t.NLargest(1, contrast.ColSlice)
	if err != nil {
		return Series{}, err
	}
	s.add("caudal1", columns, dropSlice(caudal1).Mean())

	return s, nil
}

// dropSlice is only called on subsets of a table already known to carry
// the Slice column.
func dropSlice(t *table.Table) *table.Table {
	out, err := t.Drop(contrast.ColSlice)
	if err != nil {
		panic(fmt.Sprintf("summary: %v", err))
	}
	return out
}
