package validation

import (
	"fmt"
	"log/slog"
)

// Entry is one diagnostic line produced during a validation run.
// Slice is 1-based; 0 marks a mask-level entry.
type Entry struct {
	Level   slog.Level
	Rule    Rule
	Slice   int
	Message string
}

func (e Entry) String() string {
	switch {
	case e.Slice == 0:
		return fmt.Sprintf("%s %s", e.Level, e.Message)
	case e.Rule == "":
		return fmt.Sprintf("%s slice %d: %s", e.Level, e.Slice, e.Message)
	default:
		return fmt.Sprintf("%s slice %d [%s]: %s", e.Level, e.Slice, e.Rule, e.Message)
	}
}

// SliceResult holds the rule outcomes of one marked slice
type SliceResult struct {
	// Slice is the 0-based z index
	Slice    int
	Outcomes []Outcome
	Errors   int
}

// Report is the result of one validation run. It is never merged across runs.
type Report struct {
	// Source is the mask file, if the run started from a file
	Source string

	// Slices is the shared 0-based slice set, empty on a structural failure
	Slices []int

	Results []SliceResult

	// ErrorCount is the sum of per-slice rule failures
	ErrorCount int

	// Fatal is the structural error that halted the run, if any
	Fatal error

	Entries []Entry
}

// Status is the integer result callers use as an exit status: 1 for a
// structural failure, otherwise the rule error count.
func (r *Report) Status() int {
	if r.Fatal != nil {
		return 1
	}
	return r.ErrorCount
}

// Passed reports whether the mask is clean
func (r *Report) Passed() bool {
	return r.Status() == 0
}

// Failures returns every failed rule outcome in evaluation order
func (r *Report) Failures() []Outcome {
	var out []Outcome
	for _, sr := range r.Results {
		for _, o := range sr.Outcomes {
			if !o.Passed() {
				out = append(out, o)
			}
		}
	}
	return out
}

// Lines renders the diagnostic entries at or above level
func (r *Report) Lines(level slog.Level) []string {
	var out []string
	for _, e := range r.Entries {
		if e.Level >= level {
			out = append(out, e.String())
		}
	}
	return out
}
