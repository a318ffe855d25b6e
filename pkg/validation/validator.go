package validation

import (
	"context"
	"fmt"
	"log/slog"

	"lccnr/internal/models"
	"lccnr/pkg/nifti"
)

// Validator runs the marking-protocol checks on label masks.
// It holds no state between runs.
type Validator struct {
	protocol Protocol
	logger   *slog.Logger
}

// NewValidator creates a validator. A nil logger discards output.
func NewValidator(p Protocol, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Validator{protocol: p, logger: logger}
}

// ValidateFile loads a mask in canonical orientation and validates it.
// A load failure returns a nil report.
func (v *Validator) ValidateFile(path string) (*Report, error) {
	v.logger.Info("begin running error checks", slog.String("mask", path))

	mask, err := nifti.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load mask: %w", err)
	}

	report, err := v.validate(mask, path)
	if err != nil {
		return report, fmt.Errorf("check %s: %w", path, err)
	}
	return report, nil
}

// Validate checks a canonical label volume. Rule violations are reported
// through the returned report; only a structural defect returns an error,
// in which case the report carries it as Fatal.
func (v *Validator) Validate(mask *models.Volume) (*Report, error) {
	return v.validate(mask, "")
}

func (v *Validator) validate(mask *models.Volume, source string) (*Report, error) {
	r := &Report{Source: source}

	right := CoordinatesForLabel(mask, RightLC)
	left := CoordinatesForLabel(mask, LeftLC)
	pt := CoordinatesForLabel(mask, PT)

	shared, err := SharedSlices(right, left, pt, v.protocol.Slices)
	if err != nil {
		r.Fatal = err
		v.record(r, slog.LevelError, "", 0, err.Error())
		return r, err
	}
	r.Slices = shared

	for _, z := range shared {
		plane, err := mask.Slice(z)
		if err != nil {
			return r, err
		}
		rois := SliceROIs{
			Right: right.OnSlice(z),
			Left:  left.OnSlice(z),
			PT:    pt.OnSlice(z),
			Plane: plane,
		}

		result := SliceResult{Slice: z}
		for _, o := range CheckSlice(rois, v.protocol) {
			o.Slice = z
			result.Outcomes = append(result.Outcomes, o)
			result.Errors += o.Failures
			if o.Passed() {
				v.record(r, slog.LevelDebug, o.Rule, z+1, o.Message)
			} else {
				v.record(r, slog.LevelError, o.Rule, z+1, o.Message)
			}
		}
		r.Results = append(r.Results, result)
		r.ErrorCount += result.Errors

		if result.Errors == 0 {
			v.record(r, slog.LevelInfo, "", z+1, "No errors found")
		} else {
			v.record(r, slog.LevelError, "", z+1, fmt.Sprintf("%d error(s) found", result.Errors))
		}
	}

	if r.ErrorCount == 0 {
		v.record(r, slog.LevelInfo, "", 0, "No errors found in mask")
	} else {
		v.record(r, slog.LevelError, "", 0, fmt.Sprintf("%d error(s) found in mask", r.ErrorCount))
	}
	return r, nil
}

// record appends an entry to the report and forwards it to the logger
func (v *Validator) record(r *Report, level slog.Level, rule Rule, slice int, msg string) {
	r.Entries = append(r.Entries, Entry{Level: level, Rule: rule, Slice: slice, Message: msg})

	attrs := make([]slog.Attr, 0, 3)
	if r.Source != "" {
		attrs = append(attrs, slog.String("mask", r.Source))
	}
	if slice > 0 {
		attrs = append(attrs, slog.Int("slice", slice))
	}
	if rule != "" {
		attrs = append(attrs, slog.String("rule", string(rule)))
	}
	v.logger.LogAttrs(context.Background(), level, msg, attrs...)
}
