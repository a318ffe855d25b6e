package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BatchParams configures a run over several subject directories
type BatchParams struct {
	// BaseDir holds one directory per subject
	BaseDir string

	// MaskName is the mask file name; everything from its first '.' is
	// replaced by ".nii*" when searching
	MaskName string

	Subjects []string

	// ImagePattern matches the intensity image inside a subject directory
	ImagePattern string

	// Workers bounds the number of subjects processed at once
	Workers int

	// Template is copied for every subject; its file fields are replaced
	Template Params

	Logger *slog.Logger
}

// SubjectResult is the outcome of one subject. Result is nil when the
// subject was skipped or failed before processing.
type SubjectResult struct {
	Subject string
	Result  *Result
	Err     error
	Skipped bool
}

// FindInputs locates the image and mask of one subject. A missing mask is
// reported with an empty mask path and no error.
func FindInputs(subjectDir, imagePattern, maskName string) (image, mask string, err error) {
	images, err := filepath.Glob(filepath.Join(subjectDir, imagePattern))
	if err != nil {
		return "", "", fmt.Errorf("image pattern: %w", err)
	}
	switch len(images) {
	case 0:
		return "", "", fmt.Errorf("%w: %s", ErrMissingInput, filepath.Join(subjectDir, imagePattern))
	case 1:
	default:
		return "", "", fmt.Errorf("%w: %v", ErrAmbiguousInput, images)
	}

	masks, err := filepath.Glob(filepath.Join(subjectDir, MaskBase(maskName)+".nii*"))
	if err != nil {
		return "", "", fmt.Errorf("mask pattern: %w", err)
	}
	switch len(masks) {
	case 0:
		return images[0], "", nil
	case 1:
		return images[0], masks[0], nil
	default:
		return "", "", fmt.Errorf("%w: %v", ErrAmbiguousInput, masks)
	}
}

// RunBatch processes every subject with at most Workers running at once.
// A failing subject does not stop the others; all failures are joined in
// the returned error. Results are in Subjects order.
func RunBatch(ctx context.Context, bp BatchParams) ([]SubjectResult, error) {
	logger := bp.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workers := bp.Workers
	if workers < 1 {
		workers = 1
	}

	results := make([]SubjectResult, len(bp.Subjects))
	var (
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, subject := range bp.Subjects {
		results[i].Subject = subject
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return err
			}
			sublog := logger.With(slog.String("subject", subject))

			image, mask, err := FindInputs(filepath.Join(bp.BaseDir, subject), bp.ImagePattern, bp.MaskName)
			if err != nil {
				results[i].Err = err
				fail(fmt.Errorf("subject %s: %w", subject, err))
				sublog.Error("cannot locate inputs", slog.Any("error", err))
				return nil
			}
			if mask == "" {
				results[i].Skipped = true
				sublog.Warn("mask not found, skipping", slog.String("mask", bp.MaskName))
				return nil
			}

			params := bp.Template
			params.ImageFile = image
			params.MaskFile = mask
			params.OutputDir = ""

			res, err := NewProcessor(&params).Process()
			results[i].Result = res
			if err != nil {
				results[i].Err = err
				fail(fmt.Errorf("subject %s: %w", subject, err))
				sublog.Error("processing failed", slog.Any("error", err))
				return nil
			}
			sublog.Info("processed", slog.String("output", res.OutputFile),
				slog.Int("mask_errors", res.Report.Status()))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		fail(err)
	}
	return results, errors.Join(errs...)
}
