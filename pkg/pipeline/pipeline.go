// Package pipeline runs mask validation and contrast computation for one
// image/mask pair and writes the per-slice result file.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"lccnr/pkg/contrast"
	"lccnr/pkg/log"
	"lccnr/pkg/nifti"
	"lccnr/pkg/store"
	"lccnr/pkg/validation"
)

var (
	ErrOutputExists   = errors.New("output file exists, delete it or use --force")
	ErrAmbiguousInput = errors.New("multiple input files found")
	ErrMissingInput   = errors.New("input file not found")
)

// Params holds the configuration of one run
type Params struct {
	// ImageFile is the neuromelanin-sensitive intensity image
	ImageFile string

	// MaskFile is the label mask marked on ImageFile
	MaskFile string

	// OutputDir receives the result and log files. Defaults to the
	// directory of ImageFile.
	OutputDir string

	// Force overwrites an existing result file
	Force bool

	// Strict skips contrast when the mask has a structural error
	Strict bool

	Protocol validation.Protocol

	// Log configures the per-run log file; Dir and Name are derived
	Log log.RunOptions

	// Store records the run when non-nil
	Store *store.Store
}

// Result describes a finished run
type Result struct {
	OutputFile string
	LogFile    string

	Report   *validation.Report
	Contrast *contrast.Table

	// RunID is set when the run was recorded in a store
	RunID string
}

// Processor runs the validation and contrast pipeline for one mask
type Processor struct {
	params *Params
}

// NewProcessor creates a processor for the given parameters
func NewProcessor(params *Params) *Processor {
	return &Processor{params: params}
}

// MaskBase returns the mask file name up to its first '.'
func MaskBase(maskFile string) string {
	base := filepath.Base(maskFile)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return base
}

// OutputPaths returns the result and log file paths for a run
func OutputPaths(outdir, maskFile string) (outfile, logfile string) {
	base := MaskBase(maskFile)
	return filepath.Join(outdir, base+".txt"), filepath.Join(outdir, "calc_cnr_"+base+".log")
}

// Process validates the mask, computes per-slice contrast and writes the
// tab-separated result file. Rule violations never stop the run; a
// structural mask error stops it only in strict mode.
func (p *Processor) Process() (res *Result, err error) {
	outdir := p.params.OutputDir
	if outdir == "" {
		outdir = filepath.Dir(p.params.ImageFile)
	}
	outfile, logfile := OutputPaths(outdir, p.params.MaskFile)
	res = &Result{OutputFile: outfile, LogFile: logfile}

	if _, err := os.Stat(outfile); err == nil && !p.params.Force {
		return res, fmt.Errorf("%w: %s", ErrOutputExists, outfile)
	}

	logOpts := p.params.Log
	logOpts.Dir, logOpts.Name = filepath.Split(logfile)
	logger, closer, err := log.NewRunLogger(logOpts)
	if err != nil {
		return res, err
	}
	defer closer.Close()
	defer func() {
		if err != nil {
			logger.Error("run failed", slog.Any("error", err))
		}
	}()

	logger.Info("Image file: " + p.params.ImageFile)
	logger.Info("Mask file: " + p.params.MaskFile)

	mask, err := nifti.Load(p.params.MaskFile)
	if err != nil {
		return res, fmt.Errorf("failed to load mask: %w", err)
	}

	validator := validation.NewValidator(p.params.Protocol, logger.With(slog.String("mask", p.params.MaskFile)))
	report, verr := validator.Validate(mask)
	report.Source = p.params.MaskFile
	res.Report = report
	if verr != nil && p.params.Strict {
		p.record(res, logger)
		return res, fmt.Errorf("check %s: %w", p.params.MaskFile, verr)
	}

	img, err := nifti.Load(p.params.ImageFile)
	if err != nil {
		return res, fmt.Errorf("failed to load image: %w", err)
	}

	// Without a shared slice set every labelled slice is used
	var slices []int
	if report.Fatal == nil {
		slices = report.Slices
	}
	table, err := contrast.Compute(img, mask, slices)
	if err != nil {
		return res, err
	}
	res.Contrast = table
	for _, slice := range table.Undefined() {
		logger.Warn("PT mean is missing or zero, contrast undefined", slog.Int("slice", slice))
	}

	if err := table.WriteFile(outfile); err != nil {
		return res, fmt.Errorf("save results: %w", err)
	}
	logger.Info("Results saved to: " + outfile)

	p.record(res, logger)
	return res, nil
}

// record stores the run when a store is configured. A store failure is
// logged and does not fail the run.
func (p *Processor) record(res *Result, logger *slog.Logger) {
	if p.params.Store == nil {
		return
	}
	files := store.Files{Image: p.params.ImageFile, Mask: p.params.MaskFile}
	if res.Contrast != nil {
		files.Output = res.OutputFile
	}
	id, err := p.params.Store.RecordRun(res.Report, res.Contrast, files)
	if err != nil {
		logger.Error("failed to record run", slog.Any("error", err))
		return
	}
	res.RunID = id
	logger.Info("Run recorded", slog.String("run_id", id))
}

// WriteReport prints the report lines at or above level to w
func WriteReport(w io.Writer, r *validation.Report, level slog.Level) error {
	for _, line := range r.Lines(level) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
