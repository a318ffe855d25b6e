package summary

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"lccnr/pkg/log"
	"lccnr/pkg/table"
)

// IndexLabel names the subject column of the gathered tables
const IndexLabel = "SubjectID"

// Raters is the number of result files expected per subject
const Raters = 2

var ErrNoSubjects = errors.New("no subject with two rater files found")

// GatherOptions controls subject discovery
type GatherOptions struct {
	// SubjectPattern matches subject directories under the input directory
	SubjectPattern string
	// CNRPattern matches rater result files inside a subject directory
	CNRPattern string

	Logger *slog.Logger
}

// DefaultGatherOptions matches the MRIPROC_* / LC_ROI_*.txt layout
func DefaultGatherOptions() GatherOptions {
	return GatherOptions{
		SubjectPattern: "MRIPROC_*",
		CNRPattern:     "LC_ROI_*.txt",
	}
}

// Gathered holds the per-subject rater mean and absolute rater difference
type Gathered struct {
	Mean *table.Table
	Diff *table.Table

	// Skipped lists subjects left out, with the reason
	Skipped map[string]string
}

// Gather summarises every subject directory under indir that holds exactly
// two rater files. Other subjects are skipped with a warning.
func Gather(indir string, opts GatherOptions) (*Gathered, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dirs, err := filepath.Glob(filepath.Join(indir, opts.SubjectPattern))
	if err != nil {
		return nil, fmt.Errorf("subject pattern: %w", err)
	}
	slices.Sort(dirs)

	g := &Gathered{Skipped: make(map[string]string)}
	var names []string
	var mean, diff *table.Builder

	for _, dir := range dirs {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		subject := filepath.Base(dir)

		files, err := filepath.Glob(filepath.Join(dir, opts.CNRPattern))
		if err != nil {
			return nil, fmt.Errorf("result pattern: %w", err)
		}
		slices.Sort(files)

		switch {
		case len(files) < Raters:
			g.skip(logger, subject, fmt.Sprintf("less than two CNR files found for subject %s", subject))
			continue
		case len(files) > Raters:
			g.skip(logger, subject, fmt.Sprintf("more than two CNR files found for subject %s", subject))
			continue
		}

		series := make([]Series, 0, Raters)
		for _, file := range files {
			s, err := SummariseFile(file)
			if err != nil {
				g.skip(logger, subject, fmt.Sprintf("cannot summarise %s: %v", file, err))
				break
			}
			series = append(series, s)
		}
		if len(series) != Raters {
			continue
		}
		if !slices.Equal(series[0].Names, series[1].Names) {
			g.skip(logger, subject, fmt.Sprintf("rater files for subject %s have different columns", subject))
			continue
		}

		if names == nil {
			names = series[0].Names
			mean = table.NewBuilder(IndexLabel, names...)
			diff = table.NewBuilder(IndexLabel, names...)
		} else if !slices.Equal(names, series[0].Names) {
			g.skip(logger, subject, fmt.Sprintf("columns of subject %s differ from earlier subjects", subject))
			continue
		}

		m, d := combine(series[0].Values, series[1].Values)
		mean.Add(subject, m...)
		diff.Add(subject, d...)
		logger.Info(fmt.Sprintf("Success: Extracted CNR from two files for subject %s", subject),
			slog.String("subject", subject))
	}

	if names == nil {
		return g, ErrNoSubjects
	}
	if g.Mean, err = mean.Build(); err != nil {
		return nil, err
	}
	if g.Diff, err = diff.Build(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gathered) skip(logger *slog.Logger, subject, reason string) {
	g.Skipped[subject] = reason
	logger.Warn("Warning: "+reason, slog.String("subject", subject))
}

// combine returns the rater mean (a missing value falls back to the other
// rater) and the absolute rater difference.
func combine(a, b []float64) (mean, diff []float64) {
	mean = make([]float64, len(a))
	diff = make([]float64, len(a))
	for i := range a {
		switch {
		case math.IsNaN(a[i]):
			mean[i] = b[i]
		case math.IsNaN(b[i]):
			mean[i] = a[i]
		default:
			mean[i] = (a[i] + b[i]) / 2
		}
		diff[i] = math.Abs(a[i] - b[i])
	}
	return mean, diff
}

// SummariseFile reads a tab-separated result file and summarises it
func SummariseFile(path string) (Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return Series{}, err
	}
	defer f.Close()

	t, err := table.ReadDelimited(f, '\t', false)
	if err != nil {
		return Series{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Summarise(t)
}

// DiffPath inserts "_diff" before the extension of outfile
func DiffPath(outfile string) string {
	ext := filepath.Ext(outfile)
	return strings.TrimSuffix(outfile, ext) + "_diff" + ext
}

// DefaultOutfile is <parent of indir>/results/lc_cnr_<date>.csv
func DefaultOutfile(indir string, now time.Time) string {
	parent := filepath.Dir(filepath.Clean(indir))
	return filepath.Join(parent, "results", "lc_cnr_"+now.Format(time.DateOnly)+".csv")
}

// Save writes the mean table to outfile and the difference table next to it
func (g *Gathered) Save(outfile string) error {
	if err := os.MkdirAll(filepath.Dir(outfile), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	if err := writeCSV(outfile, g.Mean); err != nil {
		return err
	}
	return writeCSV(DiffPath(outfile), g.Diff)
}

func writeCSV(path string, t *table.Table) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	return t.WriteDelimited(file, ',')
}

// GatherToFile runs Gather with a timestamped log under <indir>/logs and
// saves both tables. Console receives warnings and errors.
func GatherToFile(indir, outfile string, opts GatherOptions, console io.Writer, now time.Time) (*Gathered, error) {
	runOpts := log.DefaultRunOptions(
		filepath.Join(indir, "logs"),
		"lc_gather_cnr_"+now.Format("20060102_150405")+".log",
		console,
	)
	runOpts.ConsoleLevel = slog.LevelWarn
	logger, closer, err := log.NewRunLogger(runOpts)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	opts.Logger = logger
	g, err := Gather(indir, opts)
	if err != nil {
		logger.Error("gather failed", slog.Any("error", err))
		return g, err
	}
	if err := g.Save(outfile); err != nil {
		return g, err
	}
	logger.Info("Saved gathered CNR", slog.String("file", outfile), slog.String("diff", DiffPath(outfile)))
	return g, nil
}
