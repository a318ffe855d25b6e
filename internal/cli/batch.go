package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"lccnr/pkg/pipeline"
)

type BatchArgs struct {
	*RootArgs
	RunFlags

	BaseDir  string
	Mask     string
	Subjects []string
	Workers  int
}

func NewBatchCmd(root *RootArgs) *cobra.Command {
	args := &BatchArgs{RootArgs: root}

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Compute LC contrast for several subjects",
		Example: `  # Each subject directory holds LC_FSE.nii* and the mask:
  lccnr batch -d /data -m LC_ROI_rater1 -s sub01 sub02 sub03`,
		Args: cobra.ArbitraryArgs,
		RunE: args.Run,
	}
	cmd.Flags().StringVarP(&args.BaseDir, "basedir", "d", "", "Base directory containing subject folders")
	cmd.Flags().StringVarP(&args.Mask, "mask", "m", "", "Mask file name, with or without extension")
	cmd.Flags().StringSliceVarP(&args.Subjects, "subjects", "s", nil, "Subject folder names")
	cmd.Flags().IntVar(&args.Workers, "workers", root.Config.Batch.Workers, "Subjects processed at once")
	args.RunFlags.AddFlags(cmd, root)

	must(cmd.MarkFlagRequired("basedir"))
	must(cmd.MarkFlagRequired("mask"))

	return cmd
}

// Run processes the subjects named by --subjects and any positional
// arguments.
func (ba *BatchArgs) Run(cmd *cobra.Command, extra []string) error {
	ba.apply(cmd, ba.RootArgs)
	if !flagSet(cmd, "workers") {
		ba.Workers = ba.Config.Batch.Workers
	}

	subjects := append(append([]string(nil), ba.Subjects...), extra...)
	if len(subjects) == 0 {
		return errors.New("no subjects given")
	}

	template, s, err := ba.template(cmd, ba.RootArgs)
	if err != nil {
		return err
	}
	if s != nil {
		defer s.Close()
	}

	results, err := pipeline.RunBatch(cmd.Context(), pipeline.BatchParams{
		BaseDir:      ba.BaseDir,
		MaskName:     ba.Mask,
		Subjects:     subjects,
		ImagePattern: ba.Config.Batch.ImagePattern,
		Workers:      ba.Workers,
		Template:     template,
		Logger:       slog.Default(),
	})

	errs := []error{err}
	out := cmd.OutOrStdout()
	for _, r := range results {
		switch {
		case r.Skipped:
			fmt.Fprintf(out, "%s: skipped, mask not found\n", r.Subject)
		case r.Err != nil:
			fmt.Fprintf(out, "%s: failed: %v\n", r.Subject, r.Err)
		default:
			fmt.Fprintf(out, "%s: %d mask error(s), results saved to %s\n",
				r.Subject, r.Result.Report.Status(), r.Result.OutputFile)
			if fatal := r.Result.Report.Fatal; fatal != nil {
				errs = append(errs, fmt.Errorf("subject %s: %w", r.Subject, fatal))
			}
		}
	}
	return errors.Join(errs...)
}
