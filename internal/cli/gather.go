package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"lccnr/pkg/summary"
)

type GatherArgs struct {
	*RootArgs

	Outfile string
}

func NewGatherCmd(root *RootArgs) *cobra.Command {
	args := &GatherArgs{RootArgs: root}

	cmd := &cobra.Command{
		Use:   "gather <indir>",
		Short: "Combine per-subject results from two raters into one spreadsheet",
		Long: `Searches every subject directory under <indir> for two rater result files,
summarises each and saves the rater mean per subject to a CSV file. A second
file with the suffix "_diff" holds the absolute rater difference for QC.
Subjects with fewer or more than two result files are logged to <indir>/logs/.`,
		Args: cobra.ExactArgs(1),
		RunE: args.Run,
	}
	cmd.Flags().StringVarP(&args.Outfile, "outfile", "o", "",
		"Output file (default: <indir>/../results/lc_cnr_<date>.csv)")

	return cmd
}

func (ga *GatherArgs) Run(cmd *cobra.Command, positional []string) error {
	indir := positional[0]
	now := time.Now()

	outfile := ga.Outfile
	if outfile == "" {
		outfile = summary.DefaultOutfile(indir, now)
	}

	opts := summary.DefaultGatherOptions()
	opts.SubjectPattern = ga.Config.Batch.SubjectPattern
	opts.CNRPattern = ga.Config.Batch.CNRPattern

	g, err := summary.GatherToFile(indir, outfile, opts, cmd.ErrOrStderr(), now)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d subject(s) saved to %s (%d skipped)\n",
		g.Mean.Len(), outfile, len(g.Skipped))
	return nil
}
