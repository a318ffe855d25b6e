package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"lccnr/pkg/store"
)

type RunsArgs struct {
	*RootArgs

	DBPath string
	Mask   string
	ID     string
}

func NewRunsCmd(root *RootArgs) *cobra.Command {
	args := &RunsArgs{RootArgs: root}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs recorded in the results database",
		Args:  cobra.NoArgs,
		RunE:  args.Run,
	}
	cmd.Flags().StringVar(&args.DBPath, "db", root.Config.Store.Path, "SQLite database with recorded runs")
	cmd.Flags().StringVarP(&args.Mask, "mask", "m", "", "Only list runs of this mask file")
	cmd.Flags().StringVar(&args.ID, "id", "", "Show the rule outcomes of one run")

	return cmd
}

func (ra *RunsArgs) Run(cmd *cobra.Command, _ []string) error {
	if !flagSet(cmd, "db") {
		ra.DBPath = ra.Config.Store.Path
	}
	if ra.DBPath == "" {
		return errors.New("no results database configured, use --db")
	}

	s, err := store.NewStore(ra.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()

	if ra.ID != "" {
		run, err := s.Run(ra.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "SLICE\tRULE\tFAILURES\tMESSAGE\n")
		for _, o := range run.Outcomes {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", o.Slice, o.Rule, o.Failures, o.Message)
		}
		if run.Fatal != "" {
			fmt.Fprintf(w, "-\t-\t-\t%s\n", run.Fatal)
		}
		return nil
	}

	runs, err := s.ListRuns(ra.Mask)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "ID\tCREATED\tSTATUS\tMASK\tOUTPUT\n")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Status, r.Files.Mask, r.Files.Output)
	}
	return nil
}
