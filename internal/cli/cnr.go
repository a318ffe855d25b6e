package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"lccnr/pkg/log"
	"lccnr/pkg/pipeline"
	"lccnr/pkg/store"
)

// RunFlags are shared by the cnr and batch commands
type RunFlags struct {
	Force  bool
	Strict bool
	DBPath string
}

func (rf *RunFlags) AddFlags(cmd *cobra.Command, root *RootArgs) {
	cmd.Flags().BoolVarP(&rf.Force, "force", "f", root.Config.Output.Force, "Overwrite existing result files")
	cmd.Flags().BoolVar(&rf.Strict, "strict", root.Config.Output.Strict,
		"Skip contrast when the mask has a structural error")
	cmd.Flags().StringVar(&rf.DBPath, "db", root.Config.Store.Path, "SQLite database to record runs in")
}

// apply fills flags left unset from the loaded configuration
func (rf *RunFlags) apply(cmd *cobra.Command, root *RootArgs) {
	if !flagSet(cmd, "force") {
		rf.Force = root.Config.Output.Force
	}
	if !flagSet(cmd, "strict") {
		rf.Strict = root.Config.Output.Strict
	}
	if !flagSet(cmd, "db") {
		rf.DBPath = root.Config.Store.Path
	}
}

func flagSet(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && (f.Changed || envSet(name))
}

// template builds run parameters from the configuration and flags. The
// returned store is nil when no database is configured.
func (rf *RunFlags) template(cmd *cobra.Command, root *RootArgs) (pipeline.Params, *store.Store, error) {
	cfg := root.Config

	fileLevel, err := log.GetLevel(cfg.Logging.FileLevel)
	if err != nil {
		return pipeline.Params{}, nil, err
	}
	consoleLevel, err := log.GetLevel(cfg.Logging.ConsoleLevel)
	if err != nil {
		return pipeline.Params{}, nil, err
	}

	runLog := log.DefaultRunOptions("", "", cmd.ErrOrStderr())
	runLog.FileLevel = fileLevel
	runLog.ConsoleLevel = consoleLevel

	params := pipeline.Params{
		Force:    rf.Force,
		Strict:   rf.Strict,
		Protocol: cfg.ValidationProtocol(),
		Log:      runLog,
	}

	if rf.DBPath == "" {
		return params, nil, nil
	}
	s, err := store.NewStore(rf.DBPath)
	if err != nil {
		return pipeline.Params{}, nil, fmt.Errorf("open results store: %w", err)
	}
	params.Store = s
	return params, s, nil
}

type CNRArgs struct {
	*RootArgs
	RunFlags

	Image     string
	Mask      string
	OutputDir string
}

func NewCNRCmd(root *RootArgs) *cobra.Command {
	args := &CNRArgs{RootArgs: root}

	cmd := &cobra.Command{
		Use:   "cnr",
		Short: "Compute LC contrast for one subject and save it to file",
		Example: `  # Results go to sub01/LC_ROI_rater1.txt:
  lccnr cnr -i sub01/LC_FSE.nii.gz -m sub01/LC_ROI_rater1.nii.gz`,
		Args: cobra.NoArgs,
		RunE: args.Run,
	}
	cmd.Flags().StringVarP(&args.Image, "image", "i", "", "LC FSE image file")
	cmd.Flags().StringVarP(&args.Mask, "mask", "m", "", "Mask file containing the marked ROIs")
	cmd.Flags().StringVarP(&args.OutputDir, "outdir", "o", "", "Output directory (default: image directory)")
	args.RunFlags.AddFlags(cmd, root)

	must(cmd.MarkFlagRequired("image"))
	must(cmd.MarkFlagRequired("mask"))

	return cmd
}

func (ca *CNRArgs) Run(cmd *cobra.Command, _ []string) error {
	ca.apply(cmd, ca.RootArgs)

	params, s, err := ca.template(cmd, ca.RootArgs)
	if err != nil {
		return err
	}
	if s != nil {
		defer s.Close()
	}
	params.ImageFile = ca.Image
	params.MaskFile = ca.Mask
	params.OutputDir = ca.OutputDir

	res, err := pipeline.NewProcessor(&params).Process()
	if err != nil {
		return err
	}

	slog.Debug("run finished", slog.String("log", res.LogFile))
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d mask error(s), results saved to %s\n",
		ca.Mask, res.Report.Status(), res.OutputFile)
	if res.RunID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "run id: %s\n", res.RunID)
	}
	if res.Report.Fatal != nil {
		return fmt.Errorf("%s: %w", ca.Mask, res.Report.Fatal)
	}
	return nil
}
