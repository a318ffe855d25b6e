package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"lccnr/pkg/pipeline"
	"lccnr/pkg/validation"
)

// ErrMaskInvalid is returned when at least one checked mask has errors.
var ErrMaskInvalid = errors.New("mask check failed")

type CheckArgs struct {
	*RootArgs

	Verbose bool
}

func NewCheckCmd(root *RootArgs) *cobra.Command {
	args := &CheckArgs{RootArgs: root}

	cmd := &cobra.Command{
		Use:   "check <mask>...",
		Short: "Check LC masks against the marking protocol",
		Example: `  # Check one mask:
  lccnr check sub01/LC_ROI_rater1.nii.gz`,
		Args: cobra.MinimumNArgs(1),
		RunE: args.Run,
	}
	cmd.Flags().BoolVarP(&args.Verbose, "verbose", "v", false, "Also print the rules that passed")

	return cmd
}

// Run checks every mask. A mask that cannot be loaded counts as failed and
// does not stop the remaining checks.
func (ca *CheckArgs) Run(cmd *cobra.Command, masks []string) error {
	// Rule outcomes go to stdout through WriteReport only
	validator := validation.NewValidator(ca.Config.ValidationProtocol(), nil)

	level := slog.LevelInfo
	if ca.Verbose {
		level = slog.LevelDebug
	}

	var errs []error
	failed := 0
	out := cmd.OutOrStdout()
	for _, mask := range masks {
		report, err := validator.ValidateFile(mask)
		if report == nil {
			slog.Error("failed to check mask", slog.String("mask", mask), slog.Any("error", err))
			fmt.Fprintf(out, "%s\n%v\n", mask, err)
			errs = append(errs, err)
			failed++
			continue
		}

		fmt.Fprintf(out, "%s\n", mask)
		if err := pipeline.WriteReport(out, report, level); err != nil {
			return err
		}
		if !report.Passed() {
			failed++
		}
	}

	if failed > 0 {
		errs = append(errs, fmt.Errorf("%w: %d of %d mask(s) have errors", ErrMaskInvalid, failed, len(masks)))
	}
	return errors.Join(errs...)
}
