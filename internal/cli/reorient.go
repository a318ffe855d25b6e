package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"lccnr/pkg/nifti"
)

type ReorientArgs struct {
	*RootArgs

	Float bool
}

func NewReorientCmd(root *RootArgs) *cobra.Command {
	args := &ReorientArgs{RootArgs: root}

	cmd := &cobra.Command{
		Use:   "reorient <in> <out>",
		Short: "Write a copy of a NIfTI image in canonical RAS+ orientation",
		Args:  cobra.ExactArgs(2),
		RunE:  args.Run,
	}
	cmd.Flags().BoolVar(&args.Float, "float", false, "Store voxels as float32 instead of the input datatype")

	return cmd
}

func (ra *ReorientArgs) Run(cmd *cobra.Command, positional []string) error {
	in, out := positional[0], positional[1]

	img, err := nifti.ReadFile(in)
	if err != nil {
		return err
	}
	canonical, err := nifti.Canonical(img.Volume)
	if err != nil {
		return err
	}

	dt := img.Header.Datatype
	if ra.Float {
		dt = nifti.Float32
	}
	if err := nifti.WriteFile(out, canonical, dt); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	slog.Debug("reoriented image",
		slog.String("in", in),
		slog.Any("orientation", nifti.Orientation(img.Volume.Affine)),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", in, out)
	return nil
}
