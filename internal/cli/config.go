package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lccnr/pkg/config"
)

const defaultConfigPath = "lccnr.yaml"

func NewConfigCmd(root *RootArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the lccnr configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists, use --force to overwrite", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the active configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return config.Encode(cmd.OutOrStdout(), root.Config)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
