package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"lccnr/pkg/config"
	"lccnr/pkg/log"
)

const (
	cmdName = "lccnr"
	cmdDesc = `Validate locus coeruleus ROI masks and compute neuromelanin contrast.`
)

type RootArgs struct {
	LogLevel   string
	LogFormat  string
	ConfigPath string

	// Config is loaded before any subcommand runs
	Config *config.Config
}

func NewRootArgs() *RootArgs {
	return &RootArgs{Config: config.DefaultConfig()}
}

func (ra *RootArgs) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&ra.ConfigPath, "config", "", "Path to the lccnr configuration file")
	cmd.PersistentFlags().
		StringVar(&ra.LogLevel, "log-level", "info", fmt.Sprintf("Log level, one of: %s", log.AllLevels))
	cmd.PersistentFlags().
		StringVar(&ra.LogFormat, "log-format", "text", fmt.Sprintf("Log format, one of: %s", log.AllFormats))

	var err error

	err = cmd.MarkPersistentFlagFilename("config", "yaml", "yml")
	if err != nil {
		panic(fmt.Errorf("mark config flag: %w", err))
	}

	err = cmd.RegisterFlagCompletionFunc("log-format",
		cobra.FixedCompletions(log.AllFormats, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}

	err = cmd.RegisterFlagCompletionFunc("log-level",
		cobra.FixedCompletions(log.AllLevels, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}
}

func NewRootCmd() *cobra.Command {
	args := NewRootArgs()

	cmd := &cobra.Command{
		Use:               cmdName,
		Short:             cmdDesc,
		SilenceUsage:      true,
		PersistentPreRunE: setup(args),
	}

	args.AddFlags(cmd)
	cmd.AddCommand(
		NewCheckCmd(args),
		NewCNRCmd(args),
		NewBatchCmd(args),
		NewGatherCmd(args),
		NewReorientCmd(args),
		NewRunsCmd(args),
		NewConfigCmd(args),
	)

	bindEnvVars(cmd)

	return cmd
}

// setup loads the configuration file and installs the default logger.
// Log flags left unset fall back to the configuration.
func setup(ra *RootArgs) func(cmd *cobra.Command, _ []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		if ra.ConfigPath != "" {
			cfg, err := config.LoadConfig(ra.ConfigPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ra.Config = cfg
		}

		level, format := ra.LogLevel, ra.LogFormat
		if f := cmd.Flags().Lookup("log-level"); f != nil && !f.Changed && !envSet(f.Name) {
			level = ra.Config.Logging.Level
		}
		if f := cmd.Flags().Lookup("log-format"); f != nil && !f.Changed && !envSet(f.Name) {
			format = ra.Config.Logging.Format
		}

		logHandler, err := log.CreateHandlerWithStrings(cmd.ErrOrStderr(), level, format)
		if err != nil {
			return fmt.Errorf("create log handler: %w", err)
		}

		slog.SetDefault(slog.New(logHandler))

		return nil
	}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
