package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// bindEnvVars lets every flag of cmd and its subcommands be set from an
// LCCNR_<FLAG> environment variable, e.g. --log-level from LCCNR_LOG_LEVEL
// and --db from LCCNR_DB. A flag given on the command line wins over the
// environment, which wins over the default. The variable name is appended
// to each flag's usage text.
func bindEnvVars(cmd *cobra.Command) {
	bind := func(flag *pflag.Flag) {
		name := envName(flag.Name)
		if !strings.Contains(flag.Usage, name) {
			flag.Usage = fmt.Sprintf("%s ($%s)", flag.Usage, name)
		}

		value, ok := os.LookupEnv(name)
		if !ok || flag.Changed {
			return
		}
		if err := flag.Value.Set(value); err != nil {
			slog.Error("ignoring environment variable",
				slog.String("env", name),
				slog.String("value", value),
				slog.Any("error", err),
			)
		}
	}

	cmd.Flags().VisitAll(bind)
	cmd.PersistentFlags().VisitAll(bind)
	for _, sub := range cmd.Commands() {
		bindEnvVars(sub)
	}
}

// envSet reports whether the flag's environment variable is present
func envSet(flagName string) bool {
	_, ok := os.LookupEnv(envName(flagName))
	return ok
}

func envName(flagName string) string {
	return strings.ToUpper(cmdName + "_" + strings.ReplaceAll(flagName, "-", "_"))
}
