// Command adblink is a thin CLI over the dispatcher in pkg/dispatch: it
// dials an ADB host transport, opens a single logical stream for a given
// service string, and pipes the process's stdio through it.
package main

import (
	"github.com/spf13/cobra"

	"github.com/adblink/adblink/cmd"
)

func rootMain(command *cobra.Command, arguments []string) {
	command.Help()
}

var rootCommand = &cobra.Command{
	Use:   "adblink",
	Short: "adblink dispatches ADB wire-protocol streams over a host transport",
	Run:   rootMain,
}

var rootConfiguration struct {
	configPath string
	logLevel   string
}

func init() {
	flags := rootCommand.PersistentFlags()
	flags.StringVar(&rootConfiguration.configPath, "config", "", "path to a YAML configuration file")
	flags.StringVar(&rootConfiguration.logLevel, "log-level", "", "override the configured log level (disabled|error|warn|info|debug|trace)")

	cobra.EnableCommandSorting = false

	rootCommand.AddCommand(
		connectCommand,
		versionCommand,
	)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		cmd.Fatal(err)
	}
}
