package cmd

import (
	"github.com/crytic/crossguard/logging"
	"github.com/crytic/crossguard/version"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// cmdLogger is the logger of the CLI. It writes to the console regardless of the project's logging configuration.
var cmdLogger = logging.NewLogger(zerolog.InfoLevel, true).NewSubLogger("module", logging.CLI_SERVICE)

// rootCmd represents the root CLI command object which all other commands stem from.
var rootCmd = &cobra.Command{
	Use:     "crossguard",
	Version: version.GetInfo().Short(),
	Short:   "A cross-application reentrancy detector for EVM transactions",
	Long:    "crossguard re-executes historical transactions to detect cross-application reentrancy (control leaks)",
}

// Execute provides an exportable function to invoke the CLI. Returns an error if one was encountered.
func Execute() error {
	return rootCmd.Execute()
}
