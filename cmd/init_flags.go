package cmd

import (
	"github.com/crytic/crossguard/config"
	"github.com/spf13/cobra"
)

// addInitFlags adds the various flags for the init command
func addInitFlags() error {
	// Output path for configuration
	initCmd.Flags().String("out", "", "output path for the new project configuration file")

	// Chain state defaults written to the new configuration
	initCmd.Flags().String("rpc-url", "", "JSON-RPC endpoint historical state is read from")
	initCmd.Flags().String("dapp-table", "", "path to the CSV file mapping contract creators to application names")

	return nil
}

// updateProjectConfigWithInitFlags will update the given projectConfig with any CLI arguments that were provided to the init command
func updateProjectConfigWithInitFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
	var err error

	// Update the rpc endpoint
	if cmd.Flags().Changed("rpc-url") {
		projectConfig.OnChain.RPCAddress, err = cmd.Flags().GetString("rpc-url")
		if err != nil {
			return err
		}
	}

	// Update the dapp table
	if cmd.Flags().Changed("dapp-table") {
		projectConfig.OnChain.DappTablePath, err = cmd.Flags().GetString("dapp-table")
		if err != nil {
			return err
		}
	}
	return nil
}
