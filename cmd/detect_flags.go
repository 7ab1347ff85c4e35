package cmd

import (
	"fmt"

	"github.com/crytic/crossguard/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// addDetectFlags adds the various flags for the detect command
func addDetectFlags() error {
	// Get the default project config and throw an error if we cant
	defaultConfig := config.GetDefaultProjectConfig()

	// Prevent alphabetical sorting of usage message
	detectCmd.Flags().SortFlags = false

	// Config file
	detectCmd.Flags().String("config", "", "path to config file")

	// Transactions
	addTransactionFlags(detectCmd.Flags(), "target", "the transaction re-executed on the forked state")
	addTransactionFlags(detectCmd.Flags(), "victim", "the transaction replayed at the first cross-application call")

	// Dependent function
	detectCmd.Flags().String("dependent-signature", "",
		"signature or 0x-prefixed selector of the target contract function the victim must not be driven into")
	detectCmd.Flags().String("dependent-name", "", "name of the dependent function used in findings")

	// Chain state
	addOnChainFlags(detectCmd.Flags(), defaultConfig)
	return nil
}

// updateProjectConfigWithDetectFlags will update the given projectConfig with any CLI arguments that were provided to
// the detect command
func updateProjectConfigWithDetectFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
	var err error

	// Update the transactions
	err = updateTransactionWithFlags(cmd, "target", &projectConfig.Detection.Target)
	if err != nil {
		return err
	}
	err = updateTransactionWithFlags(cmd, "victim", &projectConfig.Detection.Victim)
	if err != nil {
		return err
	}

	// Update the dependent function
	if cmd.Flags().Changed("dependent-signature") {
		projectConfig.Detection.DependentFunctionSignature, err = cmd.Flags().GetString("dependent-signature")
		if err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("dependent-name") {
		projectConfig.Detection.DependentFunctionName, err = cmd.Flags().GetString("dependent-name")
		if err != nil {
			return err
		}
	}

	return updateProjectConfigWithOnChainFlags(cmd, projectConfig)
}

// addTransactionFlags adds the flags describing one transaction, each name being prefixed with prefix
func addTransactionFlags(flags *pflag.FlagSet, prefix string, description string) {
	flags.String(prefix+"-hash", "", fmt.Sprintf("hash of %s", description))
	flags.Uint64(prefix+"-block", 0, fmt.Sprintf("block number %s was included in", description))
	flags.String(prefix+"-block-hash", "", fmt.Sprintf("hash of the block %s was included in", description))
	flags.Uint64(prefix+"-timestamp", 0, fmt.Sprintf("timestamp of the block %s was included in", description))
	flags.String(prefix+"-from", "", fmt.Sprintf("sender of %s", description))
	flags.String(prefix+"-to", "", fmt.Sprintf("receiver of %s", description))
	flags.String(prefix+"-value", "", fmt.Sprintf("wei sent with %s", description))
	flags.String(prefix+"-input", "", fmt.Sprintf("hex-encoded calldata of %s", description))
	flags.String(prefix+"-function", "", fmt.Sprintf("name of the function called by %s", description))
	flags.Bool(prefix+"-reverted", false, fmt.Sprintf("whether %s reverted on-chain", description))
}

// updateTransactionWithFlags will update the given transaction with the flags added by addTransactionFlags for prefix
func updateTransactionWithFlags(cmd *cobra.Command, prefix string, tx *config.TransactionConfig) error {
	var err error
	flags := cmd.Flags()

	if flags.Changed(prefix + "-hash") {
		tx.Hash, err = flags.GetString(prefix + "-hash")
		if err != nil {
			return err
		}
	}
	if flags.Changed(prefix + "-block") {
		tx.BlockNumber, err = flags.GetUint64(prefix + "-block")
		if err != nil {
			return err
		}
	}
	if flags.Changed(prefix + "-block-hash") {
		tx.BlockHash, err = flags.GetString(prefix + "-block-hash")
		if err != nil {
			return err
		}
	}
	if flags.Changed(prefix + "-timestamp") {
		tx.Timestamp, err = flags.GetUint64(prefix + "-timestamp")
		if err != nil {
			return err
		}
	}
	if flags.Changed(prefix + "-from") {
		tx.From, err = flags.GetString(prefix + "-from")
		if err != nil {
			return err
		}
	}
	if flags.Changed(prefix + "-to") {
		tx.To, err = flags.GetString(prefix + "-to")
		if err != nil {
			return err
		}
	}
	if flags.Changed(prefix + "-value") {
		value, err := flags.GetString(prefix + "-value")
		if err != nil {
			return err
		}
		tx.Value, err = config.ParseWeiValue(value)
		if err != nil {
			return err
		}
	}
	if flags.Changed(prefix + "-input") {
		tx.Input, err = flags.GetString(prefix + "-input")
		if err != nil {
			return err
		}
	}
	if flags.Changed(prefix + "-function") {
		tx.FunctionName, err = flags.GetString(prefix + "-function")
		if err != nil {
			return err
		}
	}
	if flags.Changed(prefix + "-reverted") {
		reverted, err := flags.GetBool(prefix + "-reverted")
		if err != nil {
			return err
		}
		tx.IsSuccess = !reverted
	}
	return nil
}
