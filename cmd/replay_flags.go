package cmd

import (
	"github.com/crytic/crossguard/config"
	"github.com/spf13/cobra"
)

// addReplayFlags adds the various flags for the replay command
func addReplayFlags() error {
	// Get the default project config and throw an error if we cant
	defaultConfig := config.GetDefaultProjectConfig()

	// Prevent alphabetical sorting of usage message
	replayCmd.Flags().SortFlags = false

	// Config file
	replayCmd.Flags().String("config", "", "path to config file")

	// Transaction selection
	replayCmd.Flags().StringSlice("tx-hash", []string{}, "only replay the configured transactions with these hashes")

	// Ad-hoc transaction
	addTransactionFlags(replayCmd.Flags(), "tx", "a transaction replayed in addition to the configured ones")

	// Verification
	replayCmd.Flags().Bool("no-verify", false, "do not compare replays with their on-chain outcome")

	// Chain state
	addOnChainFlags(replayCmd.Flags(), defaultConfig)
	return nil
}

// updateProjectConfigWithReplayFlags will update the given projectConfig with any CLI arguments that were provided to
// the replay command
func updateProjectConfigWithReplayFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
	var err error

	// Keep only the selected transactions
	if cmd.Flags().Changed("tx-hash") {
		hashes, err := cmd.Flags().GetStringSlice("tx-hash")
		if err != nil {
			return err
		}
		projectConfig.Replay.Transactions = filterTransactions(projectConfig.Replay.Transactions, hashes)
	}

	// Append the ad-hoc transaction if one was described
	var adHoc config.TransactionConfig
	adHoc.IsSuccess = true
	err = updateTransactionWithFlags(cmd, "tx", &adHoc)
	if err != nil {
		return err
	}
	if !adHoc.IsEmpty() {
		projectConfig.Replay.Transactions = append(projectConfig.Replay.Transactions, adHoc)
	}

	// Update verification
	if cmd.Flags().Changed("no-verify") {
		noVerify, err := cmd.Flags().GetBool("no-verify")
		if err != nil {
			return err
		}
		projectConfig.Replay.Verify = !noVerify
	}

	return updateProjectConfigWithOnChainFlags(cmd, projectConfig)
}

// filterTransactions returns the transactions whose hash is one of hashes, in their original order
func filterTransactions(txs []config.TransactionConfig, hashes []string) []config.TransactionConfig {
	selected := make(map[string]bool, len(hashes))
	for _, hash := range hashes {
		selected[normalizeHash(hash)] = true
	}

	filtered := make([]config.TransactionConfig, 0, len(txs))
	for _, tx := range txs {
		if selected[normalizeHash(tx.Hash)] {
			filtered = append(filtered, tx)
		}
	}
	return filtered
}
