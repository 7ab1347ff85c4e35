package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/crytic/crossguard/cmd/exitcodes"
	"github.com/crytic/crossguard/executor"
	"github.com/crytic/crossguard/logging/colors"
	"github.com/crytic/crossguard/records"
	"github.com/crytic/crossguard/types"
	"github.com/crytic/medusa-geth/common"
	"github.com/spf13/cobra"
)

// replayCmd represents the command provider for call graph recording
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replays historical transactions and records their call graphs",
	Long: `Replays each configured transaction on the state preceding its block. The call graph, the inferred proxies
and the per-application storage accesses of each replay are stored in the results database.`,
	Args:              cmdValidateNoArgs,
	ValidArgsFunction: cmdValidFlagArgs,
	RunE:              cmdRunReplay,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	// Add all the flags allowed for the replay command
	err := addReplayFlags()
	if err != nil {
		cmdLogger.Panic("Failed to initialize the replay command", err)
	}

	// Add the replay command and its associated flags to the root command
	rootCmd.AddCommand(replayCmd)
}

// cmdRunReplay executes the CLI replay command
func cmdRunReplay(cmd *cobra.Command, args []string) error {
	// Read the project configuration, then apply the flags on top of it
	projectConfig, err := loadProjectConfig(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the replay command", err)
		return err
	}
	err = updateProjectConfigWithReplayFlags(cmd, projectConfig)
	if err != nil {
		cmdLogger.Error("Failed to run the replay command", err)
		return err
	}
	err = projectConfig.ValidateReplay()
	if err != nil {
		cmdLogger.Error("Failed to run the replay command", err)
		return err
	}

	// Logging must be configured before any component captures its sub-logger
	closeLog, err := setupLogging(projectConfig.Logging)
	if err != nil {
		cmdLogger.Error("Failed to run the replay command", err)
		return err
	}
	defer closeLog()

	// Stop on keyboard interrupts
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	table, err := loadDappTable(projectConfig)
	if err != nil {
		cmdLogger.Error("Failed to run the replay command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	store, err := records.Open(projectConfig.WorkDirectory)
	if err != nil {
		cmdLogger.Error("Failed to run the replay command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	defer store.Close()

	mismatches := 0
	for i := range projectConfig.Replay.Transactions {
		// Validation guarantees the conversion succeeds
		tx, _ := projectConfig.Replay.Transactions[i].Transaction()
		matched, err := replayTransaction(ctx, tx, store,
			func(block uint64) (*executor.ReplayExecutor, func(), error) {
				provider, release, err := newDataProvider(ctx, projectConfig, block)
				if err != nil {
					return nil, nil, err
				}
				return executor.NewReplayExecutor(provider, table, projectConfig.OnChain.ChainID, projectConfig.Replay.Verify), release, nil
			})
		if err != nil {
			cmdLogger.Error("Failed to run the replay command", err)
			return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
		}
		if !matched {
			mismatches++
		}
	}

	if mismatches > 0 {
		cmdLogger.Warn(mismatches, " of ", len(projectConfig.Replay.Transactions), " replay(s) did not match their on-chain outcome")
	}
	cmdLogger.Info("Replay records stored in ", colors.Bold, store.Path(), colors.Reset)
	return nil
}

// replayTransaction replays tx on an executor created for its state block and persists the results in store. Returns
// whether the replay matched the on-chain outcome, which is always the case when verification is disabled.
func replayTransaction(
	ctx context.Context,
	tx *types.Transaction,
	store *records.Store,
	newExecutor func(block uint64) (*executor.ReplayExecutor, func(), error),
) (bool, error) {
	r, release, err := newExecutor(tx.StateBlock())
	if err != nil {
		return false, err
	}
	defer release()

	matched := true
	r.Events.TransactionReplayed.Subscribe(func(event executor.TransactionReplayedEvent) error {
		result := event.Result
		if err := store.PutReplayRecord(tx.Hash, result.Record); err != nil {
			return err
		}
		if result.Verification != nil {
			if err := store.PutVerification(result.Verification); err != nil {
				return err
			}
			matched = result.Verification.Matched()
			printVerification(result.Verification)
		}
		if len(result.UnknownContracts) > 0 {
			return store.AddUnknownContracts(result.UnknownContracts)
		}
		return nil
	})

	_, err = r.Run(ctx, tx)
	return matched, err
}

// printVerification logs the comparison of a replay with its on-chain outcome
func printVerification(v *types.Verification) {
	if v.Matched() {
		cmdLogger.Info(colors.GreenBold, "[MATCH] ", colors.Reset, v.TxHash.Hex(), " finished with ", v.Result)
		return
	}
	cmdLogger.Info(colors.RedBold, "[MISMATCH] ", colors.Reset, v.TxHash.Hex(), " finished with ", v.Result,
		" (on-chain success: ", v.OnChainSuccess, ")")
}

// normalizeHash returns the canonical hex form of a transaction hash
func normalizeHash(hash string) string {
	return common.HexToHash(hash).Hex()
}
