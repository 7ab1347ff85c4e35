package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/crytic/crossguard/cmd/exitcodes"
	"github.com/crytic/crossguard/executor"
	"github.com/crytic/crossguard/logging/colors"
	"github.com/crytic/crossguard/records"
	"github.com/spf13/cobra"
)

// detectCmd represents the command provider for leak detection
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Checks whether a transaction can redirect another application's transaction",
	Long: `Re-executes the target transaction on the state preceding its block. At its first call into another
application, the victim transaction is replayed on an isolated copy of the state. A leak is reported if the victim
reaches the dependent function of the target contract.`,
	Args:              cmdValidateNoArgs,
	ValidArgsFunction: cmdValidFlagArgs,
	RunE:              cmdRunDetect,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	// Add all the flags allowed for the detect command
	err := addDetectFlags()
	if err != nil {
		cmdLogger.Panic("Failed to initialize the detect command", err)
	}

	// Add the detect command and its associated flags to the root command
	rootCmd.AddCommand(detectCmd)
}

// cmdRunDetect executes the CLI detect command. A detected leak is stored in the results database and reported
// through exitcodes.ExitCodeLeakFound.
func cmdRunDetect(cmd *cobra.Command, args []string) error {
	// Read the project configuration, then apply the flags on top of it
	projectConfig, err := loadProjectConfig(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the detect command", err)
		return err
	}
	err = updateProjectConfigWithDetectFlags(cmd, projectConfig)
	if err != nil {
		cmdLogger.Error("Failed to run the detect command", err)
		return err
	}
	err = projectConfig.ValidateDetection()
	if err != nil {
		cmdLogger.Error("Failed to run the detect command", err)
		return err
	}

	// Logging must be configured before any component captures its sub-logger
	closeLog, err := setupLogging(projectConfig.Logging)
	if err != nil {
		cmdLogger.Error("Failed to run the detect command", err)
		return err
	}
	defer closeLog()

	// Validation guarantees the conversions succeed
	target, _ := projectConfig.Detection.Target.Transaction()
	victim, _ := projectConfig.Detection.Victim.Transaction()
	dependentSelector, _ := projectConfig.Detection.DependentSelector()

	// Stop on keyboard interrupts
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	provider, release, err := newDataProvider(ctx, projectConfig, target.StateBlock())
	if err != nil {
		cmdLogger.Error("Failed to run the detect command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	defer release()

	table, err := loadDappTable(projectConfig)
	if err != nil {
		cmdLogger.Error("Failed to run the detect command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	store, err := records.Open(projectConfig.WorkDirectory)
	if err != nil {
		cmdLogger.Error("Failed to run the detect command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	defer store.Close()

	detection := executor.Detection{
		Target:            target,
		Victim:            victim,
		DependentSelector: dependentSelector,
		DependentFunction: projectConfig.Detection.DependentName(),
		ChainID:           projectConfig.OnChain.ChainID,
	}
	e, err := executor.NewExecutor(detection, provider, table)
	if err != nil {
		cmdLogger.Error("Failed to run the detect command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	// Findings are persisted as soon as they are published
	e.Events.LeakDetected.Subscribe(func(event executor.LeakDetectedEvent) error {
		return store.AppendFinding(event.Finding)
	})

	result, err := e.Run(ctx)
	if err != nil {
		cmdLogger.Error("Failed to run the detect command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	if len(result.UnknownContracts) > 0 {
		cmdLogger.Warn(len(result.UnknownContracts), " contract(s) could not be attributed to an application")
		if err := store.AddUnknownContracts(result.UnknownContracts); err != nil {
			cmdLogger.Error("Failed to record unknown contracts", err)
			return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
		}
	}

	if result.Finding == nil {
		cmdLogger.Info("No leak found, the target finished with ", colors.Bold, result.Result.String(), colors.Reset)
		return nil
	}
	cmdLogger.Info(colors.RedBold, "[LEAK] ", colors.Reset, result.Finding.String())
	cmdLogger.Info("Finding recorded in ", colors.Bold, store.Path(), colors.Reset)
	return exitcodes.NewErrorWithExitCode(nil, exitcodes.ExitCodeLeakFound)
}
