package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/crytic/crossguard/chain"
	"github.com/crytic/crossguard/config"
	"github.com/crytic/crossguard/dapp"
	"github.com/crytic/crossguard/logging"
	"github.com/crytic/crossguard/logging/colors"
	"github.com/crytic/crossguard/utils"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// cmdValidFlagArgs will return which flags are valid for dynamic completion for commands that only accept flags
func cmdValidFlagArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	// Gather a list of flags that are available to be used in the current command but have not been used yet
	var unusedFlags []string

	// Examine all the flags, and add any flags that have not been set in the current command line
	// to a list of unused flags
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if !flag.Changed {
			unusedFlags = append(unusedFlags, "--"+flag.Name)
		}
	})
	// Provide a list of flags that can be used in the current command (but have not been used yet)
	// for autocompletion suggestions
	return unusedFlags, cobra.ShellCompDirectiveNoFileComp
}

// cmdValidateNoArgs makes sure that there are no positional arguments provided to a command
func cmdValidateNoArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		err = fmt.Errorf("%s does not accept any positional arguments, only flags and their associated values", cmd.Name())
		cmdLogger.Error("Failed to validate args to the "+cmd.Name()+" command", err)
		return err
	}
	return nil
}

// loadProjectConfig reads the project configuration of a command and navigates through the following possibilities:
// #1: We will search for either a custom config file (via --config) or the default (crossguard.json).
// If we find it, read it. If we can't read it, throw an error.
// #2: If a custom file was provided (--config was used), and we can't find the file, throw an error.
// #3: If crossguard.json can't be found, use the default project configuration.
func loadProjectConfig(cmd *cobra.Command) (*config.ProjectConfig, error) {
	// Check to see if --config flag was used and store the value of --config flag
	configFlagUsed := cmd.Flags().Changed("config")
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// If --config was not used, look for `crossguard.json` in the current work directory
	if !configFlagUsed {
		workingDirectory, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(workingDirectory, config.DefaultProjectConfigFilename)
	}

	// Check to see if the file exists at configPath
	_, existenceError := os.Stat(configPath)

	// Possibility #1: File was found
	if existenceError == nil {
		cmdLogger.Info("Reading the configuration file at: ", colors.Bold, configPath, colors.Reset)
		return config.ReadProjectConfigFromFile(configPath)
	}

	// Possibility #2: If the --config flag was used, and we couldn't find the file, we'll throw an error
	if configFlagUsed {
		return nil, existenceError
	}

	// Possibility #3: --config flag was not used and crossguard.json was not found, so use the default project config
	cmdLogger.Warn(fmt.Sprintf("Unable to find the config file at %v, will use the default project configuration instead", configPath))
	return config.GetDefaultProjectConfig(), nil
}

// addOnChainFlags adds the flags shared by every command reading chain state
func addOnChainFlags(flags *pflag.FlagSet, defaultConfig *config.ProjectConfig) {
	flags.String("work-dir", "",
		fmt.Sprintf("directory for results and cached chain data (unless a config file is provided, default is %q)", defaultConfig.WorkDirectory))
	flags.String("rpc-url", "", "JSON-RPC endpoint historical state is read from")
	flags.Uint64("chain-id", 0,
		fmt.Sprintf("chain id exposed to executed code (unless a config file is provided, default is %d)", defaultConfig.OnChain.ChainID))
	flags.Uint("pool-size", 0,
		fmt.Sprintf("number of JSON-RPC clients (unless a config file is provided, default is %d)", defaultConfig.OnChain.PoolSize))
	flags.Bool("no-cache", false, "do not persist fetched chain data in the work directory")
	flags.String("explorer-url", "",
		fmt.Sprintf("Etherscan-compatible API used to resolve contract creators (unless a config file is provided, default is %q)", defaultConfig.OnChain.ExplorerURL))
	flags.StringSlice("explorer-keys", []string{}, "API key(s) of the explorer, used in rotation")
	flags.String("dapp-table", "", "path to the CSV file mapping contract creators to application names")
	flags.Bool("debug", false, "log at debug level")
}

// updateProjectConfigWithOnChainFlags will update the given projectConfig with any on-chain CLI arguments that were
// provided to a command
func updateProjectConfigWithOnChainFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
	var err error

	// Update work directory
	if cmd.Flags().Changed("work-dir") {
		projectConfig.WorkDirectory, err = cmd.Flags().GetString("work-dir")
		if err != nil {
			return err
		}
	}

	// Update the rpc endpoint
	if cmd.Flags().Changed("rpc-url") {
		projectConfig.OnChain.RPCAddress, err = cmd.Flags().GetString("rpc-url")
		if err != nil {
			return err
		}
	}

	// Update the chain id
	if cmd.Flags().Changed("chain-id") {
		projectConfig.OnChain.ChainID, err = cmd.Flags().GetUint64("chain-id")
		if err != nil {
			return err
		}
	}

	// Update the pool size
	if cmd.Flags().Changed("pool-size") {
		projectConfig.OnChain.PoolSize, err = cmd.Flags().GetUint("pool-size")
		if err != nil {
			return err
		}
	}

	// Update cache enablement
	if cmd.Flags().Changed("no-cache") {
		noCache, err := cmd.Flags().GetBool("no-cache")
		if err != nil {
			return err
		}
		projectConfig.OnChain.CacheEnabled = !noCache
	}

	// Update the explorer
	if cmd.Flags().Changed("explorer-url") {
		projectConfig.OnChain.ExplorerURL, err = cmd.Flags().GetString("explorer-url")
		if err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("explorer-keys") {
		projectConfig.OnChain.ExplorerAPIKeys, err = cmd.Flags().GetStringSlice("explorer-keys")
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

	// Update the log level
	if cmd.Flags().Changed("debug") {
		debug, err := cmd.Flags().GetBool("debug")
		if err != nil {
			return err
		}
		if debug {
			projectConfig.Logging.Level = zerolog.DebugLevel
		}
	}
	return nil
}

// setupLogging replaces the global logger with one following the logging configuration. The returned function closes
// the log file, if one was created.
func setupLogging(loggingConfig config.LoggingConfig) (func(), error) {
	writers := make([]io.Writer, 0, 1)
	closeLog := func() {}
	if loggingConfig.LogDirectory != "" {
		logFile, err := utils.CreateFile(loggingConfig.LogDirectory, fmt.Sprintf("crossguard-%d.log", time.Now().Unix()))
		if err != nil {
			return nil, err
		}
		writers = append(writers, logFile)
		closeLog = func() {
			_ = logFile.Close()
		}
	}
	logging.GlobalLogger = logging.NewLogger(loggingConfig.Level, loggingConfig.EnableConsoleLogging, writers...)
	return closeLog, nil
}

// newDataProvider creates the provider of chain state at block. Without an rpc endpoint, runs start on an empty
// state. The returned function releases the provider.
func newDataProvider(ctx context.Context, projectConfig *config.ProjectConfig, block uint64) (chain.DataProvider, func(), error) {
	if projectConfig.OnChain.RPCAddress == "" {
		cmdLogger.Warn("No rpc endpoint was provided, executing on an empty state")
		return chain.NewEmptyProvider(block), func() {}, nil
	}

	var explorer *chain.EtherscanClient
	if projectConfig.OnChain.ExplorerURL != "" {
		explorer = chain.NewEtherscanClient(projectConfig.OnChain.ExplorerURL, projectConfig.OnChain.ExplorerAPIKeys)
	}
	provider, err := chain.NewRPCProvider(ctx, chain.RPCProviderConfig{
		URL:          projectConfig.OnChain.RPCAddress,
		PoolSize:     projectConfig.OnChain.PoolSize,
		ForkBlock:    block,
		CacheEnabled: projectConfig.OnChain.CacheEnabled,
		WorkDir:      projectConfig.WorkDirectory,
		Explorer:     explorer,
	})
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := provider.Close(); err != nil {
			cmdLogger.Warn("Failed to close the chain data provider", err)
		}
	}
	return provider, release, nil
}

// loadDappTable reads the dapp table of the project. Without a table, every contract is attributed by its creator only.
func loadDappTable(projectConfig *config.ProjectConfig) (*dapp.DappInfo, error) {
	if projectConfig.OnChain.DappTablePath == "" {
		cmdLogger.Warn("No dapp table was provided, contracts will only be compared by creator")
		return dapp.NewDappInfo(nil), nil
	}
	table, err := dapp.LoadDappInfo(projectConfig.OnChain.DappTablePath)
	if err != nil {
		return nil, err
	}
	cmdLogger.Info("Loaded ", table.Len(), " application creators from ", colors.Bold, projectConfig.OnChain.DappTablePath, colors.Reset)
	return table, nil
}
