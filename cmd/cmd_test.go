package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/crytic/crossguard/chain"
	"github.com/crytic/crossguard/config"
	"github.com/crytic/crossguard/dapp"
	"github.com/crytic/crossguard/executor"
	"github.com/crytic/crossguard/records"
	"github.com/crytic/crossguard/types"
	"github.com/crytic/crossguard/utils/testutils"
	"github.com/crytic/medusa-geth/common"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFlagCommand returns a command carrying the flags of the detect command, so that tests do not share flag state
func newFlagCommand(t *testing.T, args ...string) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	addTransactionFlags(cmd.Flags(), "target", "target")
	addTransactionFlags(cmd.Flags(), "victim", "victim")
	cmd.Flags().String("dependent-signature", "", "")
	cmd.Flags().String("dependent-name", "", "")
	addOnChainFlags(cmd.Flags(), config.GetDefaultProjectConfig())
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestUpdateProjectConfigWithDetectFlags(t *testing.T) {
	cmd := newFlagCommand(t,
		"--target-to", "0x0000000000000000000000000000000000001001",
		"--target-block", "100",
		"--target-value", "1e3",
		"--target-reverted",
		"--victim-to", "0x0000000000000000000000000000000000002001",
		"--victim-input", "0x22222222",
		"--dependent-signature", "transfer(address,uint256)",
		"--rpc-url", "http://localhost:8545",
		"--pool-size", "8",
		"--no-cache",
		"--explorer-keys", "a,b",
		"--debug",
	)

	projectConfig := config.GetDefaultProjectConfig()
	require.NoError(t, updateProjectConfigWithDetectFlags(cmd, projectConfig))

	target := projectConfig.Detection.Target
	assert.Equal(t, "0x0000000000000000000000000000000000001001", target.To)
	assert.Equal(t, uint64(100), target.BlockNumber)
	assert.Equal(t, "1000", target.Value.String())
	assert.False(t, target.IsSuccess)
	assert.True(t, projectConfig.Detection.Victim.IsSuccess)
	assert.Equal(t, "0x22222222", projectConfig.Detection.Victim.Input)
	assert.Equal(t, "transfer(address,uint256)", projectConfig.Detection.DependentName())

	assert.Equal(t, "http://localhost:8545", projectConfig.OnChain.RPCAddress)
	assert.Equal(t, uint(8), projectConfig.OnChain.PoolSize)
	assert.False(t, projectConfig.OnChain.CacheEnabled)
	assert.Equal(t, []string{"a", "b"}, projectConfig.OnChain.ExplorerAPIKeys)
	assert.Equal(t, zerolog.DebugLevel, projectConfig.Logging.Level)

	// Untouched settings keep their defaults
	assert.Equal(t, uint64(1), projectConfig.OnChain.ChainID)
	assert.NoError(t, projectConfig.ValidateDetection())
}

func TestUpdateTransactionWithInvalidValue(t *testing.T) {
	cmd := newFlagCommand(t, "--target-value", "1.5")
	var tx config.TransactionConfig
	assert.Error(t, updateTransactionWithFlags(cmd, "target", &tx))
}

func TestLoadProjectConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.json")
	projectConfig := config.GetDefaultProjectConfig()
	projectConfig.WorkDirectory = "elsewhere"
	require.NoError(t, projectConfig.WriteToFile(path))

	// An explicit configuration file is read
	loaded, err := loadProjectConfig(newFlagCommand(t, "--config", path))
	require.NoError(t, err)
	assert.Equal(t, "elsewhere", loaded.WorkDirectory)

	// A missing explicit configuration file is an error
	_, err = loadProjectConfig(newFlagCommand(t, "--config", filepath.Join(dir, "missing.json")))
	assert.Error(t, err)

	// Without --config, the defaults are used until a crossguard.json exists in the working directory
	testutils.ExecuteInDirectory(t, dir, func() {
		loaded, err := loadProjectConfig(newFlagCommand(t))
		require.NoError(t, err)
		assert.Equal(t, config.GetDefaultProjectConfig().WorkDirectory, loaded.WorkDirectory)

		require.NoError(t, projectConfig.WriteToFile(config.DefaultProjectConfigFilename))
		loaded, err = loadProjectConfig(newFlagCommand(t))
		require.NoError(t, err)
		assert.Equal(t, "elsewhere", loaded.WorkDirectory)
	})
}

func TestFilterTransactions(t *testing.T) {
	txs := []config.TransactionConfig{
		{Hash: "0x01"},
		{Hash: "0x02"},
		{Hash: "0x03"},
	}
	filtered := filterTransactions(txs, []string{"0x0000000000000000000000000000000000000000000000000000000000000003", "0x1"})
	require.Len(t, filtered, 2)
	assert.Equal(t, "0x01", filtered[0].Hash)
	assert.Equal(t, "0x03", filtered[1].Hash)
	assert.Empty(t, filterTransactions(txs, []string{"0x04"}))
}

func TestLoadDappTable(t *testing.T) {
	projectConfig := config.GetDefaultProjectConfig()
	table, err := loadDappTable(projectConfig)
	require.NoError(t, err)
	assert.Zero(t, table.Len())

	path := filepath.Join(t.TempDir(), "dapps.csv")
	require.NoError(t, os.WriteFile(path, []byte("0x00000000000000000000000000000000000000a1,lending\n"), 0644))
	projectConfig.OnChain.DappTablePath = path
	table, err = loadDappTable(projectConfig)
	require.NoError(t, err)
	name, ok := table.Lookup(common.HexToAddress("0xa1"))
	assert.True(t, ok)
	assert.Equal(t, "lending", name)

	projectConfig.OnChain.DappTablePath = filepath.Join(t.TempDir(), "missing.csv")
	_, err = loadDappTable(projectConfig)
	assert.Error(t, err)
}

func TestNewDataProviderWithoutEndpoint(t *testing.T) {
	provider, release, err := newDataProvider(context.Background(), config.GetDefaultProjectConfig(), 42)
	require.NoError(t, err)
	defer release()
	assert.Equal(t, uint64(42), provider.ForkBlock())
}

func TestReplayTransactionStoresResults(t *testing.T) {
	store, err := records.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	tx := &types.Transaction{
		Hash:        common.HexToHash("0xabc"),
		BlockNumber: 10,
		To:          common.HexToAddress("0x1001"),
		IsSuccess:   false,
	}
	var requestedBlock uint64
	released := false
	matched, err := replayTransaction(context.Background(), tx, store, func(block uint64) (*executor.ReplayExecutor, func(), error) {
		requestedBlock = block
		provider := chain.NewEmptyProvider(block)
		return executor.NewReplayExecutor(provider, dapp.NewDappInfo(nil), 1, true), func() { released = true }, nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(9), requestedBlock)
	assert.True(t, released)

	// Code-less receivers stop immediately, which does not match a reverted transaction
	assert.False(t, matched)
	record, err := store.ReplayRecord(tx.Hash)
	require.NoError(t, err)
	assert.Equal(t, tx.To, record.CallGraph.ContractAddress)

	verifications, err := store.Verifications()
	require.NoError(t, err)
	require.Len(t, verifications, 1)
	assert.Equal(t, "Stop", verifications[0].Result)
	assert.False(t, verifications[0].Matched())
}
