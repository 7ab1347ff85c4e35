package executor

import (
	"context"
	"testing"

	"github.com/crytic/crossguard/dapp"
	"github.com/crytic/crossguard/evm"
	"github.com/crytic/crossguard/replay"
	"github.com/crytic/crossguard/types"
	"github.com/crytic/crossguard/utils/testutils"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replayedTx(hash string, isSuccess bool) *types.Transaction {
	return &types.Transaction{
		Hash:        common.HexToHash(hash),
		BlockNumber: 50,
		From:        user,
		To:          targetAddr,
		Input:       targetSelector[:],
		IsSuccess:   isSuccess,
	}
}

func TestReplayExecutorRecordsCallGraph(t *testing.T) {
	provider := newLeakyChain(false)
	provider.code[hookAddr] = testutils.NewProgram().Sload(0).Op(vm.POP).Sstore(0, 1).Op(vm.STOP).Bytes()
	r := NewReplayExecutor(provider, dappTable(), 1, true)

	var replayed []*ReplayResult
	r.Events.TransactionReplayed.Subscribe(func(event TransactionReplayedEvent) error {
		replayed = append(replayed, event.Result)
		return nil
	})

	result, err := r.Run(context.Background(), replayedTx("0x10", true))
	require.NoError(t, err)
	require.Len(t, replayed, 1)
	assert.Equal(t, result, replayed[0])
	assert.Equal(t, evm.Stop, result.Result)

	root := result.Record.CallGraph
	assert.Equal(t, targetAddr, root.ContractAddress)
	assert.Equal(t, replay.RootLabel, root.DappName)
	assert.Equal(t, uint64(1), root.Write)
	require.Len(t, root.Children, 1)
	hook := root.Children[0]
	assert.Equal(t, hookAddr, hook.ContractAddress)
	assert.False(t, hook.IsSame)
	assert.Equal(t, uint64(1), hook.Read)
	assert.Equal(t, uint64(1), hook.Write)

	key := replay.RecordKey{Dapp: hookAddr.Hex() + dapp.UnknownLabel, Contract: hookAddr, Selector: [4]byte{0x33, 0x33, 0x33, 0x33}}
	assert.Equal(t, uint64(1), result.Records.Invokes(key))
	assert.Equal(t, []common.Address{hookAddr}, result.UnknownContracts)

	require.NotNil(t, result.Verification)
	assert.True(t, result.Verification.Matched())
	assert.Equal(t, "Stop", result.Verification.Result)
	assert.Equal(t, targetAddr, result.Verification.To)
}

func TestReplayExecutorVerificationMismatch(t *testing.T) {
	r := NewReplayExecutor(newLeakyChain(false), dappTable(), 1, true)
	result, err := r.Run(context.Background(), replayedTx("0x11", false))
	require.NoError(t, err)
	assert.True(t, result.Verification.ExecutedOK)
	assert.False(t, result.Verification.OnChainSuccess)
	assert.False(t, result.Verification.Matched())
}

func TestReplayExecutorWithoutVerification(t *testing.T) {
	r := NewReplayExecutor(newLeakyChain(false), dappTable(), 1, false)
	result, err := r.Run(context.Background(), replayedTx("0x12", true))
	require.NoError(t, err)
	assert.Nil(t, result.Verification)
}

func TestReplayExecutorValueTransfer(t *testing.T) {
	provider := newLeakyChain(false)
	provider.balances[user] = 3
	r := NewReplayExecutor(provider, dappTable(), 1, true)

	tx := replayedTx("0x13", true)
	tx.Value = uint256.NewInt(4)
	result, err := r.Run(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, evm.OutOfFund, result.Result)
	assert.False(t, result.Verification.Matched())
	assert.Empty(t, result.Record.CallGraph.Children)

	tx.Value = uint256.NewInt(3)
	result, err = r.Run(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, evm.Stop, result.Result)
	assert.True(t, result.Verification.Matched())
}

func TestReplayExecutorRunAll(t *testing.T) {
	r := NewReplayExecutor(newLeakyChain(false), dappTable(), 1, true)
	count := 0
	r.Events.TransactionReplayed.Subscribe(func(TransactionReplayedEvent) error {
		count++
		return nil
	})

	txs := []*types.Transaction{replayedTx("0x20", true), replayedTx("0x21", true)}
	results, err := r.RunAll(context.Background(), txs)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, count)
	assert.Equal(t, txs[1], results[1].Transaction)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err = r.RunAll(ctx, txs)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}
