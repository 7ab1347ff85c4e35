package executor

import (
	"context"

	"github.com/crytic/crossguard/chain"
	"github.com/crytic/crossguard/dapp"
	"github.com/crytic/crossguard/evm"
	"github.com/crytic/crossguard/logging"
	"github.com/crytic/crossguard/onchain"
	"github.com/crytic/crossguard/replay"
	"github.com/crytic/crossguard/types"
	"github.com/crytic/crossguard/utils"
	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"
)

// ReplayResult describes the replay of one transaction.
type ReplayResult struct {
	// Transaction is the replayed transaction.
	Transaction *types.Transaction
	// Result is the result the replay finished with.
	Result evm.InstructionResult
	// Record holds the call graph and the inferred proxies.
	Record *replay.Record
	// Records holds the per-application storage and invocation counts.
	Records *replay.DappRecordData
	// Verification compares the replay with the on-chain outcome. It is nil unless verification is enabled.
	Verification *types.Verification
	// UnknownContracts are the contracts reached by the replay that could not be attributed to an application.
	UnknownContracts []common.Address
}

// ReplayExecutor replays historical transactions on ReplayHosts to record their call graphs.
type ReplayExecutor struct {
	provider chain.DataProvider
	table    *dapp.DappInfo
	chainID  uint64
	verify   bool

	// Events describes the event system for the ReplayExecutor.
	Events ReplayExecutorEvents

	logger *logging.Logger
}

// NewReplayExecutor creates a ReplayExecutor reading state from provider and attributing contracts through table.
// If verify is set, each replay is compared with the recorded on-chain outcome.
func NewReplayExecutor(provider chain.DataProvider, table *dapp.DappInfo, chainID uint64, verify bool) *ReplayExecutor {
	return &ReplayExecutor{
		provider: provider,
		table:    table,
		chainID:  chainID,
		verify:   verify,
		logger:   logging.GlobalLogger.NewSubLogger("module", logging.REPLAY_SERVICE),
	}
}

// Run replays tx on the state preceding its block and publishes the result through Events.TransactionReplayed.
func (r *ReplayExecutor) Run(ctx context.Context, tx *types.Transaction) (*ReplayResult, error) {
	if err := utils.ContextError(ctx); err != nil {
		return nil, err
	}

	block := tx.StateBlock()
	provider := r.provider
	if provider == nil {
		provider = chain.NewEmptyProvider(block)
	}
	r.logger.Info("Replaying ", tx.String())

	rh := replay.NewReplayHost(dapp.NewResolver(provider, r.table), provider, block, tx.To, tx.Selector())
	observer := onchain.NewObserver(provider, block)
	rh.AddObserver(observer)
	rh.RecordInput(tx.Input)
	rh.SetEnv(transactionEnv(tx, r.chainID))
	observer.LoadContract(rh.FuzzHost, tx.To)

	callCtx := evm.CallContext{
		Address:       tx.To,
		Caller:        tx.From,
		CodeAddress:   tx.To,
		ApparentValue: tx.GetValue(),
		Scheme:        evm.Call,
	}
	interp := evm.NewInterpreter(evm.NewContract(tx.Input, rh.Code(tx.To), &callCtx), evm.DefaultGasLimit, false)

	result := &ReplayResult{Transaction: tx}
	// Balances are read through the replay host so that both parties come from the chain
	rh.Balance(tx.From)
	rh.Balance(tx.To)
	if rh.Transfer(tx.From, tx.To, callCtx.ApparentValue) {
		result.Result = interp.Run(rh)
	} else {
		r.logger.Warn("Sender ", tx.From.Hex(), " cannot afford the value of ", tx.Hash.Hex())
		result.Result = evm.OutOfFund
	}

	result.Record = rh.Record()
	result.Records = rh.Records()
	result.UnknownContracts = unknownContracts(rh.FuzzHost)
	if r.verify {
		result.Verification = &types.Verification{
			TxHash:         tx.Hash,
			To:             tx.To,
			ExecutedOK:     result.Result.IsSuccess(),
			OnChainSuccess: tx.IsSuccess,
			Result:         result.Result.String(),
		}
		if !result.Verification.Matched() {
			r.logger.Warn("Replay of ", tx.Hash.Hex(), " finished with ", result.Result.String(),
				" but the transaction ", onChainOutcome(tx), " on-chain")
		}
	}
	r.logger.Info("Replay finished with ", result.Result.String(), logging.StructuredLogInfo{
		"nodes":   result.Record.CallGraph.Size(),
		"proxies": len(result.Record.DelegateCallRecord),
	})
	r.logger.Debug("Call graph of ", tx.Hash.Hex(), ":\n", result.Record.CallGraph.String())

	err := r.Events.TransactionReplayed.Publish(TransactionReplayedEvent{Result: result})
	if err != nil {
		return result, errors.Wrap(err, "could not handle replay result")
	}
	return result, nil
}

// RunAll replays txs in order. It stops at the first error.
func (r *ReplayExecutor) RunAll(ctx context.Context, txs []*types.Transaction) ([]*ReplayResult, error) {
	results := make([]*ReplayResult, 0, len(txs))
	for _, tx := range txs {
		result, err := r.Run(ctx, tx)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func onChainOutcome(tx *types.Transaction) string {
	if tx.IsSuccess {
		return "succeeded"
	}
	return "failed"
}
