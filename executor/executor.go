package executor

import (
	"context"
	"time"

	"github.com/crytic/crossguard/chain"
	"github.com/crytic/crossguard/dapp"
	"github.com/crytic/crossguard/evm"
	"github.com/crytic/crossguard/host"
	"github.com/crytic/crossguard/logging"
	"github.com/crytic/crossguard/onchain"
	"github.com/crytic/crossguard/types"
	"github.com/crytic/crossguard/utils"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// Detection describes a detection run: the target transaction is re-executed and the victim transaction is replayed
// at its first cross-application call.
type Detection struct {
	Target *types.Transaction
	Victim *types.Transaction

	// DependentSelector is the selector of the target contract function the victim must not be driven into.
	DependentSelector [4]byte
	// DependentFunction names the dependent function in findings.
	DependentFunction string

	// ChainID is exposed to the executed code.
	ChainID uint64
}

// Result describes the outcome of a detection run.
type Result struct {
	// Result is the result the target transaction finished with.
	Result evm.InstructionResult
	// Finding is set if a leak was detected.
	Finding *types.Finding
	// ReplayCount is the number of victim replays performed.
	ReplayCount int
	// CallCount is the number of dispatched calls.
	CallCount int
	// UnknownContracts are the contracts reached by the run that could not be attributed to an application.
	UnknownContracts []common.Address
}

// Executor runs a Detection on a FuzzHost backed by a chain.DataProvider.
type Executor struct {
	detection Detection
	provider  chain.DataProvider
	table     *dapp.DappInfo

	// runID identifies the findings of this Executor.
	runID string

	// host is the host of the latest run.
	host *host.FuzzHost

	// Events describes the event system for the Executor.
	Events ExecutorEvents

	logger *logging.Logger
}

// NewExecutor creates an Executor for detection. State is read from provider at the block preceding the target
// transaction, and contracts are attributed to applications through table.
func NewExecutor(detection Detection, provider chain.DataProvider, table *dapp.DappInfo) (*Executor, error) {
	if detection.Target == nil || detection.Victim == nil {
		return nil, errors.Errorf("detection requires both a target and a victim transaction")
	}
	if provider == nil {
		provider = chain.NewEmptyProvider(detection.Target.StateBlock())
	}
	return &Executor{
		detection: detection,
		provider:  provider,
		table:     table,
		runID:     uuid.NewString(),
		logger:    logging.GlobalLogger.NewSubLogger("module", logging.DETECTION_SERVICE),
	}, nil
}

// RunID returns the identifier stamped on the findings of this Executor.
func (e *Executor) RunID() string {
	return e.runID
}

// Host returns the host of the latest run, or nil if Run was not called.
func (e *Executor) Host() *host.FuzzHost {
	return e.host
}

// Run re-executes the target transaction. A detected leak is published through Events.LeakDetected before Run
// returns. An error is returned if ctx is done or a subscriber fails.
func (e *Executor) Run(ctx context.Context) (*Result, error) {
	if err := utils.ContextError(ctx); err != nil {
		return nil, err
	}

	target, victim := e.detection.Target, e.detection.Victim
	block := target.StateBlock()
	e.logger.Info("Executing target ", target.String(), " against victim ", victim.String())

	h := host.NewFuzzHost(dapp.NewResolver(e.provider, e.table))
	observer := onchain.NewObserver(e.provider, block)
	h.AddObserver(observer)
	h.SetTarget(target.To, e.detection.DependentSelector)
	h.SetVictim(victim)
	h.RecordInput(target.Input)
	h.RecordInput(victim.Input)
	h.SetEnv(transactionEnv(target, e.detection.ChainID))
	e.host = h

	// Neither entry contract is reached through an instruction, so their code is installed up front
	observer.LoadContract(h, target.To)
	observer.LoadContract(h, victim.To)

	callCtx := evm.CallContext{
		Address:       target.To,
		Caller:        target.From,
		CodeAddress:   target.To,
		ApparentValue: target.GetValue(),
		Scheme:        evm.Call,
	}
	interp := evm.NewInterpreter(evm.NewContract(target.Input, h.Code(target.To), &callCtx), evm.DefaultGasLimit, false)

	result := &Result{}
	if !callCtx.ApparentValue.IsZero() {
		h.InvokeAdditionalInformation(interp, &callCtx)
		if !h.Transfer(target.From, target.To, callCtx.ApparentValue) {
			e.logger.Warn("Target sender ", target.From.Hex(), " cannot afford the transaction value")
			result.Result = evm.OutOfFund
			return result, nil
		}
	}

	result.Result = interp.Run(h)
	result.ReplayCount = h.ReplayCount()
	result.CallCount = h.CallCount()
	result.UnknownContracts = unknownContracts(h)
	e.logger.Info("Target finished with ", result.Result.String(), logging.StructuredLogInfo{
		"calls":    result.CallCount,
		"replays":  result.ReplayCount,
		"bugHit":   h.BugHit(),
		"fromArgs": h.FromArgs(),
	})

	if result.Result != evm.CrossContractControlLeak {
		return result, nil
	}

	entry := h.EntryFunction()
	result.Finding = &types.Finding{
		RunID:             e.runID,
		DetectedAt:        time.Now().UTC(),
		TargetTxHash:      target.Hash,
		TargetContract:    target.To,
		TargetFunction:    functionName(target),
		VictimTxHash:      victim.Hash,
		VictimContract:    victim.To,
		VictimFunction:    functionName(victim),
		DependentFunction: e.detection.DependentFunction,
		DependentSelector: hexutil.Encode(e.detection.DependentSelector[:]),
		EntryFunction:     hexutil.Encode(entry[:]),
		BlockNumber:       target.BlockNumber,
	}
	e.logger.Info("Control leak detected: ", result.Finding.String())

	err := e.Events.LeakDetected.Publish(LeakDetectedEvent{Executor: e, Finding: result.Finding})
	if err != nil {
		return result, errors.Wrap(err, "could not handle detected leak")
	}
	return result, nil
}

// transactionEnv returns the environment tx executed in.
func transactionEnv(tx *types.Transaction, chainID uint64) *evm.Env {
	env := evm.NewEnv()
	env.ChainID = uint256.NewInt(chainID)
	env.Block.Number = tx.BlockNumber
	env.Block.Timestamp = tx.Timestamp
	env.Block.Hash = tx.BlockHash
	env.Tx.Caller = tx.From
	env.Tx.To = tx.To
	env.Tx.Value = tx.GetValue()
	env.Tx.Data = append([]byte(nil), tx.Input...)
	return env
}

// functionName returns the recorded function name of tx, or its selector if there is none.
func functionName(tx *types.Transaction) string {
	if tx.FunctionName != "" {
		return tx.FunctionName
	}
	return tx.SelectorHex()
}

// unknownContracts returns the unattributed addresses of h that hold code.
func unknownContracts(h *host.FuzzHost) []common.Address {
	contracts := make([]common.Address, 0)
	for _, addr := range h.Resolver().Unknown() {
		if h.HasCode(addr) {
			contracts = append(contracts, addr)
		}
	}
	return contracts
}
