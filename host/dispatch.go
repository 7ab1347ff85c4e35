package host

import (
	"bytes"

	"github.com/crytic/crossguard/dapp"
	"github.com/crytic/crossguard/evm"
	"github.com/crytic/crossguard/logging"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	mapset "github.com/deckarep/golang-set/v2"
)

// Call intercepts a sub-call of interp. Precompiles are answered directly. Other calls are checked for the victim
// calling back into the target, then dispatched by application boundary.
func (h *FuzzHost) Call(inputs *evm.CallInputs, interp *evm.Interpreter) (evm.InstructionResult, []byte) {
	precompile := h.IsPrecompile(inputs.Contract)
	if !precompile {
		target := inputs.Contract
		if inputs.Context.Scheme == evm.DelegateCall {
			target = inputs.Context.CodeAddress
		}
		h.fromArgs = (h.callDepth > 0 && h.inputContainsAddress(interp.Contract.Input, target, interp.Contract.CodeAddress)) ||
			target == interp.Contract.Caller || target == h.env.Tx.Caller

		if h.executingVictim && target == h.origin && evm.FunctionSelector(inputs.Input) == h.dependentSelector {
			h.logger.Debug("Victim called ", target.Hex(), " with the dependent selector ", hexutil.Encode(h.dependentSelector[:]))
			h.journal.BugHit = true
			return evm.ImplicitBugHit, nil
		}
	}

	var (
		result evm.InstructionResult
		output []byte
	)
	h.callDepth++
	if precompile {
		result, output = h.CallPrecompile(inputs)
	} else {
		result, output = h.dispatchCall(inputs, interp)
	}
	h.callDepth--

	h.InvokeReturnObservers(interp, result, output)
	return result, output
}

// ResolveParties returns the application identities of the caller, the callee and the code owner of a call.
func (h *FuzzHost) ResolveParties(ctx *evm.CallContext) (from, to, codeOwner dapp.CreatorDapp) {
	return h.resolver.Resolve(ctx.Caller), h.resolver.Resolve(ctx.Address), h.resolver.Resolve(ctx.CodeAddress)
}

// NewChildInterpreter builds the interpreter of a sub-call of interp over the code registered at the code address.
func (h *FuzzHost) NewChildInterpreter(inputs *evm.CallInputs, interp *evm.Interpreter) *evm.Interpreter {
	contract := evm.NewContract(inputs.Input, h.Code(inputs.Context.CodeAddress), &inputs.Context)
	child := evm.NewInterpreter(contract, inputs.GasLimit, inputs.IsStatic)
	child.Depth = interp.Depth + 1
	return child
}

// enterCall points the environment at the call and clears the taint sets. It returns the snapshot restoring them.
func (h *FuzzHost) enterCall(inputs *evm.CallInputs) *Snapshot {
	saved := h.shallowSnapshot()
	h.env.Tx.To = inputs.Context.Address
	h.env.Tx.Value = valueOrZero(inputs.Context.ApparentValue)
	h.env.Tx.Data = append([]byte(nil), inputs.Input...)
	h.compareTaint = mapset.NewThreadUnsafeSet[common.Address]()
	h.sloadTaint = mapset.NewThreadUnsafeSet[common.Address]()
	return saved
}

// dispatchCall runs a sub-call either directly or, at the first application boundary crossing, through the
// cross-application path. The environment, taint sets and session marker are restored on every exit.
func (h *FuzzHost) dispatchCall(inputs *evm.CallInputs, interp *evm.Interpreter) (evm.InstructionResult, []byte) {
	h.callCount++
	from, to, codeOwner := h.ResolveParties(&inputs.Context)

	saved := h.enterCall(inputs)
	wasInSession := h.inSession
	defer func() {
		h.restore(saved)
		h.inSession = wasInSession
	}()

	child := h.NewChildInterpreter(inputs, interp)

	if value := inputs.Context.ApparentValue; value != nil && !value.IsZero() {
		h.InvokeAdditionalInformation(interp, &inputs.Context)
		if !h.Transfer(inputs.Transfer.Source, inputs.Transfer.Target, inputs.Transfer.Value) {
			return evm.OutOfFund, nil
		}
	}

	if h.inSession || h.journal.BugHit || dapp.IsSameApplication(from, to, codeOwner, inputs.Context.Scheme) {
		result := child.Run(h.dispatch)
		return result, child.ReturnValue()
	}
	return h.crossApplicationCall(inputs, child)
}

// crossApplicationCall runs the first call crossing an application boundary, then replays the victim in isolation
// unless replays are ruled out. The call's result becomes a leak if the replay proved one.
func (h *FuzzHost) crossApplicationCall(inputs *evm.CallInputs, child *evm.Interpreter) (evm.InstructionResult, []byte) {
	h.inSession = true
	h.entryFunction = evm.FunctionSelector(inputs.Input)

	result := child.Run(h.dispatch)
	output := child.ReturnValue()

	if !result.IsSuccess() || h.replayDisabled || inputs.GasLimit == evm.CallStipend || h.victim == nil || len(h.victim.Input) == 0 {
		h.replayDisabled = true
		return result, output
	}

	leaked := h.replayVictim()
	h.replayDisabled = true
	h.fromArgs = false
	if leaked {
		h.logger.Info("Victim ", h.victim.Hash.Hex(), " was redirected through ", inputs.Contract.Hex(),
			logging.StructuredLogInfo{"entry": hexutil.Encode(h.entryFunction[:]), "depth": h.callDepth})
		return evm.CrossContractControlLeak, output
	}
	return result, output
}

// replayVictim runs the victim transaction against an empty ledger and journal, then restores the host. It reports
// whether the victim was driven into the dependent function.
func (h *FuzzHost) replayVictim() bool {
	h.replayCount++
	victim := h.victim
	bugBefore := h.journal.BugHit

	saved := h.deepSnapshot()
	wasExecutingVictim := h.executingVictim
	defer func() {
		h.restore(saved)
		h.executingVictim = wasExecutingVictim
	}()
	h.resetForVictim()
	h.executingVictim = true

	h.env.Block.Number = victim.BlockNumber
	h.env.Block.Timestamp = victim.Timestamp
	h.env.Block.Hash = victim.BlockHash
	h.env.Tx.Caller = victim.From
	h.env.Tx.To = victim.To
	h.env.Tx.Value = victim.GetValue()
	h.env.Tx.Data = append([]byte(nil), victim.Input...)

	h.logger.Debug("Replaying victim ", victim.String())
	ctx := evm.CallContext{
		Address:       victim.To,
		Caller:        victim.From,
		CodeAddress:   victim.To,
		ApparentValue: victim.GetValue(),
		Scheme:        evm.Call,
	}
	if !h.Transfer(victim.From, victim.To, ctx.ApparentValue) {
		h.logger.Debug("Victim replay ran out of funds")
		return false
	}

	interp := evm.NewInterpreter(evm.NewContract(victim.Input, h.Code(victim.To), &ctx), evm.DefaultGasLimit, false)
	result := interp.Run(h.dispatch)
	h.logger.Debug("Victim replay finished with ", result.String())

	return result == evm.CrossContractControlLeak || result == evm.ImplicitBugHit || (!bugBefore && h.journal.BugHit)
}

// inputContainsAddress reports whether addr looks like it was supplied through a recorded transaction input: it
// appears in input, the calling frame's call data, but not in the caller's code, and some recorded input holds it without it having been compared
// or read from storage.
func (h *FuzzHost) inputContainsAddress(input []byte, addr common.Address, callerCodeAddr common.Address) bool {
	if !bytes.Contains(input, addr[:]) {
		return false
	}
	if bytes.Contains(h.Code(callerCodeAddr).Bytes(), addr[:]) {
		return false
	}
	for _, record := range h.inputRecord {
		if !bytes.Contains(record, addr[:]) {
			continue
		}
		if h.compareTaint.Contains(addr) || h.sloadTaint.Contains(addr) {
			continue
		}
		return true
	}
	return false
}
