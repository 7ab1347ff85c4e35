package replay

import (
	"github.com/crytic/crossguard/chain"
	"github.com/crytic/crossguard/dapp"
	"github.com/crytic/crossguard/evm"
	"github.com/crytic/crossguard/host"
	"github.com/crytic/crossguard/logging"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/holiman/uint256"
)

// ReplayHost executes historical transactions and records their call graph instead of looking for leaks. It shares
// the state handling of FuzzHost and replaces its call dispatch: every call is run as a plain call and becomes a
// node of the call graph, and calls leaving the root contract's application are counted per application.
type ReplayHost struct {
	*host.FuzzHost

	provider chain.DataProvider
	block    uint64

	rootDapp string
	root     *CallGraphNode
	current  *CallGraphNode
	records  *DappRecordData

	logger *logging.Logger
}

// NewReplayHost creates a host replaying a transaction that calls selector on root. Balances missing from the ledger
// are read from provider at block. A nil provider reads zero balances.
func NewReplayHost(resolver *dapp.Resolver, provider chain.DataProvider, block uint64, root common.Address, selector [4]byte) *ReplayHost {
	if provider == nil {
		provider = chain.NewEmptyProvider(block)
	}
	fuzzHost := host.NewFuzzHost(resolver)
	rootNode := NewCallGraphNode(root, RootLabel, true, selector)
	r := &ReplayHost{
		FuzzHost: fuzzHost,
		provider: provider,
		block:    block,
		rootDapp: fuzzHost.Resolver().Resolve(root).Dapp,
		root:     rootNode,
		current:  rootNode,
		records:  NewDappRecordData(),
		logger:   logging.GlobalLogger.NewSubLogger("module", logging.REPLAY_SERVICE),
	}
	fuzzHost.SetDispatchHost(r)
	return r
}

// Root returns the root of the call graph.
func (r *ReplayHost) Root() *CallGraphNode {
	return r.root
}

// Records returns the per-application records.
func (r *ReplayHost) Records() *DappRecordData {
	return r.records
}

// RootDapp returns the application label of the root contract.
func (r *ReplayHost) RootDapp() string {
	return r.rootDapp
}

// Record returns the persisted form of the replay.
func (r *ReplayHost) Record() *Record {
	return &Record{
		DelegateCallRecord: r.records.ContractToLogic(),
		CallGraph:          r.root,
	}
}

// Step runs the observers and counts storage accesses against the current node and application.
func (r *ReplayHost) Step(interp *evm.Interpreter) {
	r.InvokeStepObservers(interp)

	switch interp.Opcode() {
	case vm.SSTORE:
		r.current.AddWrite()
		r.records.AddWrite(r.Resolver().Resolve(interp.Contract.Address), evm.FunctionSelector(interp.Contract.Input))
	case vm.SLOAD:
		r.current.AddRead()
		r.records.AddRead(r.Resolver().Resolve(interp.Contract.Address), evm.FunctionSelector(interp.Contract.Input))
	}
}

// Balance returns the ledger balance of addr, reading and caching it from the chain on a miss.
func (r *ReplayHost) Balance(addr common.Address) *uint256.Int {
	if balance, ok := r.KnownBalance(addr); ok {
		return balance
	}
	balance := r.provider.GetContractBalance(addr, r.block)
	r.SetBalance(addr, balance)
	return new(uint256.Int).Set(balance)
}

// Call runs a sub-call as a plain call and records it in the call graph.
func (r *ReplayHost) Call(inputs *evm.CallInputs, interp *evm.Interpreter) (evm.InstructionResult, []byte) {
	r.AddCallDepth()

	target := inputs.Contract
	selector := evm.FunctionSelector(inputs.Input)
	info := r.Resolver().Resolve(target)
	same := !info.IsUnknown() && info.Dapp == r.rootDapp

	// A delegatecall forwarding the selector it was called with is treated as a proxy
	if inputs.Context.Scheme == evm.DelegateCall && evm.FunctionSelector(interp.Contract.Input) == selector {
		r.records.AddDappContract(interp.Contract.Address, target)
		r.logger.Debug("Inferred proxy ", interp.Contract.Address.Hex(), " for logic contract ", target.Hex())
	}

	var (
		result evm.InstructionResult
		output []byte
	)
	if r.IsPrecompile(target) {
		result, output = r.CallPrecompile(inputs)
	} else {
		if !same {
			r.records.AddInvoke(info, selector)
		}
		parent := r.current
		r.current = NewCallGraphNode(target, info.Dapp, same, selector)
		result, output = r.replayCall(inputs, interp)
		parent.AddChild(r.current)
		r.current = parent
	}

	r.SubCallDepth()
	r.InvokeReturnObservers(interp, result, output)
	return result, output
}

// replayCall runs a sub-call without any application boundary handling. The environment is restored on return.
func (r *ReplayHost) replayCall(inputs *evm.CallInputs, interp *evm.Interpreter) (evm.InstructionResult, []byte) {
	saved := r.Env().Clone()
	defer r.SetEnv(saved)

	env := r.Env()
	env.Tx.To = inputs.Context.Address
	env.Tx.Value = new(uint256.Int)
	if inputs.Context.ApparentValue != nil {
		env.Tx.Value.Set(inputs.Context.ApparentValue)
	}
	env.Tx.Data = append([]byte(nil), inputs.Input...)

	child := r.NewChildInterpreter(inputs, interp)
	if value := inputs.Context.ApparentValue; value != nil && !value.IsZero() {
		r.InvokeAdditionalInformation(interp, &inputs.Context)
		r.Balance(inputs.Transfer.Source)
		r.Balance(inputs.Transfer.Target)
		if !r.Transfer(inputs.Transfer.Source, inputs.Transfer.Target, inputs.Transfer.Value) {
			return evm.OutOfFund, nil
		}
	}

	result := child.Run(r)
	return result, child.ReturnValue()
}

// Record is the persisted outcome of a replayed transaction.
type Record struct {
	// DelegateCallRecord maps proxies to the logic contracts they delegate to.
	DelegateCallRecord map[common.Address]common.Address `json:"delegatecall_record"`
	CallGraph          *CallGraphNode                    `json:"call_graph"`
}
