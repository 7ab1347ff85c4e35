package onchain

import (
	"github.com/crytic/crossguard/chain"
	"github.com/crytic/crossguard/evm"
	"github.com/crytic/crossguard/host"
	"github.com/crytic/crossguard/logging"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/vm"
	mapset "github.com/deckarep/golang-set/v2"
)

// Observer lazily pulls historical chain state into a host. Storage slots, balances and code are fetched from the
// provider at the state block the first time the executing code touches them.
type Observer struct {
	host.BaseObserver

	provider chain.DataProvider
	block    uint64

	// fetched holds the addresses whose code has been requested, including those without code.
	fetched mapset.Set[common.Address]

	logger *logging.Logger
}

// NewObserver creates an Observer reading state at block from provider.
func NewObserver(provider chain.DataProvider, block uint64) *Observer {
	return &Observer{
		provider: provider,
		block:    block,
		fetched:  mapset.NewThreadUnsafeSet[common.Address](),
		logger:   logging.GlobalLogger.NewSubLogger("module", logging.CHAIN_SERVICE),
	}
}

// Block returns the block state is read at.
func (o *Observer) Block() uint64 {
	return o.block
}

// OnStep fetches whatever state the upcoming instruction reads and is not known to the host yet.
func (o *Observer) OnStep(interp *evm.Interpreter, h *host.FuzzHost) {
	stack := interp.Stack
	switch interp.Opcode() {
	case vm.SLOAD:
		if stack.Len() < 1 {
			return
		}
		addr := interp.Contract.Address
		slot := stack.Back(0)
		if _, ok := h.Journal().Get(addr, slot); !ok {
			h.SetNextSlot(o.provider.GetContractSlot(addr, slot, o.block))
		}
	case vm.BALANCE:
		if stack.Len() >= 1 {
			o.loadBalance(h, evm.WordToAddress(stack.Back(0)))
		}
	case vm.SELFBALANCE:
		o.loadBalance(h, interp.Contract.Address)
	case vm.EXTCODESIZE, vm.EXTCODEHASH, vm.EXTCODECOPY:
		if stack.Len() >= 1 {
			o.loadCode(h, evm.WordToAddress(stack.Back(0)))
		}
	case vm.CALL, vm.CALLCODE, vm.DELEGATECALL, vm.STATICCALL:
		if stack.Len() >= 2 {
			o.loadCode(h, evm.WordToAddress(stack.Back(1)))
		}
	}
}

// OnGetAdditionalInformation fetches the balances of both parties of a value transfer.
func (o *Observer) OnGetAdditionalInformation(_ *evm.Interpreter, h *host.FuzzHost, ctx *evm.CallContext) {
	o.loadBalance(h, ctx.Caller)
	o.loadBalance(h, ctx.Address)
}

// OnInsert traces code installs.
func (o *Observer) OnInsert(_ *host.FuzzHost, addr common.Address, code []byte) {
	o.logger.Trace("Installed ", len(code), " bytes of code at ", addr.Hex())
}

func (o *Observer) loadBalance(h *host.FuzzHost, addr common.Address) {
	if _, ok := h.KnownBalance(addr); ok {
		return
	}
	h.SetBalance(addr, o.provider.GetContractBalance(addr, o.block))
}

// loadCode queues the on-chain code of addr for installation and resolves its application identity.
func (o *Observer) loadCode(h *host.FuzzHost, addr common.Address) {
	if h.HasCode(addr) || h.IsPrecompile(addr) || !o.fetched.Add(addr) {
		return
	}
	code := o.provider.GetContractCode(addr)
	if len(code) > 0 {
		h.QueueCode(addr, code)
	}
	info := h.Resolver().Resolve(addr)
	o.logger.Debug("Loaded ", addr.Hex(), " from chain (", info.String(), ")")
}

// LoadContract installs the on-chain code of addr right away and resolves its application identity. It is used for
// the contracts a run starts in, which no executing instruction refers to before they run.
func (o *Observer) LoadContract(h *host.FuzzHost, addr common.Address) {
	if h.HasCode(addr) || h.IsPrecompile(addr) || !o.fetched.Add(addr) {
		return
	}
	code := o.provider.GetContractCode(addr)
	if len(code) > 0 {
		h.SetCode(addr, code)
	} else {
		o.logger.Warn("No code found at ", addr.Hex(), " at block ", o.block)
	}
	h.Resolver().Resolve(addr)
}
