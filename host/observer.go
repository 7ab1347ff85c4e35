package host

import (
	"github.com/crytic/crossguard/evm"
	"github.com/crytic/medusa-geth/common"
)

// Observer is middleware installed into a host. Observers run in installation order.
type Observer interface {
	// OnStep runs before each instruction, ahead of the host's own step logic.
	OnStep(interp *evm.Interpreter, h *FuzzHost)
	// OnReturn runs after every sub-call returned to interp.
	OnReturn(interp *evm.Interpreter, h *FuzzHost, result evm.InstructionResult, output []byte)
	// OnGetAdditionalInformation runs before a value transfer, so observers can supply the balances of the parties.
	OnGetAdditionalInformation(interp *evm.Interpreter, h *FuzzHost, ctx *evm.CallContext)
	// OnInsert runs whenever code is registered under an address.
	OnInsert(h *FuzzHost, addr common.Address, code []byte)
}

// BaseObserver implements every Observer hook as a no-op. Observers embed it and override the hooks they need.
type BaseObserver struct{}

func (BaseObserver) OnStep(*evm.Interpreter, *FuzzHost) {}

func (BaseObserver) OnReturn(*evm.Interpreter, *FuzzHost, evm.InstructionResult, []byte) {}

func (BaseObserver) OnGetAdditionalInformation(*evm.Interpreter, *FuzzHost, *evm.CallContext) {}

func (BaseObserver) OnInsert(*FuzzHost, common.Address, []byte) {}

// AddObserver appends o to the observer pipeline.
func (h *FuzzHost) AddObserver(o Observer) {
	h.observers = append(h.observers, o)
}

// Observers returns the installed observers.
func (h *FuzzHost) Observers() []Observer {
	return h.observers
}

// InvokeStepObservers runs every observer's OnStep, then installs any code queued by them.
func (h *FuzzHost) InvokeStepObservers(interp *evm.Interpreter) {
	for _, o := range h.observers {
		o.OnStep(interp, h)
	}
	h.applyPendingCode()
}

// InvokeReturnObservers runs every observer's OnReturn.
func (h *FuzzHost) InvokeReturnObservers(interp *evm.Interpreter, result evm.InstructionResult, output []byte) {
	for _, o := range h.observers {
		o.OnReturn(interp, h, result, output)
	}
}

// InvokeAdditionalInformation runs every observer's OnGetAdditionalInformation.
func (h *FuzzHost) InvokeAdditionalInformation(interp *evm.Interpreter, ctx *evm.CallContext) {
	for _, o := range h.observers {
		o.OnGetAdditionalInformation(interp, h, ctx)
	}
}
