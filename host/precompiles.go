package host

import (
	"github.com/crytic/crossguard/evm"
	"github.com/crytic/medusa-geth/common"
	gethvm "github.com/crytic/medusa-geth/core/vm"
)

// IsPrecompile reports whether addr is a precompiled contract.
func (h *FuzzHost) IsPrecompile(addr common.Address) bool {
	_, ok := gethvm.PrecompiledContractsCancun[addr]
	return ok
}

// CallPrecompile runs the precompiled contract at inputs.Contract.
func (h *FuzzHost) CallPrecompile(inputs *evm.CallInputs) (evm.InstructionResult, []byte) {
	precompile, ok := gethvm.PrecompiledContractsCancun[inputs.Contract]
	if !ok {
		return evm.PrecompileError, nil
	}
	if precompile.RequiredGas(inputs.Input) > inputs.GasLimit {
		return evm.OutOfGas, nil
	}
	output, err := precompile.Run(inputs.Input)
	if err != nil {
		h.logger.Trace("Precompile ", inputs.Contract.Hex(), " failed: ", err.Error())
		return evm.PrecompileError, nil
	}
	return evm.Return, output
}
