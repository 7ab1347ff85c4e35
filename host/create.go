package host

import (
	"github.com/crytic/crossguard/evm"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/crypto"
	"github.com/holiman/uint256"
)

// Create derives the new contract address, runs the init code and registers its output as the contract code. The
// output is registered even if the init code failed.
func (h *FuzzHost) Create(inputs *evm.CreateInputs, interp *evm.Interpreter) (evm.InstructionResult, *common.Address, []byte) {
	var addr common.Address
	switch inputs.Scheme {
	case evm.Create2:
		salt := new(uint256.Int)
		if inputs.Salt != nil {
			salt.Set(inputs.Salt)
		}
		addr = crypto.CreateAddress2(inputs.Caller, salt.Bytes32(), crypto.Keccak256(inputs.InitCode))
	default:
		addr = crypto.CreateAddress(inputs.Caller, h.nonces[inputs.Caller])
		h.nonces[inputs.Caller]++
	}

	if code, ok := h.code[addr]; ok && !code.IsEmpty() {
		return evm.CreateCollision, nil, nil
	}

	value := valueOrZero(inputs.Value)
	if !h.Transfer(inputs.Caller, addr, value) {
		return evm.OutOfFund, nil, nil
	}

	ctx := evm.CallContext{
		Address:       addr,
		Caller:        inputs.Caller,
		CodeAddress:   addr,
		ApparentValue: value,
		Scheme:        evm.Call,
	}
	child := evm.NewInterpreter(evm.NewContract(nil, evm.NewBytecode(inputs.InitCode), &ctx), inputs.GasLimit, false)
	child.Depth = interp.Depth + 1

	h.callDepth++
	result := child.Run(h.dispatch)
	h.callDepth--

	output := child.ReturnValue()
	h.SetCode(addr, output)
	h.logger.Trace("Created ", addr.Hex(), " with result ", result.String())
	return result, &addr, output
}

func valueOrZero(value *uint256.Int) *uint256.Int {
	if value == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(value)
}
