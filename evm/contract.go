package evm

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// Contract is the code and identity a frame runs with.
type Contract struct {
	Input       []byte
	Code        *Bytecode
	Address     common.Address
	Caller      common.Address
	CodeAddress common.Address
	Value       *uint256.Int
	Scheme      CallScheme
}

// NewContract binds input and code to the identity described by ctx. A nil code runs as EmptyBytecode.
func NewContract(input []byte, code *Bytecode, ctx *CallContext) *Contract {
	if code == nil {
		code = EmptyBytecode
	}
	value := new(uint256.Int)
	if ctx.ApparentValue != nil {
		value.Set(ctx.ApparentValue)
	}
	return &Contract{
		Input:       input,
		Code:        code,
		Address:     ctx.Address,
		Caller:      ctx.Caller,
		CodeAddress: ctx.CodeAddress,
		Value:       value,
		Scheme:      ctx.Scheme,
	}
}
