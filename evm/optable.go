package evm

import "github.com/crytic/medusa-geth/core/vm"

// opInfo describes the stack effect of an opcode.
type opInfo struct {
	pop   int
	push  int
	valid bool
}

// opTable holds the stack effect of every supported opcode. Unsupported opcodes are left invalid.
var opTable [256]opInfo

func setOp(push int, pop int, ops ...vm.OpCode) {
	for _, op := range ops {
		opTable[op] = opInfo{pop: pop, push: push, valid: true}
	}
}

func init() {
	setOp(0, 0, vm.STOP, vm.JUMPDEST)
	setOp(1, 2, vm.ADD, vm.MUL, vm.SUB, vm.DIV, vm.SDIV, vm.MOD, vm.SMOD, vm.EXP, vm.SIGNEXTEND,
		vm.LT, vm.GT, vm.SLT, vm.SGT, vm.EQ, vm.AND, vm.OR, vm.XOR, vm.BYTE, vm.SHL, vm.SHR, vm.SAR, vm.KECCAK256)
	setOp(1, 3, vm.ADDMOD, vm.MULMOD)
	setOp(1, 1, vm.ISZERO, vm.NOT, vm.BALANCE, vm.CALLDATALOAD, vm.EXTCODESIZE, vm.EXTCODEHASH, vm.BLOCKHASH,
		vm.MLOAD, vm.SLOAD)
	setOp(1, 0, vm.ADDRESS, vm.ORIGIN, vm.CALLER, vm.CALLVALUE, vm.CALLDATASIZE, vm.CODESIZE, vm.GASPRICE,
		vm.RETURNDATASIZE, vm.COINBASE, vm.TIMESTAMP, vm.NUMBER, vm.DIFFICULTY, vm.GASLIMIT, vm.CHAINID,
		vm.SELFBALANCE, vm.BASEFEE, vm.PC, vm.MSIZE, vm.GAS, vm.PUSH0)
	setOp(0, 3, vm.CALLDATACOPY, vm.CODECOPY, vm.RETURNDATACOPY, vm.MCOPY)
	setOp(0, 4, vm.EXTCODECOPY)
	setOp(0, 1, vm.POP, vm.JUMP, vm.SELFDESTRUCT)
	setOp(0, 2, vm.MSTORE, vm.MSTORE8, vm.SSTORE, vm.JUMPI, vm.RETURN, vm.REVERT)
	setOp(0, 0, vm.INVALID)
	setOp(1, 3, vm.CREATE)
	setOp(1, 4, vm.CREATE2)
	setOp(1, 7, vm.CALL, vm.CALLCODE)
	setOp(1, 6, vm.DELEGATECALL, vm.STATICCALL)

	for op := vm.PUSH1; op <= vm.PUSH32; op++ {
		setOp(1, 0, op)
	}
	for i := 0; i < 16; i++ {
		opTable[vm.DUP1+vm.OpCode(i)] = opInfo{pop: i + 1, push: i + 2, valid: true}
		opTable[vm.SWAP1+vm.OpCode(i)] = opInfo{pop: i + 2, push: i + 2, valid: true}
	}
	for i := 0; i <= 4; i++ {
		opTable[vm.LOG0+vm.OpCode(i)] = opInfo{pop: i + 2, valid: true}
	}
}
