package evm

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/types"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/crytic/medusa-geth/crypto"
)

// Bytecode is contract code together with its hash and jump destination analysis.
type Bytecode struct {
	code      []byte
	hash      common.Hash
	jumpdests []bool
}

// EmptyBytecode is the code of accounts that have none.
var EmptyBytecode = NewBytecode(nil)

// NewBytecode analyses code and returns it as Bytecode.
func NewBytecode(code []byte) *Bytecode {
	b := &Bytecode{
		code:      append([]byte(nil), code...),
		jumpdests: analyseJumpDests(code),
	}
	if len(code) == 0 {
		b.hash = types.EmptyCodeHash
	} else {
		b.hash = crypto.Keccak256Hash(code)
	}
	return b
}

// analyseJumpDests marks every JUMPDEST that is not part of PUSH data.
func analyseJumpDests(code []byte) []bool {
	dests := make([]bool, len(code))
	for pc := 0; pc < len(code); pc++ {
		op := vm.OpCode(code[pc])
		if op == vm.JUMPDEST {
			dests[pc] = true
		} else if op >= vm.PUSH1 && op <= vm.PUSH32 {
			pc += int(op-vm.PUSH1) + 1
		}
	}
	return dests
}

// Bytes returns the raw code.
func (b *Bytecode) Bytes() []byte {
	return b.code
}

// Len returns the code size.
func (b *Bytecode) Len() int {
	return len(b.code)
}

// Hash returns the keccak256 hash of the code.
func (b *Bytecode) Hash() common.Hash {
	return b.hash
}

// IsEmpty reports whether there is no code.
func (b *Bytecode) IsEmpty() bool {
	return len(b.code) == 0
}

// IsJumpDest reports whether pc is a valid jump destination.
func (b *Bytecode) IsJumpDest(pc uint64) bool {
	return pc < uint64(len(b.jumpdests)) && b.jumpdests[pc]
}

// OpAt returns the opcode at pc, or STOP past the end of the code.
func (b *Bytecode) OpAt(pc uint64) vm.OpCode {
	if pc >= uint64(len(b.code)) {
		return vm.STOP
	}
	return vm.OpCode(b.code[pc])
}
