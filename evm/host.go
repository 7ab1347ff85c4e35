package evm

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// Host is the callback surface an Interpreter drives. Every state access and every sub-call or creation goes
// through it, so a Host decides what state looks like and how nested frames run.
type Host interface {
	// Step runs before each instruction. Halting the interpreter from here prevents the instruction from executing.
	Step(interp *Interpreter)
	// StepEnd runs after each instruction.
	StepEnd(interp *Interpreter)

	Env() *Env
	LoadAccount(addr common.Address) bool
	BlockHash(number *uint256.Int) common.Hash
	Balance(addr common.Address) *uint256.Int
	Code(addr common.Address) *Bytecode
	CodeHash(addr common.Address) common.Hash
	SLoad(addr common.Address, slot *uint256.Int) *uint256.Int
	SStore(addr common.Address, slot *uint256.Int, value *uint256.Int)
	Log(addr common.Address, topics []common.Hash, data []byte)
	SelfDestruct(addr common.Address, target common.Address)

	// Create deploys inputs.InitCode and returns the result, the new address (if one was derived) and the output.
	Create(inputs *CreateInputs, interp *Interpreter) (InstructionResult, *common.Address, []byte)
	// Call runs a sub-call on behalf of interp and returns its result and output.
	Call(inputs *CallInputs, interp *Interpreter) (InstructionResult, []byte)
}
