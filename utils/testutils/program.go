package testutils

import (
	"fmt"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/holiman/uint256"
)

// Program is a small bytecode assembler. It is used to build contract code for replay fixtures and tests.
type Program struct {
	code []byte
}

// NewProgram returns an empty Program.
func NewProgram() *Program {
	return &Program{}
}

// Bytes returns the assembled code.
func (p *Program) Bytes() []byte {
	return append([]byte(nil), p.code...)
}

// Size returns the current code size, which is also the offset of the next instruction.
func (p *Program) Size() int {
	return len(p.code)
}

// Op appends raw opcodes.
func (p *Program) Op(ops ...vm.OpCode) *Program {
	for _, op := range ops {
		p.code = append(p.code, byte(op))
	}
	return p
}

// Push appends the shortest PUSH instruction for val. Supported values are integers, byte slices, addresses,
// hashes, selectors and *uint256.Int.
func (p *Program) Push(val any) *Program {
	var data []byte
	switch v := val.(type) {
	case int:
		data = new(uint256.Int).SetUint64(uint64(v)).Bytes()
	case uint64:
		data = new(uint256.Int).SetUint64(v).Bytes()
	case *uint256.Int:
		data = v.Bytes()
	case []byte:
		data = v
	case common.Address:
		data = v.Bytes()
	case common.Hash:
		data = v.Bytes()
	case [4]byte:
		data = v[:]
	default:
		panic(fmt.Sprintf("unsupported push type %T", val))
	}
	if len(data) == 0 {
		return p.Op(vm.PUSH0)
	}
	if len(data) > 32 {
		panic(fmt.Sprintf("push data of %d bytes exceeds a word", len(data)))
	}
	p.code = append(p.code, byte(vm.PUSH1)+byte(len(data)-1))
	p.code = append(p.code, data...)
	return p
}

// Label appends a JUMPDEST and returns its offset.
func (p *Program) Label() uint64 {
	pc := uint64(len(p.code))
	p.Op(vm.JUMPDEST)
	return pc
}

// JumpIf appends a conditional jump to dest. The condition must already be on the stack.
func (p *Program) JumpIf(dest uint64) *Program {
	return p.Push(dest).Op(vm.JUMPI)
}

// Mstore writes data into memory at offset, one word at a time. A trailing partial word is left-aligned.
func (p *Program) Mstore(data []byte, offset uint64) *Program {
	for i := 0; i < len(data); i += 32 {
		end := i + 32
		word := make([]byte, 32)
		if end > len(data) {
			end = len(data)
		}
		copy(word, data[i:end])
		p.Push(word).Push(offset + uint64(i)).Op(vm.MSTORE)
	}
	return p
}

// Sstore stores value at slot.
func (p *Program) Sstore(slot any, value any) *Program {
	return p.Push(value).Push(slot).Op(vm.SSTORE)
}

// Sload pushes the value at slot.
func (p *Program) Sload(slot any) *Program {
	return p.Push(slot).Op(vm.SLOAD)
}

// Call appends a CALL to addr with the input at [inOffset, inOffset+inSize) and no return buffer. A nil gas
// forwards all remaining gas.
func (p *Program) Call(gas *uint256.Int, addr common.Address, value any, inOffset, inSize uint64) *Program {
	p.Push(0).Push(0).Push(inSize).Push(inOffset).Push(value).Push(addr)
	return p.pushGas(gas).Op(vm.CALL)
}

// DelegateCall appends a DELEGATECALL to addr with the input at [inOffset, inOffset+inSize).
func (p *Program) DelegateCall(gas *uint256.Int, addr common.Address, inOffset, inSize uint64) *Program {
	p.Push(0).Push(0).Push(inSize).Push(inOffset).Push(addr)
	return p.pushGas(gas).Op(vm.DELEGATECALL)
}

// StaticCall appends a STATICCALL to addr with the input at [inOffset, inOffset+inSize).
func (p *Program) StaticCall(gas *uint256.Int, addr common.Address, inOffset, inSize uint64) *Program {
	p.Push(0).Push(0).Push(inSize).Push(inOffset).Push(addr)
	return p.pushGas(gas).Op(vm.STATICCALL)
}

// CallSelector stores selector at memory 0 followed by args and appends a CALL to addr with that input.
func (p *Program) CallSelector(gas *uint256.Int, addr common.Address, value any, selector [4]byte, args ...common.Hash) *Program {
	input := append([]byte(nil), selector[:]...)
	for _, arg := range args {
		input = append(input, arg.Bytes()...)
	}
	return p.Mstore(input, 0).Call(gas, addr, value, 0, uint64(len(input)))
}

func (p *Program) pushGas(gas *uint256.Int) *Program {
	if gas == nil {
		return p.Op(vm.GAS)
	}
	return p.Push(gas)
}

// Return returns memory [offset, offset+size).
func (p *Program) Return(offset, size uint64) *Program {
	return p.Push(size).Push(offset).Op(vm.RETURN)
}

// ReturnData returns data as the frame output.
func (p *Program) ReturnData(data []byte) *Program {
	return p.Mstore(data, 0).Return(0, uint64(len(data)))
}

// Revert reverts with empty output.
func (p *Program) Revert() *Program {
	return p.Push(0).Push(0).Op(vm.REVERT)
}

// DeployCode wraps runtime into init code that returns it.
func DeployCode(runtime []byte) []byte {
	body := NewProgram().Mstore(runtime, 0).Return(0, uint64(len(runtime)))
	return body.Bytes()
}
