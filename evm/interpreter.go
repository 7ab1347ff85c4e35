package evm

import (
	"hash"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

const (
	// CallDepthLimit is the maximum nesting of frames. Calls and creations beyond it fail without reaching the host.
	CallDepthLimit = 1024

	// DefaultGasLimit is the gas given to top-level frames.
	DefaultGasLimit uint64 = 10_000_000_000
)

// keccakState wraps sha3.state. In addition to the usual hash methods, it also supports
// Read to get a variable amount of data from the hash state.
type keccakState interface {
	hash.Hash
	Read([]byte) (int, error)
}

// Interpreter runs one frame of bytecode against a Host. Gas is charged at a flat rate of one unit per
// instruction, and nested frames are built and run by the Host.
type Interpreter struct {
	Contract *Contract
	Stack    *Stack
	Memory   *Memory

	// PC is the program counter of the next instruction.
	PC uint64
	// Gas is the remaining gas of the frame.
	Gas      uint64
	IsStatic bool
	// Depth is the frame's nesting level, 0 for a top-level frame.
	Depth int

	// ReturnData is the output of the last sub-call or creation.
	ReturnData []byte

	output []byte
	result InstructionResult

	hasher    keccakState
	hasherBuf common.Hash
}

// NewInterpreter creates an interpreter for contract with the given gas limit.
func NewInterpreter(contract *Contract, gasLimit uint64, isStatic bool) *Interpreter {
	return &Interpreter{
		Contract: contract,
		Stack:    newStack(),
		Memory:   &Memory{},
		Gas:      gasLimit,
		IsStatic: isStatic,
	}
}

// Opcode returns the instruction at PC.
func (in *Interpreter) Opcode() vm.OpCode {
	return in.Contract.Code.OpAt(in.PC)
}

// Halt stops the frame with result. Called from Host.Step it prevents the current instruction from executing; called
// during Host.Call it stops the caller once the sub-call has returned.
func (in *Interpreter) Halt(result InstructionResult) {
	in.result = result
}

// Result returns the frame's result, Continue while it is still running.
func (in *Interpreter) Result() InstructionResult {
	return in.result
}

// ReturnValue returns the output of a frame that executed RETURN or REVERT.
func (in *Interpreter) ReturnValue() []byte {
	return in.output
}

// Run executes the frame until it halts and returns its result.
func (in *Interpreter) Run(host Host) InstructionResult {
	in.result = Continue
	for in.result == Continue {
		host.Step(in)
		if in.result != Continue {
			break
		}
		in.execute(host)
		host.StepEnd(in)
	}
	return in.result
}

// execute runs the instruction at PC.
func (in *Interpreter) execute(host Host) {
	op := in.Opcode()
	info := opTable[op]
	if !info.valid {
		in.Halt(OpcodeNotFound)
		return
	}
	if in.Gas == 0 {
		in.Halt(OutOfGas)
		return
	}
	in.Gas--
	if in.Stack.Len() < info.pop {
		in.Halt(StackUnderflow)
		return
	}
	if in.Stack.Len()-info.pop+info.push > StackLimit {
		in.Halt(StackOverflow)
		return
	}

	st := in.Stack
	contract := in.Contract
	env := host.Env()

	switch {
	case op >= vm.PUSH1 && op <= vm.PUSH32:
		n := uint64(op-vm.PUSH1) + 1
		code := contract.Code.Bytes()
		st.push(new(uint256.Int).SetBytes(getData(code, in.PC+1, n)))
		in.PC += n + 1
		return
	case op >= vm.DUP1 && op <= vm.DUP16:
		st.dup(int(op-vm.DUP1) + 1)
		in.PC++
		return
	case op >= vm.SWAP1 && op <= vm.SWAP16:
		st.swap(int(op-vm.SWAP1) + 1)
		in.PC++
		return
	case op >= vm.LOG0 && op <= vm.LOG4:
		in.opLog(host, int(op-vm.LOG0))
		in.PC++
		return
	}

	switch op {
	case vm.STOP:
		in.Halt(Stop)
		return

	case vm.ADD:
		x, y := st.pop(), st.peek()
		y.Add(&x, y)
	case vm.MUL:
		x, y := st.pop(), st.peek()
		y.Mul(&x, y)
	case vm.SUB:
		x, y := st.pop(), st.peek()
		y.Sub(&x, y)
	case vm.DIV:
		x, y := st.pop(), st.peek()
		y.Div(&x, y)
	case vm.SDIV:
		x, y := st.pop(), st.peek()
		y.SDiv(&x, y)
	case vm.MOD:
		x, y := st.pop(), st.peek()
		y.Mod(&x, y)
	case vm.SMOD:
		x, y := st.pop(), st.peek()
		y.SMod(&x, y)
	case vm.ADDMOD:
		x, y := st.pop(), st.pop()
		z := st.peek()
		z.AddMod(&x, &y, z)
	case vm.MULMOD:
		x, y := st.pop(), st.pop()
		z := st.peek()
		z.MulMod(&x, &y, z)
	case vm.EXP:
		base, exponent := st.pop(), st.peek()
		exponent.Exp(&base, exponent)
	case vm.SIGNEXTEND:
		back, num := st.pop(), st.peek()
		num.ExtendSign(num, &back)

	case vm.LT:
		x, y := st.pop(), st.peek()
		setBool(y, x.Lt(y))
	case vm.GT:
		x, y := st.pop(), st.peek()
		setBool(y, x.Gt(y))
	case vm.SLT:
		x, y := st.pop(), st.peek()
		setBool(y, x.Slt(y))
	case vm.SGT:
		x, y := st.pop(), st.peek()
		setBool(y, x.Sgt(y))
	case vm.EQ:
		x, y := st.pop(), st.peek()
		setBool(y, x.Eq(y))
	case vm.ISZERO:
		x := st.peek()
		setBool(x, x.IsZero())
	case vm.AND:
		x, y := st.pop(), st.peek()
		y.And(&x, y)
	case vm.OR:
		x, y := st.pop(), st.peek()
		y.Or(&x, y)
	case vm.XOR:
		x, y := st.pop(), st.peek()
		y.Xor(&x, y)
	case vm.NOT:
		x := st.peek()
		x.Not(x)
	case vm.BYTE:
		th, val := st.pop(), st.peek()
		val.Byte(&th)
	case vm.SHL:
		shift, value := st.pop(), st.peek()
		if shift.LtUint64(256) {
			value.Lsh(value, uint(shift.Uint64()))
		} else {
			value.Clear()
		}
	case vm.SHR:
		shift, value := st.pop(), st.peek()
		if shift.LtUint64(256) {
			value.Rsh(value, uint(shift.Uint64()))
		} else {
			value.Clear()
		}
	case vm.SAR:
		shift, value := st.pop(), st.peek()
		if shift.GtUint64(255) {
			if value.Sign() >= 0 {
				value.Clear()
			} else {
				value.SetAllOne()
			}
		} else {
			value.SRsh(value, uint(shift.Uint64()))
		}

	case vm.KECCAK256:
		offset, size := st.pop(), st.peek()
		off, sz, ok := in.expandMemory(&offset, size)
		if !ok {
			return
		}
		if in.hasher == nil {
			in.hasher = sha3.NewLegacyKeccak256().(keccakState)
		} else {
			in.hasher.Reset()
		}
		in.hasher.Write(in.Memory.getPtr(off, sz))
		in.hasher.Read(in.hasherBuf[:])
		size.SetBytes(in.hasherBuf[:])

	case vm.ADDRESS:
		st.push(addressToWord(contract.Address))
	case vm.BALANCE:
		slot := st.peek()
		slot.Set(host.Balance(wordToAddress(slot)))
	case vm.ORIGIN:
		st.push(addressToWord(env.Tx.Caller))
	case vm.CALLER:
		st.push(addressToWord(contract.Caller))
	case vm.CALLVALUE:
		st.push(new(uint256.Int).Set(contract.Value))
	case vm.CALLDATALOAD:
		x := st.peek()
		if offset, overflow := x.Uint64WithOverflow(); !overflow {
			x.SetBytes(getData(contract.Input, offset, 32))
		} else {
			x.Clear()
		}
	case vm.CALLDATASIZE:
		st.push(new(uint256.Int).SetUint64(uint64(len(contract.Input))))
	case vm.CALLDATACOPY:
		memOffset, dataOffset, length := st.pop(), st.pop(), st.pop()
		if !in.copyToMemory(&memOffset, &dataOffset, &length, contract.Input) {
			return
		}
	case vm.CODESIZE:
		st.push(new(uint256.Int).SetUint64(uint64(contract.Code.Len())))
	case vm.CODECOPY:
		memOffset, codeOffset, length := st.pop(), st.pop(), st.pop()
		if !in.copyToMemory(&memOffset, &codeOffset, &length, contract.Code.Bytes()) {
			return
		}
	case vm.GASPRICE:
		st.push(new(uint256.Int).Set(env.Tx.GasPrice))
	case vm.EXTCODESIZE:
		slot := st.peek()
		slot.SetUint64(uint64(host.Code(wordToAddress(slot)).Len()))
	case vm.EXTCODECOPY:
		a, memOffset, codeOffset, length := st.pop(), st.pop(), st.pop(), st.pop()
		code := host.Code(wordToAddress(&a)).Bytes()
		if !in.copyToMemory(&memOffset, &codeOffset, &length, code) {
			return
		}
	case vm.RETURNDATASIZE:
		st.push(new(uint256.Int).SetUint64(uint64(len(in.ReturnData))))
	case vm.RETURNDATACOPY:
		memOffset, dataOffset, length := st.pop(), st.pop(), st.pop()
		end := new(uint256.Int)
		if _, overflow := end.AddOverflow(&dataOffset, &length); overflow || !end.IsUint64() || end.Uint64() > uint64(len(in.ReturnData)) {
			in.Halt(OutOfOffset)
			return
		}
		if !in.copyToMemory(&memOffset, &dataOffset, &length, in.ReturnData) {
			return
		}
	case vm.EXTCODEHASH:
		slot := st.peek()
		addr := wordToAddress(slot)
		if host.Code(addr).IsEmpty() {
			slot.Clear()
		} else {
			slot.SetBytes(host.CodeHash(addr).Bytes())
		}

	case vm.BLOCKHASH:
		num := st.peek()
		num.SetBytes(host.BlockHash(num).Bytes())
	case vm.COINBASE:
		st.push(addressToWord(env.Block.Coinbase))
	case vm.TIMESTAMP:
		st.push(new(uint256.Int).SetUint64(env.Block.Timestamp))
	case vm.NUMBER:
		st.push(new(uint256.Int).SetUint64(env.Block.Number))
	case vm.DIFFICULTY:
		st.push(new(uint256.Int).SetBytes(env.Block.PrevRandao.Bytes()))
	case vm.GASLIMIT:
		st.push(new(uint256.Int).SetUint64(env.Block.GasLimit))
	case vm.CHAINID:
		st.push(new(uint256.Int).Set(env.ChainID))
	case vm.SELFBALANCE:
		st.push(new(uint256.Int).Set(host.Balance(contract.Address)))
	case vm.BASEFEE:
		st.push(new(uint256.Int).Set(env.Block.BaseFee))

	case vm.POP:
		st.pop()
	case vm.MLOAD:
		v := st.peek()
		off, _, ok := in.expandMemory(v, uint256.NewInt(32))
		if !ok {
			return
		}
		v.SetBytes(in.Memory.getPtr(off, 32))
	case vm.MSTORE:
		mStart, val := st.pop(), st.pop()
		off, _, ok := in.expandMemory(&mStart, uint256.NewInt(32))
		if !ok {
			return
		}
		in.Memory.set32(off, &val)
	case vm.MSTORE8:
		mStart, val := st.pop(), st.pop()
		off, _, ok := in.expandMemory(&mStart, uint256.NewInt(1))
		if !ok {
			return
		}
		in.Memory.store[off] = byte(val.Uint64())
	case vm.SLOAD:
		loc := st.peek()
		loc.Set(host.SLoad(contract.Address, loc))
	case vm.SSTORE:
		if in.IsStatic {
			in.Halt(StateChangeDuringStaticCall)
			return
		}
		loc, val := st.pop(), st.pop()
		host.SStore(contract.Address, &loc, &val)
	case vm.JUMP:
		pos := st.pop()
		if !pos.IsUint64() || !contract.Code.IsJumpDest(pos.Uint64()) {
			in.Halt(InvalidJump)
			return
		}
		in.PC = pos.Uint64()
		return
	case vm.JUMPI:
		pos, cond := st.pop(), st.pop()
		if !cond.IsZero() {
			if !pos.IsUint64() || !contract.Code.IsJumpDest(pos.Uint64()) {
				in.Halt(InvalidJump)
				return
			}
			in.PC = pos.Uint64()
			return
		}
	case vm.PC:
		st.push(new(uint256.Int).SetUint64(in.PC))
	case vm.MSIZE:
		st.push(new(uint256.Int).SetUint64(uint64(in.Memory.Len())))
	case vm.GAS:
		st.push(new(uint256.Int).SetUint64(in.Gas))
	case vm.JUMPDEST:
	case vm.MCOPY:
		dst, src, length := st.pop(), st.pop(), st.pop()
		if length.IsZero() {
			break
		}
		upper := &dst
		if src.Gt(&dst) {
			upper = &src
		}
		if _, _, ok := in.expandMemory(upper, &length); !ok {
			return
		}
		copy(in.Memory.store[dst.Uint64():], in.Memory.store[src.Uint64():src.Uint64()+length.Uint64()])
	case vm.PUSH0:
		st.push(new(uint256.Int))

	case vm.CREATE, vm.CREATE2:
		in.opCreate(host, op)
	case vm.CALL, vm.CALLCODE, vm.DELEGATECALL, vm.STATICCALL:
		in.opCall(host, op)

	case vm.RETURN, vm.REVERT:
		offset, size := st.pop(), st.pop()
		off, sz, ok := in.expandMemory(&offset, &size)
		if !ok {
			return
		}
		in.output = in.Memory.getCopy(off, sz)
		if op == vm.RETURN {
			in.Halt(Return)
		} else {
			in.Halt(Revert)
		}
		return
	case vm.INVALID:
		in.Halt(InvalidFEOpcode)
		return
	case vm.SELFDESTRUCT:
		if in.IsStatic {
			in.Halt(StateChangeDuringStaticCall)
			return
		}
		beneficiary := st.pop()
		host.SelfDestruct(contract.Address, wordToAddress(&beneficiary))
		in.Halt(SelfDestruct)
		return
	default:
		in.Halt(OpcodeNotFound)
		return
	}
	in.PC++
}

// opLog emits a LOG with n topics.
func (in *Interpreter) opLog(host Host, n int) {
	if in.IsStatic {
		in.Halt(StateChangeDuringStaticCall)
		return
	}
	mStart, mSize := in.Stack.pop(), in.Stack.pop()
	topics := make([]common.Hash, n)
	for i := 0; i < n; i++ {
		topic := in.Stack.pop()
		topics[i] = common.Hash(topic.Bytes32())
	}
	off, sz, ok := in.expandMemory(&mStart, &mSize)
	if !ok {
		return
	}
	host.Log(in.Contract.Address, topics, in.Memory.getCopy(off, sz))
}

// opCreate handles CREATE and CREATE2.
func (in *Interpreter) opCreate(host Host, op vm.OpCode) {
	if in.IsStatic {
		in.Halt(StateChangeDuringStaticCall)
		return
	}
	st := in.Stack
	value, offset, size := st.pop(), st.pop(), st.pop()
	var salt *uint256.Int
	scheme := Create
	if op == vm.CREATE2 {
		s := st.pop()
		salt = &s
		scheme = Create2
	}
	off, sz, ok := in.expandMemory(&offset, &size)
	if !ok {
		return
	}
	in.ReturnData = nil
	if in.Depth >= CallDepthLimit {
		st.push(new(uint256.Int))
		return
	}

	inputs := &CreateInputs{
		Caller:   in.Contract.Address,
		Scheme:   scheme,
		Value:    &value,
		InitCode: in.Memory.getCopy(off, sz),
		GasLimit: in.Gas - in.Gas/64,
		Salt:     salt,
	}
	result, addr, output := host.Create(inputs, in)
	if result.IsSignal() {
		in.Halt(result)
	}
	if result.IsSuccess() && addr != nil {
		st.push(addressToWord(*addr))
	} else {
		st.push(new(uint256.Int))
	}
	if result.IsRevert() {
		in.ReturnData = output
	}
}

// opCall handles the CALL family. Gas handed to the callee is capped to all but one 64th of the remaining gas, plus
// the stipend for value transfers. The caller is not charged for the callee's gas.
func (in *Interpreter) opCall(host Host, op vm.OpCode) {
	st := in.Stack
	contract := in.Contract
	gas, to := st.pop(), st.pop()
	value := new(uint256.Int)
	if op == vm.CALL || op == vm.CALLCODE {
		v := st.pop()
		value.Set(&v)
	}
	inOffset, inSize, retOffset, retSize := st.pop(), st.pop(), st.pop(), st.pop()

	if op == vm.CALL && in.IsStatic && !value.IsZero() {
		in.Halt(StateChangeDuringStaticCall)
		return
	}
	inOff, inSz, ok := in.expandMemory(&inOffset, &inSize)
	if !ok {
		return
	}
	retOff, retSz, ok := in.expandMemory(&retOffset, &retSize)
	if !ok {
		return
	}
	in.ReturnData = nil
	if in.Depth >= CallDepthLimit {
		st.push(new(uint256.Int))
		return
	}

	available := in.Gas - in.Gas/64
	gasLimit := available
	if gas.IsUint64() && gas.Uint64() < available {
		gasLimit = gas.Uint64()
	}
	if !value.IsZero() {
		gasLimit += CallStipend
	}

	target := wordToAddress(&to)
	inputs := &CallInputs{
		Contract: target,
		Input:    in.Memory.getCopy(inOff, inSz),
		GasLimit: gasLimit,
		IsStatic: in.IsStatic,
	}
	switch op {
	case vm.CALL:
		inputs.Context = CallContext{Address: target, Caller: contract.Address, CodeAddress: target, ApparentValue: value, Scheme: Call}
		inputs.Transfer = Transfer{Source: contract.Address, Target: target, Value: value}
	case vm.CALLCODE:
		inputs.Context = CallContext{Address: contract.Address, Caller: contract.Address, CodeAddress: target, ApparentValue: value, Scheme: CallCode}
		inputs.Transfer = Transfer{Source: contract.Address, Target: contract.Address, Value: value}
	case vm.DELEGATECALL:
		inputs.Context = CallContext{Address: contract.Address, Caller: contract.Caller, CodeAddress: target, ApparentValue: new(uint256.Int).Set(contract.Value), Scheme: DelegateCall}
		inputs.Transfer = Transfer{Source: contract.Caller, Target: contract.Address, Value: new(uint256.Int)}
	case vm.STATICCALL:
		inputs.Context = CallContext{Address: target, Caller: contract.Address, CodeAddress: target, ApparentValue: new(uint256.Int), Scheme: StaticCall}
		inputs.Transfer = Transfer{Source: contract.Address, Target: target, Value: new(uint256.Int)}
		inputs.IsStatic = true
	}

	result, output := host.Call(inputs, in)
	if result.IsSignal() {
		in.Halt(result)
	}
	if result.IsSuccess() {
		st.push(uint256.NewInt(1))
	} else {
		st.push(new(uint256.Int))
	}
	if result.IsSuccess() || result.IsRevert() {
		n := retSz
		if uint64(len(output)) < n {
			n = uint64(len(output))
		}
		in.Memory.set(retOff, n, output)
	}
	in.ReturnData = output
}

// copyToMemory copies length bytes of source starting at srcOffset into memory at memOffset, zero-padding past the
// end of source.
func (in *Interpreter) copyToMemory(memOffset, srcOffset, length *uint256.Int, source []byte) bool {
	off, sz, ok := in.expandMemory(memOffset, length)
	if !ok {
		return false
	}
	start, overflow := srcOffset.Uint64WithOverflow()
	if overflow {
		start = ^uint64(0)
	}
	in.Memory.set(off, sz, getData(source, start, sz))
	return true
}

// expandMemory validates a memory range and grows memory to cover it. Empty ranges never expand memory.
func (in *Interpreter) expandMemory(offset, size *uint256.Int) (uint64, uint64, bool) {
	if size.IsZero() {
		return 0, 0, true
	}
	if !offset.IsUint64() || !size.IsUint64() || offset.Uint64() > MemoryLimit || size.Uint64() > MemoryLimit ||
		offset.Uint64()+size.Uint64() > MemoryLimit {
		in.Halt(MemoryLimitOOG)
		return 0, 0, false
	}
	off, sz := offset.Uint64(), size.Uint64()
	in.Memory.resize((off + sz + 31) / 32 * 32)
	return off, sz, true
}

// getData returns a slice of data starting at start of the given size, right-padded with zeros.
func getData(data []byte, start uint64, size uint64) []byte {
	length := uint64(len(data))
	if start > length {
		start = length
	}
	end := start + size
	if end > length || end < start {
		end = length
	}
	return common.RightPadBytes(data[start:end], int(size))
}

func setBool(v *uint256.Int, b bool) {
	if b {
		v.SetOne()
	} else {
		v.Clear()
	}
}

func addressToWord(addr common.Address) *uint256.Int {
	return new(uint256.Int).SetBytes(addr.Bytes())
}

func wordToAddress(word *uint256.Int) common.Address {
	return common.Address(word.Bytes20())
}

// WordToAddress truncates a word to its low 20 bytes.
func WordToAddress(word *uint256.Int) common.Address {
	return wordToAddress(word)
}
