package evm

// InstructionResult is the outcome of running an instruction or a whole frame. Next to the native EVM outcomes it
// carries two synthetic detection signals, ImplicitBugHit and CrossContractControlLeak, which travel through the
// same channel so that interpreters treat them as an ordinary halt.
type InstructionResult uint8

const (
	// Continue means execution proceeds with the next instruction.
	Continue InstructionResult = iota
	Stop
	Return
	SelfDestruct
	Revert
	CallTooDeep
	OutOfFund
	OutOfGas
	MemoryLimitOOG
	OpcodeNotFound
	InvalidFEOpcode
	InvalidJump
	StackUnderflow
	StackOverflow
	OutOfOffset
	StateChangeDuringStaticCall
	CreateCollision
	PrecompileError
	// ImplicitBugHit is raised on the victim frame that calls back into the target contract with the dependent
	// function selector.
	ImplicitBugHit
	// CrossContractControlLeak is the detection result of a call or frame proven to redirect victim logic.
	CrossContractControlLeak
)

var instructionResultNames = map[InstructionResult]string{
	Continue:                    "Continue",
	Stop:                        "Stop",
	Return:                      "Return",
	SelfDestruct:                "SelfDestruct",
	Revert:                      "Revert",
	CallTooDeep:                 "CallTooDeep",
	OutOfFund:                   "OutOfFund",
	OutOfGas:                    "OutOfGas",
	MemoryLimitOOG:              "MemoryLimitOOG",
	OpcodeNotFound:              "OpcodeNotFound",
	InvalidFEOpcode:             "InvalidFEOpcode",
	InvalidJump:                 "InvalidJump",
	StackUnderflow:              "StackUnderflow",
	StackOverflow:               "StackOverflow",
	OutOfOffset:                 "OutOfOffset",
	StateChangeDuringStaticCall: "StateChangeDuringStaticCall",
	CreateCollision:             "CreateCollision",
	PrecompileError:             "PrecompileError",
	ImplicitBugHit:              "ImplicitBugHit",
	CrossContractControlLeak:    "CrossContractControlLeak",
}

// String returns the name of the result.
func (r InstructionResult) String() string {
	if name, ok := instructionResultNames[r]; ok {
		return name
	}
	return "Unknown"
}

// IsSuccess reports whether the result is a normal termination: Stop, Return or SelfDestruct.
func (r InstructionResult) IsSuccess() bool {
	return r == Stop || r == Return || r == SelfDestruct
}

// IsRevert reports whether the frame reverted and its return data is meaningful.
func (r InstructionResult) IsRevert() bool {
	return r == Revert
}

// IsSignal reports whether the result is one of the synthetic detection signals.
func (r InstructionResult) IsSignal() bool {
	return r == ImplicitBugHit || r == CrossContractControlLeak
}
