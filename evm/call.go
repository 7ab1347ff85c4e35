package evm

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// CallStipend is the gas forwarded for free alongside a value transfer. A call whose gas limit equals it is a bare
// transfer.
const CallStipend uint64 = 2300

// CallScheme is the opcode flavor used to enter a frame.
type CallScheme uint8

const (
	Call CallScheme = iota
	CallCode
	DelegateCall
	StaticCall
)

// String returns the opcode name of the scheme.
func (s CallScheme) String() string {
	switch s {
	case Call:
		return "CALL"
	case CallCode:
		return "CALLCODE"
	case DelegateCall:
		return "DELEGATECALL"
	case StaticCall:
		return "STATICCALL"
	default:
		return "UNKNOWN"
	}
}

// CreateScheme is the opcode flavor used to deploy a contract.
type CreateScheme uint8

const (
	Create CreateScheme = iota
	Create2
)

// CallContext identifies one frame: whose storage it runs against, who called it, whose code it runs and the
// value it observes.
type CallContext struct {
	// Address is the account whose storage and balance the frame operates on.
	Address common.Address
	// Caller is msg.sender inside the frame.
	Caller common.Address
	// CodeAddress is the account whose code runs. It differs from Address for DELEGATECALL and CALLCODE.
	CodeAddress common.Address
	// ApparentValue is msg.value inside the frame.
	ApparentValue *uint256.Int
	// Scheme is the opcode that entered the frame.
	Scheme CallScheme
}

// Transfer is the value actually moved between accounts when entering a frame.
type Transfer struct {
	Source common.Address
	Target common.Address
	Value  *uint256.Int
}

// CallInputs describes a sub-call requested by an interpreter.
type CallInputs struct {
	// Contract is the call target as it appeared on the stack.
	Contract common.Address
	Transfer Transfer
	Input    []byte
	// GasLimit includes the stipend when the call transfers value.
	GasLimit uint64
	Context  CallContext
	IsStatic bool
}

// CreateInputs describes a contract creation requested by an interpreter.
type CreateInputs struct {
	Caller   common.Address
	Scheme   CreateScheme
	Value    *uint256.Int
	InitCode []byte
	GasLimit uint64
	// Salt is only set for Create2.
	Salt *uint256.Int
}

// FunctionSelector returns the first four bytes of call data, or the all-zero selector if the input is shorter.
func FunctionSelector(input []byte) [4]byte {
	var selector [4]byte
	if len(input) >= 4 {
		copy(selector[:], input[:4])
	}
	return selector
}
