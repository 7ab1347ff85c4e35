package evm

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// BlockEnv holds the block-level values visible to executing code.
type BlockEnv struct {
	Number    uint64
	Timestamp uint64
	Hash      common.Hash
	Coinbase  common.Address
	GasLimit  uint64
	BaseFee   *uint256.Int
	// PrevRandao is returned by the DIFFICULTY/PREVRANDAO opcode.
	PrevRandao common.Hash
}

// TxEnv holds the transaction-level values visible to executing code. Caller is tx.origin; To, Value and Data follow
// the frame currently being dispatched.
type TxEnv struct {
	Caller   common.Address
	To       common.Address
	Value    *uint256.Int
	Data     []byte
	GasPrice *uint256.Int
}

// Env is the execution environment of a run.
type Env struct {
	ChainID *uint256.Int
	Block   BlockEnv
	Tx      TxEnv
}

// NewEnv returns an environment with zeroed values and non-nil numeric fields.
func NewEnv() *Env {
	return &Env{
		ChainID: uint256.NewInt(1),
		Block: BlockEnv{
			BaseFee: new(uint256.Int),
		},
		Tx: TxEnv{
			Value:    new(uint256.Int),
			GasPrice: new(uint256.Int),
		},
	}
}

// Clone returns a deep copy of the environment.
func (e *Env) Clone() *Env {
	c := *e
	c.ChainID = cloneInt(e.ChainID)
	c.Block.BaseFee = cloneInt(e.Block.BaseFee)
	c.Tx.Value = cloneInt(e.Tx.Value)
	c.Tx.GasPrice = cloneInt(e.Tx.GasPrice)
	c.Tx.Data = append([]byte(nil), e.Tx.Data...)
	return &c
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
