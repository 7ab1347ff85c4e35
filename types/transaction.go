package types

import (
	"fmt"

	"github.com/crytic/crossguard/evm"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/holiman/uint256"
)

// Transaction is a recorded on-chain transaction. Target, victim and replayed transactions all share this shape.
type Transaction struct {
	// Hash is the transaction hash.
	Hash common.Hash
	// BlockNumber is the block the transaction was included in.
	BlockNumber uint64
	// BlockHash is the hash of BlockNumber.
	BlockHash common.Hash
	// Timestamp is the timestamp of BlockNumber.
	Timestamp uint64
	// From is the sender of the transaction.
	From common.Address
	// To is the receiving contract.
	To common.Address
	// Value is the wei amount sent along with the transaction.
	Value *uint256.Int
	// Input is the call data of the transaction.
	Input []byte
	// FunctionName is a human-readable name of the called function, used in findings only.
	FunctionName string
	// IsSuccess records whether the transaction succeeded on-chain.
	IsSuccess bool
}

// Selector returns the function selector of the transaction input, or the all-zero selector if the input is too
// short.
func (t *Transaction) Selector() [4]byte {
	return evm.FunctionSelector(t.Input)
}

// SelectorHex returns Selector as a 0x-prefixed hex string.
func (t *Transaction) SelectorHex() string {
	selector := t.Selector()
	return hexutil.Encode(selector[:])
}

// StateBlock returns the block whose post-state the transaction executed on.
func (t *Transaction) StateBlock() uint64 {
	if t.BlockNumber == 0 {
		return 0
	}
	return t.BlockNumber - 1
}

// GetValue returns the transaction value, treating a missing value as zero.
func (t *Transaction) GetValue() *uint256.Int {
	if t.Value == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(t.Value)
}

// String returns a short description of the transaction.
func (t *Transaction) String() string {
	return fmt.Sprintf("%s (block %d, %s -> %s, selector %s)", t.Hash.Hex(), t.BlockNumber, t.From.Hex(), t.To.Hex(), t.SelectorHex())
}
