package chain

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// DataProvider fetches historical chain data. Implementations never fail: when data cannot be obtained they log a
// warning and return "no data" (empty code, zero values, zero creator).
type DataProvider interface {
	// GetContractCode returns the runtime code of addr at the fork block.
	GetContractCode(addr common.Address) []byte
	// GetContractBalance returns the balance of addr at block.
	GetContractBalance(addr common.Address, block uint64) *uint256.Int
	// GetContractSlot returns the storage slot of addr at block.
	GetContractSlot(addr common.Address, slot *uint256.Int, block uint64) *uint256.Int
	// IsContract reports whether addr has code at the fork block.
	IsContract(addr common.Address) bool
	// ResolveCreator returns the externally owned account that deployed addr, following factory deployments.
	ResolveCreator(addr common.Address) common.Address
	// ForkBlock returns the block whose post-state the provider serves by default.
	ForkBlock() uint64
}

// EmptyProvider is a DataProvider without a backing chain. Every query returns "no data".
type EmptyProvider struct {
	forkBlock uint64
}

// NewEmptyProvider creates an EmptyProvider reporting forkBlock as its fork block.
func NewEmptyProvider(forkBlock uint64) *EmptyProvider {
	return &EmptyProvider{forkBlock: forkBlock}
}

func (e *EmptyProvider) GetContractCode(common.Address) []byte {
	return nil
}

func (e *EmptyProvider) GetContractBalance(common.Address, uint64) *uint256.Int {
	return new(uint256.Int)
}

func (e *EmptyProvider) GetContractSlot(common.Address, *uint256.Int, uint64) *uint256.Int {
	return new(uint256.Int)
}

func (e *EmptyProvider) IsContract(common.Address) bool {
	return false
}

func (e *EmptyProvider) ResolveCreator(common.Address) common.Address {
	return common.Address{}
}

func (e *EmptyProvider) ForkBlock() uint64 {
	return e.forkBlock
}
