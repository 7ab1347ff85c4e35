package cache

import (
	"errors"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// ErrCacheMiss is returned when a value has not been cached yet.
var ErrCacheMiss = errors.New("not found in cache")

// ErrNilBalance is returned when a nil balance is written.
var ErrNilBalance = errors.New("cannot cache a nil balance")

// ChainCache stores on-chain data fetched for one fork block. Implementations are safe for concurrent use.
type ChainCache interface {
	GetCode(addr common.Address) ([]byte, error)
	WriteCode(addr common.Address, code []byte) error

	GetBalance(addr common.Address) (*uint256.Int, error)
	WriteBalance(addr common.Address, balance *uint256.Int) error

	GetSlotData(addr common.Address, slot common.Hash) (common.Hash, error)
	WriteSlotData(addr common.Address, slot common.Hash, data common.Hash) error

	GetCreator(addr common.Address) (common.Address, error)
	WriteCreator(addr common.Address, creator common.Address) error

	// Close flushes pending writes and releases any underlying storage.
	Close() error
}

// entryKind namespaces the keys of the different kinds of cached data.
type entryKind byte

const (
	codeEntry    entryKind = 'c'
	balanceEntry entryKind = 'b'
	slotEntry    entryKind = 's'
	creatorEntry entryKind = 'k'
)

// entryKey builds the storage key of an entry: the kind, the address and any extra key material.
func entryKey(kind entryKind, addr common.Address, extra ...[]byte) []byte {
	key := append([]byte{byte(kind)}, addr[:]...)
	for _, e := range extra {
		key = append(key, e...)
	}
	return key
}
