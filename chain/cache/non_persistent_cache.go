package cache

import (
	"sync"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// lockedMap is a map guarded by a read-write lock.
type lockedMap[K comparable, V any] struct {
	lock sync.RWMutex
	data map[K]V
}

func newLockedMap[K comparable, V any]() *lockedMap[K, V] {
	return &lockedMap[K, V]{data: make(map[K]V)}
}

func (m *lockedMap[K, V]) get(key K) (V, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	var zero V
	return zero, ErrCacheMiss
}

func (m *lockedMap[K, V]) put(key K, value V) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.data[key] = value
}

// slotKey identifies a storage slot of an account.
type slotKey struct {
	addr common.Address
	slot common.Hash
}

// nonPersistentCache provides a thread-safe ChainCache that only lives in memory.
type nonPersistentCache struct {
	code     *lockedMap[common.Address, []byte]
	balances *lockedMap[common.Address, uint256.Int]
	slots    *lockedMap[slotKey, common.Hash]
	creators *lockedMap[common.Address, common.Address]
}

// NewNonPersistentCache creates an in-memory ChainCache.
func NewNonPersistentCache() ChainCache {
	return newNonPersistentCache()
}

func newNonPersistentCache() *nonPersistentCache {
	return &nonPersistentCache{
		code:     newLockedMap[common.Address, []byte](),
		balances: newLockedMap[common.Address, uint256.Int](),
		slots:    newLockedMap[slotKey, common.Hash](),
		creators: newLockedMap[common.Address, common.Address](),
	}
}

func (c *nonPersistentCache) GetCode(addr common.Address) ([]byte, error) {
	return c.code.get(addr)
}

func (c *nonPersistentCache) WriteCode(addr common.Address, code []byte) error {
	c.code.put(addr, append([]byte{}, code...))
	return nil
}

func (c *nonPersistentCache) GetBalance(addr common.Address) (*uint256.Int, error) {
	balance, err := c.balances.get(addr)
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (c *nonPersistentCache) WriteBalance(addr common.Address, balance *uint256.Int) error {
	if balance == nil {
		return ErrNilBalance
	}
	c.balances.put(addr, *balance)
	return nil
}

func (c *nonPersistentCache) GetSlotData(addr common.Address, slot common.Hash) (common.Hash, error) {
	return c.slots.get(slotKey{addr, slot})
}

func (c *nonPersistentCache) WriteSlotData(addr common.Address, slot common.Hash, data common.Hash) error {
	c.slots.put(slotKey{addr, slot}, data)
	return nil
}

func (c *nonPersistentCache) GetCreator(addr common.Address) (common.Address, error) {
	return c.creators.get(addr)
}

func (c *nonPersistentCache) WriteCreator(addr common.Address, creator common.Address) error {
	c.creators.put(addr, creator)
	return nil
}

func (c *nonPersistentCache) Close() error {
	return nil
}
