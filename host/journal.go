package host

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// StorageJournal is the storage written during one run, together with the run's bug flag. The journal is a single
// map for the whole run: storage is not versioned by block.
type StorageJournal struct {
	slots map[common.Address]map[uint256.Int]uint256.Int

	// BugHit is set once the victim has been driven into the dependent function. It is never cleared during a run.
	BugHit bool
}

// NewStorageJournal returns an empty journal.
func NewStorageJournal() *StorageJournal {
	return &StorageJournal{slots: make(map[common.Address]map[uint256.Int]uint256.Int)}
}

// Insert writes value to slot of addr.
func (j *StorageJournal) Insert(addr common.Address, slot *uint256.Int, value *uint256.Int) {
	account, ok := j.slots[addr]
	if !ok {
		account = make(map[uint256.Int]uint256.Int)
		j.slots[addr] = account
	}
	account[*slot] = *value
}

// Get returns the value of slot of addr, if it has been written.
func (j *StorageJournal) Get(addr common.Address, slot *uint256.Int) (*uint256.Int, bool) {
	account, ok := j.slots[addr]
	if !ok {
		return nil, false
	}
	value, ok := account[*slot]
	if !ok {
		return nil, false
	}
	return &value, true
}

// Len returns the number of written slots across all accounts.
func (j *StorageJournal) Len() int {
	n := 0
	for _, account := range j.slots {
		n += len(account)
	}
	return n
}

// Clone returns a deep copy of the journal.
func (j *StorageJournal) Clone() *StorageJournal {
	return &StorageJournal{slots: cloneSlots(j.slots), BugHit: j.BugHit}
}

func cloneSlots(slots map[common.Address]map[uint256.Int]uint256.Int) map[common.Address]map[uint256.Int]uint256.Int {
	c := make(map[common.Address]map[uint256.Int]uint256.Int, len(slots))
	for addr, account := range slots {
		accountCopy := make(map[uint256.Int]uint256.Int, len(account))
		for slot, value := range account {
			accountCopy[slot] = value
		}
		c[addr] = accountCopy
	}
	return c
}
