package host

import (
	"github.com/crytic/crossguard/evm"
	"github.com/crytic/medusa-geth/common"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"
	"golang.org/x/exp/maps"
)

// Snapshot is a saved copy of the host state that nested executions may disturb. A shallow snapshot holds the
// environment and the taint sets. A deep snapshot additionally holds balances, storage and the call depth.
type Snapshot struct {
	Env          *evm.Env
	Balances     map[common.Address]*uint256.Int
	Storage      map[common.Address]map[uint256.Int]uint256.Int
	CompareTaint mapset.Set[common.Address]
	SloadTaint   mapset.Set[common.Address]
	CallDepth    int

	deep bool
}

// IsDeep reports whether the snapshot holds balances, storage and call depth.
func (s *Snapshot) IsDeep() bool {
	return s.deep
}

// Equal reports whether two snapshots hold the same state.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s.deep != o.deep || s.CallDepth != o.CallDepth || !s.CompareTaint.Equal(o.CompareTaint) || !s.SloadTaint.Equal(o.SloadTaint) {
		return false
	}
	if !envEqual(s.Env, o.Env) {
		return false
	}
	if len(s.Balances) != len(o.Balances) || len(s.Storage) != len(o.Storage) {
		return false
	}
	for addr, balance := range s.Balances {
		other, ok := o.Balances[addr]
		if !ok || !balance.Eq(other) {
			return false
		}
	}
	for addr, account := range s.Storage {
		if !maps.Equal(account, o.Storage[addr]) {
			return false
		}
	}
	return true
}

func envEqual(a, b *evm.Env) bool {
	return a.Block.Number == b.Block.Number && a.Block.Timestamp == b.Block.Timestamp && a.Block.Hash == b.Block.Hash &&
		a.Tx.Caller == b.Tx.Caller && a.Tx.To == b.Tx.To && a.Tx.Value.Eq(b.Tx.Value) &&
		string(a.Tx.Data) == string(b.Tx.Data) && a.ChainID.Eq(b.ChainID)
}

func cloneBalances(balances map[common.Address]*uint256.Int) map[common.Address]*uint256.Int {
	c := make(map[common.Address]*uint256.Int, len(balances))
	for addr, balance := range balances {
		c[addr] = new(uint256.Int).Set(balance)
	}
	return c
}

// shallowSnapshot saves the environment and taint sets.
func (h *FuzzHost) shallowSnapshot() *Snapshot {
	return &Snapshot{
		Env:          h.env.Clone(),
		CompareTaint: h.compareTaint.Clone(),
		SloadTaint:   h.sloadTaint.Clone(),
		CallDepth:    h.callDepth,
	}
}

// deepSnapshot saves everything a victim replay may disturb.
func (h *FuzzHost) deepSnapshot() *Snapshot {
	s := h.shallowSnapshot()
	s.Balances = cloneBalances(h.balances)
	s.Storage = cloneSlots(h.journal.slots)
	s.deep = true
	return s
}

// Snapshot returns a deep snapshot of the current host state.
func (h *FuzzHost) Snapshot() *Snapshot {
	return h.deepSnapshot()
}

// restore puts back the state held by s. The bug flag is not part of a snapshot and survives the restore.
func (h *FuzzHost) restore(s *Snapshot) {
	*h.env = *s.Env
	h.compareTaint = s.CompareTaint
	h.sloadTaint = s.SloadTaint
	if s.deep {
		h.balances = s.Balances
		h.journal.slots = s.Storage
		h.callDepth = s.CallDepth
	}
}

// resetForVictim clears the state a victim replay must not observe.
func (h *FuzzHost) resetForVictim() {
	h.balances = make(map[common.Address]*uint256.Int)
	h.journal.slots = make(map[common.Address]map[uint256.Int]uint256.Int)
	h.compareTaint = mapset.NewThreadUnsafeSet[common.Address]()
	h.sloadTaint = mapset.NewThreadUnsafeSet[common.Address]()
	h.callDepth = 0
}
