package evm

import "github.com/holiman/uint256"

// MemoryLimit bounds how far a frame may expand its memory.
const MemoryLimit uint64 = 1 << 25

// Memory is the byte-addressed scratch space of a frame.
type Memory struct {
	store []byte
}

// Len returns the current memory size in bytes.
func (m *Memory) Len() int {
	return len(m.store)
}

// Data returns the raw memory.
func (m *Memory) Data() []byte {
	return m.store
}

func (m *Memory) resize(size uint64) {
	if uint64(len(m.store)) < size {
		m.store = append(m.store, make([]byte, size-uint64(len(m.store)))...)
	}
}

func (m *Memory) set(offset, size uint64, value []byte) {
	if size > 0 {
		copy(m.store[offset:offset+size], value)
	}
}

func (m *Memory) set32(offset uint64, val *uint256.Int) {
	b := val.Bytes32()
	copy(m.store[offset:offset+32], b[:])
}

func (m *Memory) getCopy(offset, size uint64) []byte {
	if size == 0 {
		return nil
	}
	cpy := make([]byte, size)
	copy(cpy, m.store[offset:offset+size])
	return cpy
}

func (m *Memory) getPtr(offset, size uint64) []byte {
	if size == 0 {
		return nil
	}
	return m.store[offset : offset+size]
}
