package evm

import "github.com/holiman/uint256"

// StackLimit is the maximum number of words on an interpreter stack.
const StackLimit = 1024

// Stack is the word stack of a frame.
type Stack struct {
	data []uint256.Int
}

func newStack() *Stack {
	return &Stack{data: make([]uint256.Int, 0, 16)}
}

// Len returns the number of words on the stack.
func (st *Stack) Len() int {
	return len(st.data)
}

// Back returns the n-th word from the top, with 0 being the top.
func (st *Stack) Back(n int) *uint256.Int {
	return &st.data[len(st.data)-n-1]
}

// Data returns the stack contents, bottom first.
func (st *Stack) Data() []uint256.Int {
	return st.data
}

func (st *Stack) push(d *uint256.Int) {
	st.data = append(st.data, *d)
}

func (st *Stack) pop() uint256.Int {
	ret := st.data[len(st.data)-1]
	st.data = st.data[:len(st.data)-1]
	return ret
}

func (st *Stack) peek() *uint256.Int {
	return &st.data[len(st.data)-1]
}

// swap exchanges the top with the n-th word below it.
func (st *Stack) swap(n int) {
	top := len(st.data) - 1
	st.data[top], st.data[top-n] = st.data[top-n], st.data[top]
}

// dup pushes a copy of the n-th word, with 1 being the top.
func (st *Stack) dup(n int) {
	st.push(&st.data[len(st.data)-n])
}
