package types

import (
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func TestTransactionSelector(t *testing.T) {
	tx := &Transaction{Input: common.FromHex("0x2e1a7d4d0000000000000000000000000000000000000000000000000000000000000001")}
	assert.Equal(t, [4]byte{0x2e, 0x1a, 0x7d, 0x4d}, tx.Selector())
	assert.Equal(t, "0x2e1a7d4d", tx.SelectorHex())

	short := &Transaction{Input: []byte{0x01}}
	assert.Equal(t, [4]byte{}, short.Selector())
	assert.Equal(t, "0x00000000", short.SelectorHex())
}

func TestTransactionStateBlock(t *testing.T) {
	assert.Equal(t, uint64(17_999_999), (&Transaction{BlockNumber: 18_000_000}).StateBlock())
	assert.Equal(t, uint64(0), (&Transaction{}).StateBlock())
}

func TestTransactionValue(t *testing.T) {
	tx := &Transaction{}
	assert.True(t, tx.GetValue().IsZero())

	tx.Value = uint256.NewInt(10)
	v := tx.GetValue()
	v.SetUint64(1)
	assert.Equal(t, uint64(10), tx.Value.Uint64())
}
