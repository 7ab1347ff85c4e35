package onchain

import (
	"testing"

	"github.com/crytic/crossguard/dapp"
	"github.com/crytic/crossguard/evm"
	"github.com/crytic/crossguard/host"
	"github.com/crytic/crossguard/utils/testutils"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	caller   = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	creator  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	contract = common.HexToAddress("0x0000000000000000000000000000000000001001")
	remote   = common.HexToAddress("0x0000000000000000000000000000000000001002")
)

// mapProvider is a chain.DataProvider backed by maps. It records the blocks it was queried at.
type mapProvider struct {
	code     map[common.Address][]byte
	balances map[common.Address]uint64
	slots    map[common.Address]map[uint64]uint64
	creators map[common.Address]common.Address
	blocks   []uint64
	codeHits int
}

func newMapProvider() *mapProvider {
	return &mapProvider{
		code:     make(map[common.Address][]byte),
		balances: make(map[common.Address]uint64),
		slots:    make(map[common.Address]map[uint64]uint64),
		creators: make(map[common.Address]common.Address),
	}
}

func (p *mapProvider) GetContractCode(addr common.Address) []byte {
	p.codeHits++
	return p.code[addr]
}

func (p *mapProvider) GetContractBalance(addr common.Address, block uint64) *uint256.Int {
	p.blocks = append(p.blocks, block)
	return uint256.NewInt(p.balances[addr])
}

func (p *mapProvider) GetContractSlot(addr common.Address, slot *uint256.Int, block uint64) *uint256.Int {
	p.blocks = append(p.blocks, block)
	return uint256.NewInt(p.slots[addr][slot.Uint64()])
}

func (p *mapProvider) IsContract(addr common.Address) bool {
	return len(p.code[addr]) > 0
}

func (p *mapProvider) ResolveCreator(addr common.Address) common.Address {
	return p.creators[addr]
}

func (p *mapProvider) ForkBlock() uint64 {
	return 99
}

func newObservedHost(provider *mapProvider) *host.FuzzHost {
	table := dapp.NewDappInfo(map[common.Address]string{creator: "lending"})
	h := host.NewFuzzHost(dapp.NewResolver(provider, table))
	h.AddObserver(NewObserver(provider, provider.ForkBlock()))
	return h
}

func run(h *host.FuzzHost, addr common.Address) evm.InstructionResult {
	ctx := evm.CallContext{Address: addr, Caller: caller, CodeAddress: addr, ApparentValue: new(uint256.Int)}
	interp := evm.NewInterpreter(evm.NewContract(nil, h.Code(addr), &ctx), evm.DefaultGasLimit, false)
	return interp.Run(h)
}

func TestObserverFetchesSlots(t *testing.T) {
	provider := newMapProvider()
	provider.slots[contract] = map[uint64]uint64{1: 42}
	h := newObservedHost(provider)
	code := testutils.NewProgram().Sload(1).Push(2).Op(vm.SSTORE).Op(vm.STOP)
	h.SetCode(contract, code.Bytes())

	assert.Equal(t, evm.Stop, run(h, contract))
	value, ok := h.Journal().Get(contract, uint256.NewInt(2))
	require.True(t, ok)
	assert.Equal(t, uint64(42), value.Uint64())
	assert.Equal(t, []uint64{99}, provider.blocks)
}

func TestObserverPrefersJournalSlots(t *testing.T) {
	provider := newMapProvider()
	provider.slots[contract] = map[uint64]uint64{1: 42}
	h := newObservedHost(provider)
	code := testutils.NewProgram().Sstore(1, 5).Sload(1).Push(2).Op(vm.SSTORE).Op(vm.STOP)
	h.SetCode(contract, code.Bytes())

	assert.Equal(t, evm.Stop, run(h, contract))
	value, _ := h.Journal().Get(contract, uint256.NewInt(2))
	assert.Equal(t, uint64(5), value.Uint64())
	assert.Empty(t, provider.blocks)
}

func TestObserverFetchesBalances(t *testing.T) {
	provider := newMapProvider()
	provider.balances[remote] = 7
	provider.balances[contract] = 3
	h := newObservedHost(provider)
	code := testutils.NewProgram().Push(remote).Op(vm.BALANCE, vm.POP, vm.SELFBALANCE, vm.POP, vm.STOP)
	h.SetCode(contract, code.Bytes())

	assert.Equal(t, evm.Stop, run(h, contract))
	balance, ok := h.KnownBalance(remote)
	require.True(t, ok)
	assert.Equal(t, uint64(7), balance.Uint64())
	balance, ok = h.KnownBalance(contract)
	require.True(t, ok)
	assert.Equal(t, uint64(3), balance.Uint64())
}

func TestObserverInstallsCodeBeforeCalls(t *testing.T) {
	provider := newMapProvider()
	provider.code[remote] = testutils.NewProgram().Sstore(9, 1).Op(vm.STOP).Bytes()
	provider.creators[remote] = creator
	provider.code[contract] = []byte{0x00}
	provider.creators[contract] = creator
	h := newObservedHost(provider)
	h.SetCode(contract, testutils.NewProgram().Call(nil, remote, 0, 0, 0).Call(nil, remote, 0, 0, 0).Op(vm.STOP).Bytes())

	assert.Equal(t, evm.Stop, run(h, contract))
	assert.True(t, h.HasCode(remote))
	_, ok := h.Journal().Get(remote, uint256.NewInt(9))
	assert.True(t, ok)
	assert.Equal(t, 1, provider.codeHits)
	assert.True(t, h.Resolver().Known(remote))
	assert.Equal(t, "lending", h.Resolver().Resolve(remote).Dapp)
}

func TestObserverSuppliesTransferBalances(t *testing.T) {
	provider := newMapProvider()
	provider.balances[contract] = 2
	h := newObservedHost(provider)
	h.SetCode(contract, testutils.NewProgram().Call(nil, remote, 5, 0, 0).Op(vm.STOP).Bytes())

	assert.Equal(t, evm.Stop, run(h, contract))
	balance, _ := h.KnownBalance(contract)
	assert.Equal(t, uint64(2), balance.Uint64())
	balance, ok := h.KnownBalance(remote)
	require.True(t, ok)
	assert.True(t, balance.IsZero())
}

func TestObserverLoadContract(t *testing.T) {
	provider := newMapProvider()
	provider.code[contract] = testutils.NewProgram().Op(vm.STOP).Bytes()
	provider.creators[contract] = creator
	table := dapp.NewDappInfo(map[common.Address]string{creator: "lending"})
	h := host.NewFuzzHost(dapp.NewResolver(provider, table))
	o := NewObserver(provider, provider.ForkBlock())
	h.AddObserver(o)

	o.LoadContract(h, contract)
	o.LoadContract(h, contract)
	o.LoadContract(h, remote)
	assert.True(t, h.HasCode(contract))
	assert.False(t, h.HasCode(remote))
	assert.Equal(t, 2, provider.codeHits)
	assert.True(t, h.Resolver().Known(contract))
	assert.True(t, h.Resolver().Resolve(remote).IsUnknown())
}
