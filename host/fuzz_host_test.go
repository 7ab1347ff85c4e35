package host

import (
	"testing"

	"github.com/crytic/crossguard/dapp"
	"github.com/crytic/crossguard/evm"
	"github.com/crytic/crossguard/types"
	"github.com/crytic/crossguard/utils/testutils"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/crytic/medusa-geth/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	user           = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	protoCreator   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	attackCreator  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	targetAddr     = common.HexToAddress("0x0000000000000000000000000000000000001001")
	siblingAddr    = common.HexToAddress("0x0000000000000000000000000000000000001002")
	victimAddr     = common.HexToAddress("0x0000000000000000000000000000000000001003")
	attackerAddr   = common.HexToAddress("0x0000000000000000000000000000000000002001")
	attacker2Addr  = common.HexToAddress("0x0000000000000000000000000000000000002002")
	dependentSel   = [4]byte{0xde, 0xad, 0xbe, 0xef}
	entrySel       = [4]byte{0x12, 0x34, 0x56, 0x78}
	identityPrecmp = common.BytesToAddress([]byte{0x04})
)

// creatorSource is a dapp.CreatorSource backed by a map.
type creatorSource map[common.Address]common.Address

func (c creatorSource) IsContract(addr common.Address) bool {
	_, ok := c[addr]
	return ok
}

func (c creatorSource) ResolveCreator(addr common.Address) common.Address {
	return c[addr]
}

// recordingObserver records sub-call results and the deepest call depth seen.
type recordingObserver struct {
	BaseObserver
	results  []evm.InstructionResult
	maxDepth int
	inserts  []common.Address
}

func (o *recordingObserver) OnStep(_ *evm.Interpreter, h *FuzzHost) {
	if h.CallDepth() > o.maxDepth {
		o.maxDepth = h.CallDepth()
	}
}

func (o *recordingObserver) OnReturn(_ *evm.Interpreter, _ *FuzzHost, result evm.InstructionResult, _ []byte) {
	o.results = append(o.results, result)
}

func (o *recordingObserver) OnInsert(_ *FuzzHost, addr common.Address, _ []byte) {
	o.inserts = append(o.inserts, addr)
}

// newTestHost creates a host where the target, its sibling and the victim contract belong to "proto" and the
// attacker contracts to an unlabelled creator.
func newTestHost(t *testing.T) (*FuzzHost, *recordingObserver) {
	t.Helper()
	source := creatorSource{
		targetAddr:    protoCreator,
		siblingAddr:   protoCreator,
		victimAddr:    protoCreator,
		attackerAddr:  attackCreator,
		attacker2Addr: attackCreator,
	}
	table := dapp.NewDappInfo(map[common.Address]string{protoCreator: "proto"})
	h := NewFuzzHost(dapp.NewResolver(source, table))
	observer := &recordingObserver{}
	h.AddObserver(observer)
	h.SetTarget(targetAddr, dependentSel)
	return h, observer
}

// runFrame runs the code of addr as a top level frame called by caller.
func runFrame(h *FuzzHost, addr common.Address, caller common.Address, input []byte) evm.InstructionResult {
	ctx := evm.CallContext{Address: addr, Caller: caller, CodeAddress: addr, ApparentValue: new(uint256.Int), Scheme: evm.Call}
	interp := evm.NewInterpreter(evm.NewContract(input, h.Code(addr), &ctx), evm.DefaultGasLimit, false)
	return interp.Run(h.DispatchHost())
}

// victimTx is a victim that writes its own storage, then calls the dependent function of the target.
func victimTx(h *FuzzHost) *types.Transaction {
	code := testutils.NewProgram().Sstore(1, 7).CallSelector(nil, targetAddr, 0, dependentSel).Op(vm.STOP)
	h.SetCode(victimAddr, code.Bytes())
	return &types.Transaction{
		Hash:        common.HexToHash("0xbeef"),
		BlockNumber: 100,
		Timestamp:   1_700_000_000,
		From:        user,
		To:          victimAddr,
		Input:       []byte{0xaa, 0xbb, 0xcc, 0xdd},
	}
}

func TestSameApplicationCallRunsNatively(t *testing.T) {
	h, observer := newTestHost(t)
	h.SetVictim(victimTx(h))
	h.SetCode(siblingAddr, testutils.NewProgram().Sstore(3, 9).ReturnData([]byte{1, 2, 3}).Bytes())
	h.SetCode(targetAddr, testutils.NewProgram().CallSelector(nil, siblingAddr, 0, entrySel).Op(vm.STOP).Bytes())

	result := runFrame(h, targetAddr, user, nil)
	assert.Equal(t, evm.Stop, result)
	assert.Equal(t, []evm.InstructionResult{evm.Return}, observer.results)
	assert.Equal(t, 0, h.ReplayCount())
	assert.Equal(t, 1, h.CallCount())
	assert.False(t, h.ReplayDisabled())
	assert.False(t, h.InSession())

	value, ok := h.Journal().Get(siblingAddr, uint256.NewInt(3))
	require.True(t, ok)
	assert.Equal(t, uint64(9), value.Uint64())
}

func TestCrossApplicationCallDetectsLeak(t *testing.T) {
	h, _ := newTestHost(t)
	h.SetVictim(victimTx(h))
	h.SetCode(attackerAddr, testutils.NewProgram().Op(vm.STOP).Bytes())
	h.SetCode(targetAddr, testutils.NewProgram().CallSelector(nil, attackerAddr, 0, entrySel).Sstore(5, 5).Op(vm.STOP).Bytes())
	h.SetBalance(targetAddr, uint256.NewInt(1000))
	h.SetBalance(victimAddr, uint256.NewInt(10))
	h.Journal().Insert(targetAddr, uint256.NewInt(2), uint256.NewInt(22))
	h.Env().Block.Number = 200

	before := h.Snapshot()
	result := runFrame(h, targetAddr, user, nil)

	assert.Equal(t, evm.CrossContractControlLeak, result)
	assert.True(t, h.BugHit())
	assert.Equal(t, 1, h.ReplayCount())
	assert.True(t, h.ReplayDisabled())
	assert.False(t, h.InSession())
	assert.False(t, h.ExecutingVictim())
	assert.Equal(t, entrySel, h.EntryFunction())

	// The victim's storage write and block environment were rolled back
	after := h.Snapshot()
	assert.True(t, before.Equal(after))
	_, ok := h.Journal().Get(victimAddr, uint256.NewInt(1))
	assert.False(t, ok)
	assert.Equal(t, uint64(200), h.Env().Block.Number)
}

func TestVictimWithoutCallbackIsNotALeak(t *testing.T) {
	h, _ := newTestHost(t)
	h.SetCode(victimAddr, testutils.NewProgram().Sstore(1, 7).Op(vm.STOP).Bytes())
	h.SetVictim(&types.Transaction{From: user, To: victimAddr, Input: []byte{1, 2, 3, 4}})
	h.SetCode(attackerAddr, testutils.NewProgram().Op(vm.STOP).Bytes())
	h.SetCode(targetAddr, testutils.NewProgram().CallSelector(nil, attackerAddr, 0, entrySel).Op(vm.STOP).Bytes())

	result := runFrame(h, targetAddr, user, nil)
	assert.Equal(t, evm.Stop, result)
	assert.Equal(t, 1, h.ReplayCount())
	assert.False(t, h.BugHit())
	assert.Equal(t, 0, h.Journal().Len())
}

func TestStipendCallLatchesReplay(t *testing.T) {
	h, observer := newTestHost(t)
	h.SetVictim(victimTx(h))
	h.SetBalance(targetAddr, uint256.NewInt(10))
	h.SetBalance(attackerAddr, new(uint256.Int))
	h.SetCode(attackerAddr, testutils.NewProgram().Op(vm.STOP).Bytes())
	code := testutils.NewProgram().
		Call(new(uint256.Int), attackerAddr, 1, 0, 0).
		Op(vm.POP).
		CallSelector(nil, attacker2Addr, 0, entrySel).
		Op(vm.STOP)
	h.SetCode(targetAddr, code.Bytes())

	result := runFrame(h, targetAddr, user, nil)
	assert.Equal(t, evm.Stop, result)
	assert.Equal(t, []evm.InstructionResult{evm.Stop, evm.Stop}, observer.results)
	assert.Equal(t, 0, h.ReplayCount())
	assert.True(t, h.ReplayDisabled())
	assert.False(t, h.BugHit())

	targetBalance, _ := h.KnownBalance(targetAddr)
	attackerBalance, _ := h.KnownBalance(attackerAddr)
	assert.Equal(t, uint64(9), targetBalance.Uint64())
	assert.Equal(t, uint64(1), attackerBalance.Uint64())
}

func TestFailedCrossingLatchesReplay(t *testing.T) {
	h, observer := newTestHost(t)
	h.SetVictim(victimTx(h))
	h.SetCode(attackerAddr, testutils.NewProgram().Revert().Bytes())
	h.SetCode(attacker2Addr, testutils.NewProgram().Op(vm.STOP).Bytes())
	code := testutils.NewProgram().
		CallSelector(nil, attackerAddr, 0, entrySel).
		Op(vm.POP).
		CallSelector(nil, attacker2Addr, 0, entrySel).
		Op(vm.STOP)
	h.SetCode(targetAddr, code.Bytes())

	result := runFrame(h, targetAddr, user, nil)
	assert.Equal(t, evm.Stop, result)
	assert.Equal(t, []evm.InstructionResult{evm.Revert, evm.Stop}, observer.results)
	assert.Equal(t, 0, h.ReplayCount())
	assert.True(t, h.ReplayDisabled())
}

func TestMissingVictimInputSkipsReplay(t *testing.T) {
	h, _ := newTestHost(t)
	h.SetVictim(&types.Transaction{From: user, To: victimAddr})
	h.SetCode(targetAddr, testutils.NewProgram().CallSelector(nil, attackerAddr, 0, entrySel).Op(vm.STOP).Bytes())

	assert.Equal(t, evm.Stop, runFrame(h, targetAddr, user, nil))
	assert.Equal(t, 0, h.ReplayCount())
	assert.True(t, h.ReplayDisabled())
}

func TestInsufficientFundsAbortsCall(t *testing.T) {
	h, observer := newTestHost(t)
	h.SetVictim(victimTx(h))
	h.SetBalance(targetAddr, uint256.NewInt(4))
	h.SetBalance(attackerAddr, uint256.NewInt(0))
	h.SetCode(attackerAddr, testutils.NewProgram().Sstore(1, 1).Op(vm.STOP).Bytes())
	h.SetCode(targetAddr, testutils.NewProgram().Call(nil, attackerAddr, 5, 0, 0).Op(vm.STOP).Bytes())

	before := h.Snapshot()
	result := runFrame(h, targetAddr, user, nil)
	assert.Equal(t, evm.Stop, result)
	assert.Equal(t, []evm.InstructionResult{evm.OutOfFund}, observer.results)
	assert.True(t, before.Equal(h.Snapshot()))
	assert.Equal(t, 0, h.ReplayCount())
	assert.False(t, h.ReplayDisabled())
}

func TestBugHitIsSticky(t *testing.T) {
	h, _ := newTestHost(t)
	h.Journal().BugHit = true
	h.SetCode(siblingAddr, testutils.NewProgram().Sstore(1, 1).Op(vm.STOP).Bytes())
	h.SetCode(targetAddr, testutils.NewProgram().CallSelector(nil, siblingAddr, 0, entrySel).Op(vm.STOP).Bytes())

	result := runFrame(h, targetAddr, user, nil)
	assert.Equal(t, evm.CrossContractControlLeak, result)
	assert.Equal(t, 0, h.Journal().Len())
	assert.True(t, h.BugHit())

	// Still converted on a later frame of the same run
	assert.Equal(t, evm.CrossContractControlLeak, runFrame(h, siblingAddr, user, nil))
}

func TestCallDepthIsSymmetric(t *testing.T) {
	h, observer := newTestHost(t)
	h.SetCode(victimAddr, testutils.NewProgram().Revert().Bytes())
	h.SetCode(siblingAddr, testutils.NewProgram().CallSelector(nil, victimAddr, 0, entrySel).Op(vm.STOP).Bytes())
	code := testutils.NewProgram().
		CallSelector(nil, siblingAddr, 0, entrySel).
		Op(vm.POP).
		CallSelector(nil, victimAddr, 0, entrySel).
		Op(vm.STOP)
	h.SetCode(targetAddr, code.Bytes())

	assert.Equal(t, evm.Stop, runFrame(h, targetAddr, user, nil))
	assert.Equal(t, 2, observer.maxDepth)
	assert.Equal(t, 0, h.CallDepth())
	assert.Equal(t, []evm.InstructionResult{evm.Revert, evm.Stop, evm.Revert}, observer.results)
}

func TestPrecompileBypassesDispatch(t *testing.T) {
	h, observer := newTestHost(t)
	ctx := evm.CallContext{Address: targetAddr, Caller: user, CodeAddress: targetAddr, ApparentValue: new(uint256.Int)}
	interp := evm.NewInterpreter(evm.NewContract(nil, nil, &ctx), evm.DefaultGasLimit, false)

	input := []byte("echo")
	inputs := &evm.CallInputs{
		Contract: identityPrecmp,
		Input:    input,
		GasLimit: 100_000,
		Context:  evm.CallContext{Address: identityPrecmp, Caller: targetAddr, CodeAddress: identityPrecmp, ApparentValue: new(uint256.Int)},
	}
	result, output := h.Call(inputs, interp)
	assert.Equal(t, evm.Return, result)
	assert.Equal(t, input, output)
	assert.Equal(t, 0, h.CallCount())
	assert.Equal(t, 0, h.CallDepth())
	assert.Equal(t, []evm.InstructionResult{evm.Return}, observer.results)

	inputs.GasLimit = 1
	result, _ = h.Call(inputs, interp)
	assert.Equal(t, evm.OutOfGas, result)
}

func TestCreateRegistersCode(t *testing.T) {
	h, observer := newTestHost(t)
	runtime := testutils.NewProgram().Push(1).Op(vm.STOP).Bytes()
	initCode := testutils.DeployCode(runtime)
	code := testutils.NewProgram().
		Mstore(initCode, 0).
		Push(len(initCode)).Push(0).Push(0).Op(vm.CREATE).
		Push(0).Op(vm.SSTORE).
		Op(vm.STOP)
	h.SetCode(targetAddr, code.Bytes())

	assert.Equal(t, evm.Stop, runFrame(h, targetAddr, user, nil))
	created := crypto.CreateAddress(targetAddr, 0)
	assert.Equal(t, runtime, h.Code(created).Bytes())
	assert.Contains(t, observer.inserts, created)

	stored, ok := h.Journal().Get(targetAddr, new(uint256.Int))
	require.True(t, ok)
	assert.Equal(t, created, evm.WordToAddress(stored))

	// A second creation from the same caller uses the next nonce
	assert.Equal(t, evm.Stop, runFrame(h, targetAddr, user, nil))
	assert.Equal(t, runtime, h.Code(crypto.CreateAddress(targetAddr, 1)).Bytes())
}

func TestCreateCollision(t *testing.T) {
	h, _ := newTestHost(t)
	initCode := testutils.DeployCode([]byte{0x00})
	salt := uint256.NewInt(7)
	addr := crypto.CreateAddress2(targetAddr, salt.Bytes32(), crypto.Keccak256(initCode))
	h.SetCode(addr, []byte{0x01})

	ctx := evm.CallContext{Address: targetAddr, Caller: user, CodeAddress: targetAddr, ApparentValue: new(uint256.Int)}
	interp := evm.NewInterpreter(evm.NewContract(nil, nil, &ctx), evm.DefaultGasLimit, false)
	result, created, _ := h.Create(&evm.CreateInputs{
		Caller:   targetAddr,
		Scheme:   evm.Create2,
		Value:    new(uint256.Int),
		InitCode: initCode,
		GasLimit: 1_000_000,
		Salt:     salt,
	}, interp)
	assert.Equal(t, evm.CreateCollision, result)
	assert.Nil(t, created)
}

func TestFailedCreateRegistersOutput(t *testing.T) {
	h, _ := newTestHost(t)
	output := []byte{0xfe, 0xed}
	initCode := testutils.NewProgram().Mstore(output, 0).Push(len(output)).Push(0).Op(vm.REVERT).Bytes()

	ctx := evm.CallContext{Address: targetAddr, Caller: user, CodeAddress: targetAddr, ApparentValue: new(uint256.Int)}
	interp := evm.NewInterpreter(evm.NewContract(nil, nil, &ctx), evm.DefaultGasLimit, false)
	result, created, returned := h.Create(&evm.CreateInputs{
		Caller:   targetAddr,
		Scheme:   evm.Create,
		Value:    new(uint256.Int),
		InitCode: initCode,
		GasLimit: 1_000_000,
	}, interp)
	assert.Equal(t, evm.Revert, result)
	require.NotNil(t, created)
	assert.Equal(t, crypto.CreateAddress(targetAddr, 0), *created)
	assert.Equal(t, output, returned)
	assert.Equal(t, output, h.Code(*created).Bytes())

	// The creating frame sees a zero address
	code := testutils.NewProgram().
		Mstore(initCode, 0).
		Push(len(initCode)).Push(0).Push(0).Op(vm.CREATE).
		Op(vm.ISZERO).Push(0).Op(vm.SSTORE).
		Op(vm.STOP)
	h.SetCode(targetAddr, code.Bytes())
	assert.Equal(t, evm.Stop, runFrame(h, targetAddr, user, nil))
	stored, ok := h.Journal().Get(targetAddr, new(uint256.Int))
	require.True(t, ok)
	assert.Equal(t, uint64(1), stored.Uint64())
	assert.Equal(t, output, h.Code(crypto.CreateAddress(targetAddr, 1)).Bytes())
}

func TestCreate2RegistersCode(t *testing.T) {
	h, observer := newTestHost(t)
	runtime := testutils.NewProgram().Push(2).Op(vm.STOP).Bytes()
	initCode := testutils.DeployCode(runtime)
	salt := uint256.NewInt(7)
	code := testutils.NewProgram().
		Mstore(initCode, 0).
		Push(salt).Push(len(initCode)).Push(0).Push(0).Op(vm.CREATE2).
		Push(0).Op(vm.SSTORE).
		Op(vm.STOP)
	h.SetCode(targetAddr, code.Bytes())

	assert.Equal(t, evm.Stop, runFrame(h, targetAddr, user, nil))
	created := crypto.CreateAddress2(targetAddr, salt.Bytes32(), crypto.Keccak256(initCode))
	assert.Equal(t, runtime, h.Code(created).Bytes())
	assert.Contains(t, observer.inserts, created)

	stored, ok := h.Journal().Get(targetAddr, new(uint256.Int))
	require.True(t, ok)
	assert.Equal(t, created, evm.WordToAddress(stored))
}

func TestTransfer(t *testing.T) {
	h := NewFuzzHost(nil)
	known := common.HexToAddress("0x01")
	other := common.HexToAddress("0x02")
	unknown := common.HexToAddress("0x03")

	h.SetBalance(known, uint256.NewInt(10))
	h.SetBalance(other, uint256.NewInt(1))

	assert.False(t, h.Transfer(known, other, uint256.NewInt(11)))
	assert.True(t, h.Transfer(known, other, uint256.NewInt(4)))
	balance, _ := h.KnownBalance(known)
	assert.Equal(t, uint64(6), balance.Uint64())
	balance, _ = h.KnownBalance(other)
	assert.Equal(t, uint64(5), balance.Uint64())

	// Unknown senders are solvent and stay unknown, unknown receivers are not credited
	assert.True(t, h.Transfer(unknown, other, uint256.NewInt(100)))
	_, ok := h.KnownBalance(unknown)
	assert.False(t, ok)
	assert.True(t, h.Transfer(known, unknown, uint256.NewInt(1)))
	_, ok = h.KnownBalance(unknown)
	assert.False(t, ok)
	assert.True(t, h.Balance(unknown).Eq(maxBalance))
}

func TestSLoadTaintAndPlaceholder(t *testing.T) {
	h := NewFuzzHost(nil)
	placeholder := new(uint256.Int).SetBytes(attackerAddr.Bytes())
	h.SetNextSlot(placeholder)

	value := h.SLoad(targetAddr, uint256.NewInt(1))
	assert.True(t, value.Eq(placeholder))
	assert.True(t, h.SloadTaint().Contains(attackerAddr))

	h.SStore(targetAddr, uint256.NewInt(1), uint256.NewInt(5))
	assert.Equal(t, uint64(5), h.SLoad(targetAddr, uint256.NewInt(1)).Uint64())
	assert.True(t, h.SloadTaint().Contains(common.BytesToAddress([]byte{5})))
}

func TestCompareTaintAndInputProvenance(t *testing.T) {
	h, _ := newTestHost(t)
	word := common.BytesToHash(attackerAddr.Bytes())
	input := append(entrySel[:], word.Bytes()...)
	h.RecordInput(input)

	assert.True(t, h.inputContainsAddress(input, attackerAddr, targetAddr))
	assert.False(t, h.inputContainsAddress(input, attacker2Addr, targetAddr))

	// Addresses embedded in the caller's code are not attacker supplied
	h.SetCode(siblingAddr, testutils.NewProgram().Push(attackerAddr).Op(vm.POP).Bytes())
	assert.False(t, h.inputContainsAddress(input, attackerAddr, siblingAddr))

	// Compared addresses are no longer attacker supplied
	h.SetCode(targetAddr, testutils.NewProgram().Push(attackerAddr).Push(attackerAddr).Op(vm.EQ, vm.STOP).Bytes())
	runFrame(h, targetAddr, user, nil)
	assert.True(t, h.CompareTaint().Contains(attackerAddr))
	assert.False(t, h.inputContainsAddress(input, attackerAddr, victimAddr))
}

// forwarderCode calls the address passed as the first argument of its call data.
func forwarderCode() []byte {
	return testutils.NewProgram().
		Push(0).Push(0).Push(0).Push(0).Push(0).
		Push(4).Op(vm.CALLDATALOAD).
		Op(vm.GAS, vm.CALL, vm.STOP).
		Bytes()
}

func TestCalleeFromCallerInputIsSuspicious(t *testing.T) {
	h, _ := newTestHost(t)
	word := common.BytesToHash(attackerAddr.Bytes())
	h.RecordInput(append(entrySel[:], word.Bytes()...))
	h.SetCode(attackerAddr, testutils.NewProgram().Op(vm.STOP).Bytes())
	h.SetCode(siblingAddr, forwarderCode())
	h.SetCode(targetAddr, testutils.NewProgram().CallSelector(nil, siblingAddr, 0, entrySel, word).Op(vm.STOP).Bytes())

	assert.Equal(t, evm.Stop, runFrame(h, targetAddr, user, nil))
	assert.Equal(t, 2, h.CallCount())
	assert.True(t, h.FromArgs())

	// An address the caller did not receive is not suspicious
	h.SetCode(siblingAddr, testutils.NewProgram().CallSelector(nil, attackerAddr, 0, entrySel).Op(vm.STOP).Bytes())
	h.SetCode(targetAddr, testutils.NewProgram().CallSelector(nil, siblingAddr, 0, entrySel).Op(vm.STOP).Bytes())
	assert.Equal(t, evm.Stop, runFrame(h, targetAddr, user, nil))
	assert.False(t, h.FromArgs())
}

func TestVictimReplayClearsSuspicion(t *testing.T) {
	h, _ := newTestHost(t)
	h.SetCode(victimAddr, testutils.NewProgram().Sstore(1, 7).Op(vm.STOP).Bytes())
	h.SetVictim(&types.Transaction{From: user, To: victimAddr, Input: []byte{1, 2, 3, 4}})
	word := common.BytesToHash(attackerAddr.Bytes())
	h.RecordInput(append(entrySel[:], word.Bytes()...))
	h.SetCode(attackerAddr, testutils.NewProgram().Op(vm.STOP).Bytes())
	h.SetCode(siblingAddr, forwarderCode())
	h.SetCode(targetAddr, testutils.NewProgram().CallSelector(nil, siblingAddr, 0, entrySel, word).Op(vm.STOP).Bytes())

	assert.Equal(t, evm.Stop, runFrame(h, targetAddr, user, nil))
	assert.Equal(t, 1, h.ReplayCount())
	assert.False(t, h.FromArgs())
}

func TestLogsAreDeduplicated(t *testing.T) {
	h := NewFuzzHost(nil)
	code := testutils.NewProgram().
		Mstore([]byte("payload"), 0).
		Push(7).Push(0).Op(vm.LOG0).
		Push(7).Push(0).Op(vm.LOG0).
		Op(vm.STOP)
	h.SetCode(targetAddr, code.Bytes())

	assert.Equal(t, evm.Stop, runFrame(h, targetAddr, user, nil))
	require.Len(t, h.Logs(), 1)
	assert.Equal(t, []byte("payload"), h.Logs()[0].Data)
}

// queueingObserver queues code for an address on every step.
type queueingObserver struct {
	BaseObserver
	addr common.Address
	code []byte
}

func (o *queueingObserver) OnStep(_ *evm.Interpreter, h *FuzzHost) {
	h.QueueCode(o.addr, o.code)
}

func TestPendingCodeIsInstalledAfterObservers(t *testing.T) {
	h := NewFuzzHost(nil)
	h.SetCode(siblingAddr, []byte{0x01})
	h.AddObserver(&queueingObserver{addr: attackerAddr, code: []byte{0x00}})
	h.AddObserver(&queueingObserver{addr: siblingAddr, code: []byte{0x02}})
	h.SetCode(targetAddr, testutils.NewProgram().Op(vm.STOP).Bytes())

	assert.Equal(t, evm.Stop, runFrame(h, targetAddr, user, nil))
	assert.True(t, h.HasCode(attackerAddr))
	// Existing code is never replaced
	assert.Equal(t, []byte{0x01}, h.Code(siblingAddr).Bytes())
}

func TestSnapshotRestoreKeepsBugHit(t *testing.T) {
	h := NewFuzzHost(nil)
	h.SetBalance(targetAddr, uint256.NewInt(3))
	h.SStore(targetAddr, uint256.NewInt(1), uint256.NewInt(1))
	saved := h.deepSnapshot()

	h.resetForVictim()
	h.SStore(victimAddr, uint256.NewInt(1), uint256.NewInt(1))
	h.Journal().BugHit = true
	h.AddCallDepth()
	assert.False(t, saved.Equal(h.Snapshot()))

	h.restore(saved)
	assert.True(t, saved.Equal(h.Snapshot()))
	assert.True(t, h.BugHit())
	assert.Equal(t, 0, h.CallDepth())
}
