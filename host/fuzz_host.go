package host

import (
	"github.com/crytic/crossguard/dapp"
	"github.com/crytic/crossguard/evm"
	"github.com/crytic/crossguard/logging"
	"github.com/crytic/crossguard/types"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/crytic/medusa-geth/crypto"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"
)

// maxBalance is reported for accounts whose balance is unknown, so that unknown senders are always solvent.
var maxBalance = new(uint256.Int).SetAllOne()

// FuzzHost is the execution host of a detection run. It serves every state access of the interpreter from its own
// journal and ledger, and intercepts every sub-call. The first call crossing from one application into another
// triggers a replay of the victim transaction in an isolated state. A FuzzHost serves one run at a time and is not
// safe for concurrent use.
type FuzzHost struct {
	env *evm.Env

	code        map[common.Address]*evm.Bytecode
	pendingCode map[common.Address][]byte
	balances    map[common.Address]*uint256.Int
	journal     *StorageJournal
	nonces      map[common.Address]uint64

	compareTaint mapset.Set[common.Address]
	sloadTaint   mapset.Set[common.Address]
	callDepth    int
	nextSlot     *uint256.Int

	observers []Observer
	resolver  *dapp.Resolver

	logs     []Log
	logSeen  mapset.Set[common.Hash]
	fromArgs bool

	// inSession is set while a cross-application call and its victim replay are in progress.
	inSession bool
	// executingVictim is set while the victim transaction is being replayed.
	executingVictim bool
	// replayDisabled latches once a victim replay was attempted or ruled out.
	replayDisabled bool
	// entryFunction is the selector of the call that opened the current cross-application session.
	entryFunction [4]byte

	// origin and dependentSelector identify the call the victim must not be driven into.
	origin            common.Address
	dependentSelector [4]byte
	victim            *types.Transaction
	inputRecord       [][]byte

	replayCount int
	callCount   int

	// dispatch is the Host nested interpreters run against. It is the FuzzHost itself unless a wrapping host took
	// over call dispatch.
	dispatch evm.Host

	logger *logging.Logger
}

// Log is a log entry emitted during a run.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// NewFuzzHost creates a host resolving application identities through resolver. A nil resolver attributes every
// address to dapp.UnknownLabel.
func NewFuzzHost(resolver *dapp.Resolver) *FuzzHost {
	if resolver == nil {
		resolver = dapp.NewResolver(nil, nil)
	}
	h := &FuzzHost{
		env:          evm.NewEnv(),
		code:         make(map[common.Address]*evm.Bytecode),
		pendingCode:  make(map[common.Address][]byte),
		balances:     make(map[common.Address]*uint256.Int),
		journal:      NewStorageJournal(),
		nonces:       make(map[common.Address]uint64),
		compareTaint: mapset.NewThreadUnsafeSet[common.Address](),
		sloadTaint:   mapset.NewThreadUnsafeSet[common.Address](),
		nextSlot:     new(uint256.Int),
		resolver:     resolver,
		logSeen:      mapset.NewThreadUnsafeSet[common.Hash](),
		logger:       logging.GlobalLogger.NewSubLogger("module", logging.HOST_SERVICE),
	}
	h.dispatch = h
	return h
}

// SetDispatchHost makes nested interpreters run against host, which must forward to this FuzzHost for everything it
// does not override.
func (h *FuzzHost) SetDispatchHost(host evm.Host) {
	h.dispatch = host
}

// DispatchHost returns the Host nested interpreters run against.
func (h *FuzzHost) DispatchHost() evm.Host {
	return h.dispatch
}

// SetEnv replaces the environment.
func (h *FuzzHost) SetEnv(env *evm.Env) {
	*h.env = *env.Clone()
}

// Env returns the current environment.
func (h *FuzzHost) Env() *evm.Env {
	return h.env
}

// SetTarget sets the contract and the dependent function selector whose invocation by the victim proves a leak.
func (h *FuzzHost) SetTarget(origin common.Address, dependentSelector [4]byte) {
	h.origin = origin
	h.dependentSelector = dependentSelector
}

// SetVictim sets the transaction replayed at the first cross-application call.
func (h *FuzzHost) SetVictim(tx *types.Transaction) {
	h.victim = tx
}

// RecordInput adds a transaction input to the inputs checked for attacker-supplied addresses.
func (h *FuzzHost) RecordInput(input []byte) {
	h.inputRecord = append(h.inputRecord, append([]byte(nil), input...))
}

// Journal returns the storage journal of the run.
func (h *FuzzHost) Journal() *StorageJournal {
	return h.journal
}

// Resolver returns the application resolver of the host.
func (h *FuzzHost) Resolver() *dapp.Resolver {
	return h.resolver
}

// BugHit reports whether the victim was driven into the dependent function during this run.
func (h *FuzzHost) BugHit() bool {
	return h.journal.BugHit
}

// InSession reports whether a cross-application call is in progress.
func (h *FuzzHost) InSession() bool {
	return h.inSession
}

// ExecutingVictim reports whether the victim transaction is being replayed.
func (h *FuzzHost) ExecutingVictim() bool {
	return h.executingVictim
}

// ReplayDisabled reports whether victim replays are disabled for the rest of the run.
func (h *FuzzHost) ReplayDisabled() bool {
	return h.replayDisabled
}

// EntryFunction returns the selector of the call that opened the last cross-application session.
func (h *FuzzHost) EntryFunction() [4]byte {
	return h.entryFunction
}

// ReplayCount returns the number of victim replays performed.
func (h *FuzzHost) ReplayCount() int {
	return h.replayCount
}

// CallCount returns the number of dispatched sub-calls.
func (h *FuzzHost) CallCount() int {
	return h.callCount
}

// FromArgs reports whether the callee of the last call looked attacker-supplied.
func (h *FuzzHost) FromArgs() bool {
	return h.fromArgs
}

// CallDepth returns the current nesting of dispatched calls.
func (h *FuzzHost) CallDepth() int {
	return h.callDepth
}

// AddCallDepth enters a call frame.
func (h *FuzzHost) AddCallDepth() {
	h.callDepth++
}

// SubCallDepth leaves a call frame.
func (h *FuzzHost) SubCallDepth() {
	h.callDepth--
}

// CompareTaint returns the addresses that flowed into comparisons.
func (h *FuzzHost) CompareTaint() mapset.Set[common.Address] {
	return h.compareTaint
}

// SloadTaint returns the addresses that were read from storage.
func (h *FuzzHost) SloadTaint() mapset.Set[common.Address] {
	return h.sloadTaint
}

// SetNextSlot sets the value returned for storage slots absent from the journal.
func (h *FuzzHost) SetNextSlot(value *uint256.Int) {
	h.nextSlot = new(uint256.Int).Set(value)
}

// Logs returns the distinct logs emitted during the run.
func (h *FuzzHost) Logs() []Log {
	return h.logs
}

// KnownBalance returns the ledger balance of addr, if there is one.
func (h *FuzzHost) KnownBalance(addr common.Address) (*uint256.Int, bool) {
	balance, ok := h.balances[addr]
	if !ok {
		return nil, false
	}
	return new(uint256.Int).Set(balance), true
}

// SetBalance records the balance of addr in the ledger.
func (h *FuzzHost) SetBalance(addr common.Address, balance *uint256.Int) {
	h.balances[addr] = new(uint256.Int).Set(balance)
}

// Transfer moves value from source to target. Unknown senders are solvent and their balance stays unknown. Unknown
// receivers are not credited. It returns false if source cannot afford value.
func (h *FuzzHost) Transfer(source common.Address, target common.Address, value *uint256.Int) bool {
	if value == nil || value.IsZero() {
		return true
	}
	sourceBalance, known := h.balances[source]
	if !known {
		sourceBalance = maxBalance
	}
	if sourceBalance.Lt(value) {
		return false
	}
	if known {
		h.balances[source] = new(uint256.Int).Sub(sourceBalance, value)
	}
	if targetBalance, ok := h.balances[target]; ok {
		sum, overflow := new(uint256.Int).AddOverflow(targetBalance, value)
		if overflow {
			sum = new(uint256.Int).Set(maxBalance)
		}
		h.balances[target] = sum
	}
	return true
}

// SetCode registers code under addr and runs every observer's OnInsert.
func (h *FuzzHost) SetCode(addr common.Address, code []byte) {
	h.code[addr] = evm.NewBytecode(code)
	for _, o := range h.observers {
		o.OnInsert(h, addr, code)
	}
}

// QueueCode schedules code to be registered under addr after the current step's observers ran. Addresses that
// already have code are left untouched.
func (h *FuzzHost) QueueCode(addr common.Address, code []byte) {
	h.pendingCode[addr] = code
}

// HasCode reports whether code is registered under addr.
func (h *FuzzHost) HasCode(addr common.Address) bool {
	_, ok := h.code[addr]
	return ok
}

func (h *FuzzHost) applyPendingCode() {
	if len(h.pendingCode) == 0 {
		return
	}
	pending := h.pendingCode
	h.pendingCode = make(map[common.Address][]byte)
	for addr, code := range pending {
		if _, ok := h.code[addr]; !ok {
			h.SetCode(addr, code)
		}
	}
}

// Step runs the observers, then turns a storage write after a recorded bug into a leak, unless it happens inside a
// cross-application session. Comparison operands are recorded as addresses.
func (h *FuzzHost) Step(interp *evm.Interpreter) {
	h.InvokeStepObservers(interp)

	switch interp.Opcode() {
	case vm.SSTORE:
		if h.journal.BugHit && !h.inSession {
			interp.Halt(evm.CrossContractControlLeak)
		}
	case vm.LT, vm.GT, vm.SLT, vm.SGT, vm.EQ:
		if interp.Stack.Len() >= 2 {
			h.compareTaint.Add(evm.WordToAddress(interp.Stack.Back(0)))
			h.compareTaint.Add(evm.WordToAddress(interp.Stack.Back(1)))
		}
	}
}

func (h *FuzzHost) StepEnd(*evm.Interpreter) {}

// LoadAccount always succeeds. Accounts materialize lazily.
func (h *FuzzHost) LoadAccount(common.Address) bool {
	return true
}

// BlockHash returns the environment's block hash for blocks up to the current one, and zero otherwise.
func (h *FuzzHost) BlockHash(number *uint256.Int) common.Hash {
	if number.IsUint64() && number.Uint64() <= h.env.Block.Number {
		return h.env.Block.Hash
	}
	return common.Hash{}
}

// Balance returns the ledger balance of addr, or the maximal value if it is unknown.
func (h *FuzzHost) Balance(addr common.Address) *uint256.Int {
	if balance, ok := h.balances[addr]; ok {
		return new(uint256.Int).Set(balance)
	}
	return new(uint256.Int).Set(maxBalance)
}

// Code returns the code registered under addr, or empty code.
func (h *FuzzHost) Code(addr common.Address) *evm.Bytecode {
	if code, ok := h.code[addr]; ok {
		return code
	}
	return evm.EmptyBytecode
}

// CodeHash returns the hash of Code(addr).
func (h *FuzzHost) CodeHash(addr common.Address) common.Hash {
	return h.Code(addr).Hash()
}

// SLoad returns the journal value of slot, or the next-slot placeholder if it was never written. The returned
// value is recorded as an address in the storage taint.
func (h *FuzzHost) SLoad(addr common.Address, slot *uint256.Int) *uint256.Int {
	value, ok := h.journal.Get(addr, slot)
	if !ok {
		value = new(uint256.Int).Set(h.nextSlot)
	}
	h.sloadTaint.Add(evm.WordToAddress(value))
	return value
}

// SStore writes the journal.
func (h *FuzzHost) SStore(addr common.Address, slot *uint256.Int, value *uint256.Int) {
	h.journal.Insert(addr, slot, value)
}

// Log records a log entry once per distinct data payload.
func (h *FuzzHost) Log(addr common.Address, topics []common.Hash, data []byte) {
	key := crypto.Keccak256Hash(data)
	if !h.logSeen.Add(key) {
		return
	}
	h.logs = append(h.logs, Log{Address: addr, Topics: topics, Data: data})
}

// SelfDestruct moves a known balance of addr to target.
func (h *FuzzHost) SelfDestruct(addr common.Address, target common.Address) {
	balance, ok := h.balances[addr]
	if !ok {
		return
	}
	h.balances[addr] = new(uint256.Int)
	if addr == target {
		h.balances[addr] = balance
		return
	}
	if targetBalance, ok := h.balances[target]; ok {
		sum, overflow := new(uint256.Int).AddOverflow(targetBalance, balance)
		if overflow {
			sum = new(uint256.Int).Set(maxBalance)
		}
		h.balances[target] = sum
	} else {
		h.balances[target] = balance
	}
}

