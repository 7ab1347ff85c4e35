package replay

import (
	"encoding/json"
	"fmt"

	"github.com/crytic/crossguard/dapp"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"golang.org/x/exp/slices"
)

// RecordKey identifies the counters of one function of one contract of an application.
type RecordKey struct {
	Dapp     string
	Contract common.Address
	Selector [4]byte
}

// String renders the key as "dapp_contract_selector".
func (k RecordKey) String() string {
	return fmt.Sprintf("%s_%s_%s", k.Dapp, k.Contract.Hex(), hexutil.Encode(k.Selector[:]))
}

// DappRecordData accumulates per-application storage and invocation counts of a replayed transaction, along with the
// proxy relations inferred from delegatecalls.
type DappRecordData struct {
	reads   map[RecordKey]uint64
	writes  map[RecordKey]uint64
	invokes map[RecordKey]uint64

	// contractToLogic maps a proxy to the logic contract it delegates to.
	contractToLogic map[common.Address]common.Address
	// logicToStorage maps a logic contract to the proxy holding its storage.
	logicToStorage map[common.Address]common.Address
}

// NewDappRecordData returns empty records.
func NewDappRecordData() *DappRecordData {
	return &DappRecordData{
		reads:           make(map[RecordKey]uint64),
		writes:          make(map[RecordKey]uint64),
		invokes:         make(map[RecordKey]uint64),
		contractToLogic: make(map[common.Address]common.Address),
		logicToStorage:  make(map[common.Address]common.Address),
	}
}

func keyOf(info dapp.CreatorDapp, selector [4]byte) RecordKey {
	return RecordKey{Dapp: info.Dapp, Contract: info.Contract, Selector: selector}
}

// AddRead counts a storage read by selector of info's contract.
func (d *DappRecordData) AddRead(info dapp.CreatorDapp, selector [4]byte) {
	d.reads[keyOf(info, selector)]++
}

// AddWrite counts a storage write by selector of info's contract.
func (d *DappRecordData) AddWrite(info dapp.CreatorDapp, selector [4]byte) {
	d.writes[keyOf(info, selector)]++
}

// AddInvoke counts an invocation of selector on info's contract. Unattributed contracts are keyed under their own
// address so that they do not merge into a single "unknown" application.
func (d *DappRecordData) AddInvoke(info dapp.CreatorDapp, selector [4]byte) {
	key := keyOf(info, selector)
	if info.IsUnknown() {
		key.Dapp = info.Contract.Hex() + info.Dapp
	}
	d.invokes[key]++
}

// AddDappContract records that proxy delegates its logic to logic.
func (d *DappRecordData) AddDappContract(proxy common.Address, logic common.Address) {
	d.contractToLogic[proxy] = logic
	d.logicToStorage[logic] = proxy
}

// Reads returns the read count of key.
func (d *DappRecordData) Reads(key RecordKey) uint64 {
	return d.reads[key]
}

// Writes returns the write count of key.
func (d *DappRecordData) Writes(key RecordKey) uint64 {
	return d.writes[key]
}

// Invokes returns the invocation count of key.
func (d *DappRecordData) Invokes(key RecordKey) uint64 {
	return d.invokes[key]
}

// LogicContract returns the logic contract proxy delegates to, if one was inferred.
func (d *DappRecordData) LogicContract(proxy common.Address) (common.Address, bool) {
	logic, ok := d.contractToLogic[proxy]
	return logic, ok
}

// StorageContract returns the proxy holding the storage of logic, if one was inferred.
func (d *DappRecordData) StorageContract(logic common.Address) (common.Address, bool) {
	proxy, ok := d.logicToStorage[logic]
	return proxy, ok
}

// ContractToLogic returns a copy of the inferred proxy to logic contract relation.
func (d *DappRecordData) ContractToLogic() map[common.Address]common.Address {
	c := make(map[common.Address]common.Address, len(d.contractToLogic))
	for proxy, logic := range d.contractToLogic {
		c[proxy] = logic
	}
	return c
}

func renderCounts(counts map[RecordKey]uint64) map[string]uint64 {
	rendered := make(map[string]uint64, len(counts))
	for key, count := range counts {
		rendered[key.String()] = count
	}
	return rendered
}

// InvokedKeys returns the keys with at least one invocation, sorted by their string form.
func (d *DappRecordData) InvokedKeys() []RecordKey {
	keys := make([]RecordKey, 0, len(d.invokes))
	for key := range d.invokes {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b RecordKey) int {
		if a.String() < b.String() {
			return -1
		}
		if a.String() > b.String() {
			return 1
		}
		return 0
	})
	return keys
}

// MarshalJSON encodes the records with "dapp_contract_selector" keys.
func (d *DappRecordData) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Reads           map[string]uint64                 `json:"dapp_read_count"`
		Writes          map[string]uint64                 `json:"dapp_write_count"`
		Invokes         map[string]uint64                 `json:"dapp_invoke_count"`
		ContractToLogic map[common.Address]common.Address `json:"contract_to_logic_contract"`
		LogicToStorage  map[common.Address]common.Address `json:"logic_to_storage_contract"`
	}{
		Reads:           renderCounts(d.reads),
		Writes:          renderCounts(d.writes),
		Invokes:         renderCounts(d.invokes),
		ContractToLogic: d.contractToLogic,
		LogicToStorage:  d.logicToStorage,
	})
}
