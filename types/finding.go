package types

import (
	"fmt"
	"time"

	"github.com/crytic/medusa-geth/common"
)

// Finding describes a target transaction proven to redirect a victim transaction into a dependent function.
type Finding struct {
	// RunID identifies the detection run that produced the finding.
	RunID string `json:"run_id"`
	// DetectedAt is the time the finding was produced.
	DetectedAt time.Time `json:"detected_at"`

	TargetTxHash   common.Hash    `json:"target_tx_hash"`
	TargetContract common.Address `json:"target_contract"`
	TargetFunction string         `json:"target_function"`

	VictimTxHash   common.Hash    `json:"victim_tx_hash"`
	VictimContract common.Address `json:"victim_contract"`
	VictimFunction string         `json:"victim_function"`

	// DependentFunction is the signature of the function the victim must not be driven into.
	DependentFunction string `json:"dependent_function"`
	// DependentSelector is the hex encoded selector of DependentFunction.
	DependentSelector string `json:"dependent_selector"`
	// EntryFunction is the hex encoded selector of the call that crossed into another application.
	EntryFunction string `json:"entry_function"`
	// BlockNumber is the block of the target transaction.
	BlockNumber uint64 `json:"block_number"`
}

// String returns a one line summary of the finding.
func (f *Finding) String() string {
	return fmt.Sprintf("%s (%s) redirects %s (%s) into %s", f.TargetFunction, f.TargetTxHash.Hex(), f.VictimFunction,
		f.VictimTxHash.Hex(), f.DependentFunction)
}

// Verification compares the re-execution of a transaction with its recorded on-chain outcome.
type Verification struct {
	TxHash common.Hash    `json:"tx_hash"`
	To     common.Address `json:"to"`
	// ExecutedOK is set when the re-execution terminated normally.
	ExecutedOK bool `json:"executed_ok"`
	// OnChainSuccess is the recorded outcome of the transaction.
	OnChainSuccess bool `json:"on_chain_success"`
	// Result is the name of the re-execution's result.
	Result string `json:"result"`
}

// Matched reports whether the re-execution reproduced the on-chain outcome.
func (v *Verification) Matched() bool {
	return v.ExecutedOK == v.OnChainSuccess
}

// String renders the verification as "matched,executed_ok,on_chain_success,hash".
func (v *Verification) String() string {
	return fmt.Sprintf("%t,%t,%t,%s", v.Matched(), v.ExecutedOK, v.OnChainSuccess, v.TxHash.Hex())
}
