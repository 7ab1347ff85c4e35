package dapp

import (
	"fmt"

	"github.com/crytic/crossguard/evm"
	"github.com/crytic/medusa-geth/common"
)

// UnknownLabel is the label of contracts whose application could not be attributed.
const UnknownLabel = "unknown"

// CreatorDapp is the resolved application identity of an address.
type CreatorDapp struct {
	// Contract is the address the identity was resolved for.
	Contract common.Address
	// Creator is the account that deployed Contract, following factory deployments back to the first externally
	// owned deployer. It is the zero address when it could not be resolved.
	Creator common.Address
	// Dapp is the application label of Creator, or UnknownLabel.
	Dapp string
}

// NewUnknown returns the identity of an address whose application could not be attributed.
func NewUnknown(contract common.Address) CreatorDapp {
	return CreatorDapp{Contract: contract, Dapp: UnknownLabel}
}

// IsUnknown reports whether the identity has no application label.
func (c CreatorDapp) IsUnknown() bool {
	return c.Dapp == UnknownLabel
}

// String returns a short description of the identity.
func (c CreatorDapp) String() string {
	return fmt.Sprintf("%s (creator %s, dapp %s)", c.Contract.Hex(), c.Creator.Hex(), c.Dapp)
}

// sameOwner compares two identities: labels when both are known, creators otherwise.
func sameOwner(a, b CreatorDapp) bool {
	if a.IsUnknown() || b.IsUnknown() {
		return a.Creator == b.Creator
	}
	return a.Dapp == b.Dapp
}

// IsSameApplication decides whether a call stays within one application. A delegatecall runs the code owner's logic
// in the callee's context, so it compares the callee with the code owner. Every other scheme compares the caller with
// the callee.
func IsSameApplication(from, to, codeOwner CreatorDapp, scheme evm.CallScheme) bool {
	if scheme == evm.DelegateCall {
		return sameOwner(to, codeOwner)
	}
	return sameOwner(from, to)
}
