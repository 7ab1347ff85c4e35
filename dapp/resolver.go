package dapp

import (
	"github.com/crytic/crossguard/logging"
	"github.com/crytic/medusa-geth/common"
	"golang.org/x/exp/slices"
)

// CreatorSource answers the on-chain questions needed to attribute an address to an application.
type CreatorSource interface {
	// IsContract reports whether addr has code.
	IsContract(addr common.Address) bool
	// ResolveCreator returns the deployer of addr, or the zero address if it cannot be resolved.
	ResolveCreator(addr common.Address) common.Address
}

// Resolver resolves and caches the application identity of addresses. An address is resolved at most once for the
// lifetime of the Resolver.
type Resolver struct {
	source CreatorSource
	table  *DappInfo
	cache  map[common.Address]CreatorDapp
	logger *logging.Logger
}

// NewResolver creates a Resolver. A nil source attributes every unregistered address to UnknownLabel.
func NewResolver(source CreatorSource, table *DappInfo) *Resolver {
	return &Resolver{
		source: source,
		table:  table,
		cache:  make(map[common.Address]CreatorDapp),
		logger: logging.GlobalLogger.NewSubLogger("module", logging.HOST_SERVICE),
	}
}

// Resolve returns the identity of addr, resolving it through the source on first use.
func (r *Resolver) Resolve(addr common.Address) CreatorDapp {
	if info, ok := r.cache[addr]; ok {
		return info
	}
	info := r.resolve(addr)
	r.cache[addr] = info
	return info
}

func (r *Resolver) resolve(addr common.Address) CreatorDapp {
	if r.source == nil || !r.source.IsContract(addr) {
		return NewUnknown(addr)
	}

	creator := r.source.ResolveCreator(addr)
	label, ok := r.table.Lookup(creator)
	if !ok {
		r.logger.Trace("No dapp label for ", addr.Hex(), " created by ", creator.Hex())
		label = UnknownLabel
	}
	return CreatorDapp{Contract: addr, Creator: creator, Dapp: label}
}

// Set registers the identity of info.Contract, replacing any cached one.
func (r *Resolver) Set(info CreatorDapp) {
	r.cache[info.Contract] = info
}

// SetIfAbsent registers info unless its address has already been resolved. It returns whether info was stored.
func (r *Resolver) SetIfAbsent(info CreatorDapp) bool {
	if _, ok := r.cache[info.Contract]; ok {
		return false
	}
	r.cache[info.Contract] = info
	return true
}

// Known reports whether addr has already been resolved.
func (r *Resolver) Known(addr common.Address) bool {
	_, ok := r.cache[addr]
	return ok
}

// Unknown returns the resolved addresses without an application label, sorted.
func (r *Resolver) Unknown() []common.Address {
	addrs := make([]common.Address, 0)
	for addr, info := range r.cache {
		if info.IsUnknown() {
			addrs = append(addrs, addr)
		}
	}
	slices.SortFunc(addrs, func(a, b common.Address) int {
		return a.Cmp(b)
	})
	return addrs
}
