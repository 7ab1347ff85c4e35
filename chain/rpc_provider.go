package chain

import (
	"context"
	"sync"

	"github.com/crytic/crossguard/chain/cache"
	"github.com/crytic/crossguard/chain/rpc"
	"github.com/crytic/crossguard/logging"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// RPCProviderConfig configures an RPCProvider.
type RPCProviderConfig struct {
	// URL is the JSON-RPC endpoint.
	URL string
	// PoolSize is the number of clients connected to URL.
	PoolSize uint
	// ForkBlock is the default block queries are made against.
	ForkBlock uint64
	// CacheEnabled persists fetched data under WorkDir. Otherwise data is cached in memory only.
	CacheEnabled bool
	// WorkDir is the directory the cache directory is created in.
	WorkDir string
	// Explorer resolves contract creators. Without it every creator resolves to the zero address.
	Explorer *EtherscanClient
}

// RPCProvider is a DataProvider backed by a JSON-RPC endpoint and an explorer API. Fetched data is cached per block.
type RPCProvider struct {
	ctx      context.Context
	config   RPCProviderConfig
	pool     *rpc.ClientPool
	explorer *EtherscanClient

	caches     map[uint64]cache.ChainCache
	cachesLock sync.Mutex

	logger *logging.Logger
}

// NewRPCProvider connects to the configured endpoint. The provider's caches are closed when ctx is cancelled.
func NewRPCProvider(ctx context.Context, config RPCProviderConfig) (*RPCProvider, error) {
	if config.PoolSize == 0 {
		config.PoolSize = 1
	}
	pool, err := rpc.NewClientPool(config.URL, config.PoolSize)
	if err != nil {
		return nil, err
	}
	return newRPCProvider(ctx, config, pool), nil
}

func newRPCProvider(ctx context.Context, config RPCProviderConfig, pool *rpc.ClientPool) *RPCProvider {
	return &RPCProvider{
		ctx:      ctx,
		config:   config,
		pool:     pool,
		explorer: config.Explorer,
		caches:   make(map[uint64]cache.ChainCache),
		logger:   logging.GlobalLogger.NewSubLogger("module", logging.CHAIN_SERVICE),
	}
}

// cacheFor returns the cache of block, opening it on first use. Persistent caches that fail to open fall back to
// memory.
func (p *RPCProvider) cacheFor(block uint64) cache.ChainCache {
	p.cachesLock.Lock()
	defer p.cachesLock.Unlock()

	if c, ok := p.caches[block]; ok {
		return c
	}

	var c cache.ChainCache
	if p.config.CacheEnabled {
		persistent, err := cache.NewPersistentCache(p.ctx, p.config.WorkDir, p.config.URL, block)
		if err != nil {
			p.logger.Warn("Falling back to an in-memory chain cache", err)
		} else {
			c = persistent
		}
	}
	if c == nil {
		c = cache.NewNonPersistentCache()
	}
	p.caches[block] = c
	return c
}

// ForkBlock returns the default block of the provider.
func (p *RPCProvider) ForkBlock() uint64 {
	return p.config.ForkBlock
}

// GetContractCode returns the code of addr at the fork block.
func (p *RPCProvider) GetContractCode(addr common.Address) []byte {
	c := p.cacheFor(p.config.ForkBlock)
	if code, err := c.GetCode(addr); err == nil {
		return code
	}

	var code hexutil.Bytes
	err := p.pool.ExecuteRequestBlocking(p.ctx, &code, "eth_getCode", addr, hexutil.Uint64(p.config.ForkBlock))
	if err != nil {
		p.logger.Warn("Could not fetch code of ", addr.Hex(), err)
		return nil
	}
	if err = c.WriteCode(addr, code); err != nil {
		p.logger.Debug("Could not cache code of ", addr.Hex(), err)
	}
	return code
}

// GetContractBalance returns the balance of addr at block.
func (p *RPCProvider) GetContractBalance(addr common.Address, block uint64) *uint256.Int {
	c := p.cacheFor(block)
	if balance, err := c.GetBalance(addr); err == nil {
		return balance
	}

	var balance hexutil.U256
	err := p.pool.ExecuteRequestBlocking(p.ctx, &balance, "eth_getBalance", addr, hexutil.Uint64(block))
	if err != nil {
		p.logger.Warn("Could not fetch balance of ", addr.Hex(), err)
		return new(uint256.Int)
	}
	result := (*uint256.Int)(&balance)
	if err = c.WriteBalance(addr, result); err != nil {
		p.logger.Debug("Could not cache balance of ", addr.Hex(), err)
	}
	return new(uint256.Int).Set(result)
}

// GetContractSlot returns the storage slot of addr at block.
func (p *RPCProvider) GetContractSlot(addr common.Address, slot *uint256.Int, block uint64) *uint256.Int {
	c := p.cacheFor(block)
	key := common.Hash(slot.Bytes32())
	if data, err := c.GetSlotData(addr, key); err == nil {
		return new(uint256.Int).SetBytes(data[:])
	}

	var data common.Hash
	err := p.pool.ExecuteRequestBlocking(p.ctx, &data, "eth_getStorageAt", addr, key, hexutil.Uint64(block))
	if err != nil {
		p.logger.Warn("Could not fetch slot ", key.Hex(), " of ", addr.Hex(), err)
		return new(uint256.Int)
	}
	if err = c.WriteSlotData(addr, key, data); err != nil {
		p.logger.Debug("Could not cache slot of ", addr.Hex(), err)
	}
	return new(uint256.Int).SetBytes(data[:])
}

// IsContract reports whether addr has code at the fork block.
func (p *RPCProvider) IsContract(addr common.Address) bool {
	return len(p.GetContractCode(addr)) > 0
}

// ResolveCreator returns the deployer of addr through the explorer, or the zero address.
func (p *RPCProvider) ResolveCreator(addr common.Address) common.Address {
	if p.explorer == nil {
		return common.Address{}
	}
	c := p.cacheFor(p.config.ForkBlock)
	if creator, err := c.GetCreator(addr); err == nil {
		return creator
	}

	creator, err := p.explorer.ResolveCreator(p.ctx, addr)
	if err != nil {
		p.logger.Warn("Could not resolve the creator of ", addr.Hex(), err)
		// Partial attributions are returned but never cached
		return creator
	}
	if err = c.WriteCreator(addr, creator); err != nil {
		p.logger.Debug("Could not cache the creator of ", addr.Hex(), err)
	}
	return creator
}

// Close closes the provider's caches and clients.
func (p *RPCProvider) Close() error {
	p.cachesLock.Lock()
	defer p.cachesLock.Unlock()

	var firstErr error
	for block, c := range p.caches {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "could not close cache of block %d", block)
		}
	}
	p.caches = make(map[uint64]cache.ChainCache)
	p.pool.Close()
	return firstErr
}
