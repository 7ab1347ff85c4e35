package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/crytic/crossguard/logging"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

// cacheDirectoryName is the directory, relative to the working directory, that holds cache databases.
const cacheDirectoryName = ".crossguardcache"

var cacheBucket = []byte("cache")

// persistentCache provides a thread-safe ChainCache that persists entries to a bbolt database on disk. Reads are
// served from memory first, and writes are batched.
type persistentCache struct {
	memCache *nonPersistentCache
	db       *bbolt.DB

	pendingWriteMutex sync.Mutex
	pendingWrites     []pendingWrite
	flushThreshold    int

	closeOnce sync.Once
	closeErr  error
}

type pendingWrite struct {
	key   []byte
	value []byte
}

// NewPersistentCache opens (or creates) the cache database for the given RPC endpoint and block under workingDir.
// The database is closed when ctx is cancelled.
func NewPersistentCache(ctx context.Context, workingDir string, rpcAddr string, height uint64) (ChainCache, error) {
	return newPersistentCache(ctx, workingDir, rpcAddr, height)
}

func newPersistentCache(ctx context.Context, workingDir string, rpcAddr string, height uint64) (*persistentCache, error) {
	cacheDir, err := createCacheDirectory(workingDir)
	if err != nil {
		return nil, err
	}
	cacheFile := filepath.Join(cacheDir, getCacheFilename(rpcAddr, height))
	db, err := bbolt.Open(cacheFile, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "could not open cache database")
	}

	// Create the default bucket if it doesn't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cacheBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.WithStack(err)
	}

	p := &persistentCache{
		memCache:       newNonPersistentCache(),
		db:             db,
		flushThreshold: 25,
		pendingWrites:  []pendingWrite{},
	}

	// Close the database once the context is cancelled
	go func() {
		<-ctx.Done()
		if err := p.Close(); err != nil {
			logging.GlobalLogger.NewSubLogger("module", logging.CHAIN_SERVICE).Error("Failed to close the chain cache", err)
		}
	}()

	return p, nil
}

// getPersisted reads the entry at key into a value of type T. It returns ErrCacheMiss if there is none.
func getPersisted[T any](p *persistentCache, key []byte) (T, error) {
	var value T
	found := false
	err := p.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(cacheBucket).Get(key)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &value)
	})
	if err != nil {
		return value, errors.Wrap(err, "could not read cache entry")
	}
	if !found {
		return value, ErrCacheMiss
	}
	return value, nil
}

// persist queues value to be written at key, flushing once enough writes are pending.
func (p *persistentCache) persist(key []byte, value any) error {
	serialized, err := json.Marshal(value)
	if err != nil {
		return errors.WithStack(err)
	}

	p.pendingWriteMutex.Lock()
	defer p.pendingWriteMutex.Unlock()

	p.pendingWrites = append(p.pendingWrites, pendingWrite{key: key, value: serialized})
	if len(p.pendingWrites) >= p.flushThreshold {
		return p.flushWrites()
	}
	return nil
}

// flushWrites writes every pending entry. The caller must hold pendingWriteMutex.
func (p *persistentCache) flushWrites() error {
	if len(p.pendingWrites) == 0 {
		return nil
	}
	err := p.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(cacheBucket)
		for _, pw := range p.pendingWrites {
			if err := bucket.Put(pw.key, pw.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.WithStack(err)
	}
	p.pendingWrites = p.pendingWrites[:0]
	return nil
}

func (p *persistentCache) GetCode(addr common.Address) ([]byte, error) {
	if code, err := p.memCache.GetCode(addr); err == nil {
		return code, nil
	}
	code, err := getPersisted[hexutil.Bytes](p, entryKey(codeEntry, addr))
	if err != nil {
		return nil, err
	}
	return code, p.memCache.WriteCode(addr, code)
}

func (p *persistentCache) WriteCode(addr common.Address, code []byte) error {
	if err := p.memCache.WriteCode(addr, code); err != nil {
		return err
	}
	return p.persist(entryKey(codeEntry, addr), hexutil.Bytes(code))
}

func (p *persistentCache) GetBalance(addr common.Address) (*uint256.Int, error) {
	if balance, err := p.memCache.GetBalance(addr); err == nil {
		return balance, nil
	}
	balance, err := getPersisted[*uint256.Int](p, entryKey(balanceEntry, addr))
	if err != nil {
		return nil, err
	}
	if balance == nil {
		balance = new(uint256.Int)
	}
	return balance, p.memCache.WriteBalance(addr, balance)
}

func (p *persistentCache) WriteBalance(addr common.Address, balance *uint256.Int) error {
	if err := p.memCache.WriteBalance(addr, balance); err != nil {
		return err
	}
	return p.persist(entryKey(balanceEntry, addr), balance)
}

func (p *persistentCache) GetSlotData(addr common.Address, slot common.Hash) (common.Hash, error) {
	if data, err := p.memCache.GetSlotData(addr, slot); err == nil {
		return data, nil
	}
	data, err := getPersisted[common.Hash](p, entryKey(slotEntry, addr, slot[:]))
	if err != nil {
		return common.Hash{}, err
	}
	return data, p.memCache.WriteSlotData(addr, slot, data)
}

func (p *persistentCache) WriteSlotData(addr common.Address, slot common.Hash, data common.Hash) error {
	if err := p.memCache.WriteSlotData(addr, slot, data); err != nil {
		return err
	}
	return p.persist(entryKey(slotEntry, addr, slot[:]), data)
}

func (p *persistentCache) GetCreator(addr common.Address) (common.Address, error) {
	if creator, err := p.memCache.GetCreator(addr); err == nil {
		return creator, nil
	}
	creator, err := getPersisted[common.Address](p, entryKey(creatorEntry, addr))
	if err != nil {
		return common.Address{}, err
	}
	return creator, p.memCache.WriteCreator(addr, creator)
}

func (p *persistentCache) WriteCreator(addr common.Address, creator common.Address) error {
	if err := p.memCache.WriteCreator(addr, creator); err != nil {
		return err
	}
	return p.persist(entryKey(creatorEntry, addr), creator)
}

// Close flushes pending writes and closes the database. Subsequent calls return the first result.
func (p *persistentCache) Close() error {
	p.closeOnce.Do(func() {
		p.pendingWriteMutex.Lock()
		err := p.flushWrites()
		p.pendingWriteMutex.Unlock()
		if err != nil {
			p.closeErr = err
			return
		}
		p.closeErr = errors.WithStack(p.db.Close())
	})
	return p.closeErr
}

func createCacheDirectory(workingDir string) (string, error) {
	cachePath := filepath.Join(workingDir, cacheDirectoryName)
	if err := os.MkdirAll(cachePath, 0755); err != nil {
		return "", errors.Wrap(err, "failed to create cache directory")
	}
	return cachePath, nil
}

// getCacheFilename derives the database name from the fork block and a digest of the RPC endpoint.
func getCacheFilename(rpcAddr string, height uint64) string {
	h := sha256.New()
	h.Write([]byte(rpcAddr))
	bs := h.Sum(nil)

	return fmt.Sprintf("%d-%x.dat", height, bs[0:10])
}
