package hotcache

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/meowchain/meowchain/foundation/blockchain/database"
)

// CachedStorageReader decorates a raw storage reader with the hot state
// cache. The composition is explicit: the reader owns a reference to the
// inner reader rather than going through any dynamic registry, and the inner
// reader's contract is unchanged.
type CachedStorageReader struct {
	inner database.StorageReader
	cache *Cache
}

// NewCachedStorageReader constructs a reader that checks the cache before
// delegating to the inner reader.
func NewCachedStorageReader(inner database.StorageReader, cache *Cache) *CachedStorageReader {
	return &CachedStorageReader{
		inner: inner,
		cache: cache,
	}
}

// ReadStorage returns the value of the specified slot, serving it from the
// cache when possible. Only present values populate the cache; a miss from
// the inner reader passes through untouched since a slot could be written
// later and a cached absence would mask that.
func (r *CachedStorageReader) ReadStorage(accountID database.AccountID, slot common.Hash) (uint256.Int, bool) {
	key := Key{Account: accountID, Slot: slot}

	if value, ok := r.cache.Get(key); ok {
		return value, true
	}

	value, exists := r.inner.ReadStorage(accountID, slot)
	if !exists {
		return uint256.Int{}, false
	}

	r.cache.Insert(key, value)
	return value, true
}
