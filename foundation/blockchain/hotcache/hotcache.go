// Package hotcache maintains a bounded least-recently-used cache of hot
// storage slot reads. It is shared across block builds and sized for a small
// set of frequently polled governance and configuration accounts, not for
// general purpose state caching.
package hotcache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/meowchain/meowchain/foundation/blockchain/database"
)

// DefaultCapacity is a reasonable cache size when the genesis file does not
// specify one.
const DefaultCapacity = 1024

// Key identifies one cached storage slot.
type Key struct {
	Account database.AccountID
	Slot    common.Hash
}

// Stats are the read-only counters the cache exports. No behavior depends
// on them.
type Stats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Evictions     uint64 `json:"evictions"`
	Invalidations uint64 `json:"invalidations"`
	Disabled      bool   `json:"disabled"`
	Fault         string `json:"fault,omitempty"`
}

// =============================================================================

// entry is the value stored in the recency list.
type entry struct {
	key   Key
	value uint256.Int
}

// Cache is a bounded LRU cache over (account, slot) -> value. Absent slots
// are never stored: a slot could be written later and a cached miss would
// mask that. Mutation requires the exclusive lock and never blocks on I/O
// while holding it. An internal inconsistency disables caching for the
// remainder of the process instead of corrupting subsequent reads.
type Cache struct {
	mu sync.Mutex

	capacity int
	ll       *list.List // Front is most recently used.
	entries  map[Key]*list.Element
	disabled bool
	reason   string

	hits          uint64
	misses        uint64
	evictions     uint64
	invalidations uint64
}

// New constructs a cache holding at most capacity entries.
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid cache capacity %d", capacity)
	}

	c := Cache{
		capacity: capacity,
		ll:       list.New(),
		entries:  make(map[Key]*list.Element),
	}

	return &c, nil
}

// Get returns the cached value for the key and promotes the entry to most
// recently used. The bool reports a hit.
func (c *Cache) Get(key Key) (uint256.Int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disabled {
		return uint256.Int{}, false
	}

	elem, exists := c.entries[key]
	if !exists {
		c.misses++
		return uint256.Int{}, false
	}

	c.hits++
	c.ll.MoveToFront(elem)
	return elem.Value.(*entry).value, true
}

// Insert adds or updates the value for the key, evicting the least recently
// used entry when the capacity would be exceeded.
func (c *Cache) Insert(key Key, value uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disabled {
		return
	}

	if elem, exists := c.entries[key]; exists {
		elem.Value.(*entry).value = value
		c.ll.MoveToFront(elem)
		return
	}

	c.entries[key] = c.ll.PushFront(&entry{key: key, value: value})

	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			c.fault("recency list empty above capacity")
			return
		}
		c.ll.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
		c.evictions++
	}

	if len(c.entries) != c.ll.Len() {
		c.fault("entry map diverged from recency list")
	}
}

// InvalidateAccount removes every entry for the account regardless of
// recency. Callers use this whenever the account's storage may have mutated
// outside the cache's own read path.
func (c *Cache) InvalidateAccount(accountID database.AccountID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disabled {
		return
	}

	for elem := c.ll.Front(); elem != nil; {
		next := elem.Next()
		if ent := elem.Value.(*entry); ent.key.Account == accountID {
			c.ll.Remove(elem)
			delete(c.entries, ent.key)
			c.invalidations++
		}
		elem = next
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:          c.hits,
		Misses:        c.misses,
		Evictions:     c.evictions,
		Invalidations: c.invalidations,
		Disabled:      c.disabled,
		Fault:         c.reason,
	}
}

// =============================================================================

// fault permanently disables the cache. A broken cache must fall through to
// the raw reader rather than crash the node or serve corrupt values. The
// caller must hold the lock.
func (c *Cache) fault(reason string) {
	c.disabled = true
	c.reason = reason
	c.ll = list.New()
	c.entries = make(map[Key]*list.Element)
}
