// Package exec implements conflict-aware parallel transaction execution:
// access footprint collection, hazard detection, batch scheduling, and the
// executor that drives an execution engine over a worker pool.
package exec

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/meowchain/meowchain/foundation/blockchain/database"
)

// AccountKeySlot is the reserved slot identifier that represents every
// account-level effect: balance, nonce, and code hash. Collapsing those into
// one conflict unit over-reports hazards, never under-reports them.
var AccountKeySlot = common.Hash{}

// AccessKey identifies one unit of state a transaction can touch.
type AccessKey struct {
	Account database.AccountID `json:"account"`
	Slot    common.Hash        `json:"slot"`
}

// AccountKey constructs the access key covering the account-level fields of
// the specified account.
func AccountKey(accountID database.AccountID) AccessKey {
	return AccessKey{Account: accountID, Slot: AccountKeySlot}
}

// StorageKey constructs the access key for one storage slot.
func StorageKey(accountID database.AccountID, slot common.Hash) AccessKey {
	return AccessKey{Account: accountID, Slot: slot}
}

// =============================================================================

// AccessRecord captures the exhaustive read/write footprint of one
// transaction attempt. A record is produced exactly once per attempt;
// re-execution after a conflict regenerates it.
type AccessRecord struct {
	reads  map[AccessKey]struct{}
	writes map[AccessKey]struct{}
}

// NewAccessRecord constructs an empty access record.
func NewAccessRecord() *AccessRecord {
	return &AccessRecord{
		reads:  make(map[AccessKey]struct{}),
		writes: make(map[AccessKey]struct{}),
	}
}

// AddRead marks a storage slot as read.
func (ar *AccessRecord) AddRead(accountID database.AccountID, slot common.Hash) {
	ar.reads[StorageKey(accountID, slot)] = struct{}{}
}

// AddWrite marks a storage slot as written.
func (ar *AccessRecord) AddWrite(accountID database.AccountID, slot common.Hash) {
	ar.writes[StorageKey(accountID, slot)] = struct{}{}
}

// AddAccountRead marks the account-level fields of an account as read.
func (ar *AccessRecord) AddAccountRead(accountID database.AccountID) {
	ar.reads[AccountKey(accountID)] = struct{}{}
}

// AddAccountWrite marks the account-level fields of an account as written.
func (ar *AccessRecord) AddAccountWrite(accountID database.AccountID) {
	ar.writes[AccountKey(accountID)] = struct{}{}
}

// Empty reports whether the record carries no reads and no writes.
func (ar *AccessRecord) Empty() bool {
	return len(ar.reads) == 0 && len(ar.writes) == 0
}

// Covers reports whether every access in the actual record was predicted by
// this record. The executor uses this at commit time to detect speculative
// records that under-reported a transaction's footprint.
func (ar *AccessRecord) Covers(actual *AccessRecord) bool {
	for key := range actual.reads {
		if _, exists := ar.reads[key]; !exists {
			return false
		}
	}
	for key := range actual.writes {
		if _, exists := ar.writes[key]; !exists {
			return false
		}
	}
	return true
}

// Reads returns the read set in a deterministic order.
func (ar *AccessRecord) Reads() []AccessKey {
	return sortedKeys(ar.reads)
}

// Writes returns the write set in a deterministic order.
func (ar *AccessRecord) Writes() []AccessKey {
	return sortedKeys(ar.writes)
}

// =============================================================================

// Conflicts reports whether two transactions may not execute concurrently.
// The record a must belong to the transaction that precedes b in the
// canonical block order; evaluating with the roles swapped is a caller
// error, not a legal query.
//
// The hazards are write-after-write, read-after-write, and write-after-read.
// Read-after-read is never a conflict.
func Conflicts(a *AccessRecord, b *AccessRecord) bool {

	// b reads what a wrote.
	for key := range b.reads {
		if _, exists := a.writes[key]; exists {
			return true
		}
	}

	// b writes what a wrote, or b writes what a read.
	for key := range b.writes {
		if _, exists := a.writes[key]; exists {
			return true
		}
		if _, exists := a.reads[key]; exists {
			return true
		}
	}

	return false
}

// =============================================================================

// sortedKeys flattens an access set into a slice ordered by account then slot.
func sortedKeys(set map[AccessKey]struct{}) []AccessKey {
	keys := make([]AccessKey, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Account != keys[j].Account {
			return keys[i].Account < keys[j].Account
		}
		return keys[i].Slot.Hex() < keys[j].Slot.Hex()
	})

	return keys
}
