// Package statediff accumulates the per-block account and storage deltas
// produced by committed execution into an immutable, shippable state diff,
// and provides the companion operations to apply, verify, and re-derive one.
package statediff

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/meowchain/meowchain/foundation/blockchain/database"
)

// Change records an old and new value for a balance or nonce.
type Change struct {
	Old uint64 `json:"old"`
	New uint64 `json:"new"`
}

// SlotDiff records an old and new value for one storage slot. A zero new
// value means the slot was cleared.
type SlotDiff struct {
	Old uint256.Int `json:"old"`
	New uint256.Int `json:"new"`
}

// AccountDiff is the set of deltas one block applied to one account.
type AccountDiff struct {
	Balance     *Change                  `json:"balance,omitempty"`
	Nonce       *Change                  `json:"nonce,omitempty"`
	CodeChanged bool                     `json:"code_changed,omitempty"`
	Storage     map[common.Hash]SlotDiff `json:"storage,omitempty"`
}

// StateDiff is the finalized set of mutations produced by one block's
// execution. Once built it is immutable and safe to ship to replicas.
type StateDiff struct {
	BlockNumber uint64                               `json:"block_number"`
	BlockHash   common.Hash                          `json:"block_hash"`
	Changes     map[database.AccountID]AccountDiff   `json:"changes"`
	GasUsed     uint64                               `json:"gas_used"`
	TxCount     int                                  `json:"tx_count"`
}

// =============================================================================

// Apply mutates the database to match the diff. Storage slots whose new
// value is the zero word are cleared rather than stored as zero-valued
// entries. Code payloads ship out of band, so the code-changed flag carries
// no data to apply here.
func Apply(db *database.Database, diff StateDiff) {
	for accountID, change := range diff.Changes {
		if change.Balance != nil || change.Nonce != nil {
			account, exists := db.Account(accountID)
			if !exists {
				account = database.Account{AccountID: accountID}
			}
			if change.Balance != nil {
				account.Balance = change.Balance.New
			}
			if change.Nonce != nil {
				account.Nonce = change.Nonce.New
			}
			db.SetAccount(account)
		}

		for slot, slotDiff := range change.Storage {
			db.WriteStorage(accountID, slot, slotDiff.New)
		}
	}
}

// VerifyAgainstPreState re-checks that every old value recorded in the diff
// matches the state the diff claims to have been built against. A mismatch
// means the diff would corrupt any replica applying it.
func VerifyAgainstPreState(db *database.Database, diff StateDiff) error {
	for accountID, change := range diff.Changes {
		account, _ := db.Account(accountID)

		if change.Balance != nil && change.Balance.Old != account.Balance {
			return fmt.Errorf("account %s: diff balance old %d does not match pre-state %d", accountID, change.Balance.Old, account.Balance)
		}
		if change.Nonce != nil && change.Nonce.Old != account.Nonce {
			return fmt.Errorf("account %s: diff nonce old %d does not match pre-state %d", accountID, change.Nonce.Old, account.Nonce)
		}

		for slot, slotDiff := range change.Storage {
			value, _ := db.ReadStorage(accountID, slot)
			if !value.Eq(&slotDiff.Old) {
				return fmt.Errorf("account %s slot %s: diff old %s does not match pre-state %s", accountID, slot, slotDiff.Old.Dec(), value.Dec())
			}
		}
	}

	return nil
}

// Derive computes the diff between two state snapshots. Applying a diff and
// deriving between the two snapshots reproduces the diff exactly.
func Derive(pre *database.Database, post *database.Database, blockNumber uint64, blockHash common.Hash, gasUsed uint64, txCount int) StateDiff {
	diff := StateDiff{
		BlockNumber: blockNumber,
		BlockHash:   blockHash,
		Changes:     make(map[database.AccountID]AccountDiff),
		GasUsed:     gasUsed,
		TxCount:     txCount,
	}

	preAccounts := pre.CopyAccounts()
	postAccounts := post.CopyAccounts()
	preStorage := pre.CopyStorage()
	postStorage := post.CopyStorage()

	for _, accountID := range unionAccounts(preAccounts, postAccounts, preStorage, postStorage) {
		var change AccountDiff

		before := preAccounts[accountID]
		after := postAccounts[accountID]
		if before.Balance != after.Balance {
			change.Balance = &Change{Old: before.Balance, New: after.Balance}
		}
		if before.Nonce != after.Nonce {
			change.Nonce = &Change{Old: before.Nonce, New: after.Nonce}
		}
		if before.CodeHash != after.CodeHash {
			change.CodeChanged = true
		}

		for slot := range unionSlots(preStorage[accountID], postStorage[accountID]) {
			oldValue := preStorage[accountID][slot]
			newValue := postStorage[accountID][slot]
			if oldValue.Eq(&newValue) {
				continue
			}
			if change.Storage == nil {
				change.Storage = make(map[common.Hash]SlotDiff)
			}
			change.Storage[slot] = SlotDiff{Old: oldValue, New: newValue}
		}

		if change.Balance != nil || change.Nonce != nil || change.CodeChanged || len(change.Storage) > 0 {
			diff.Changes[accountID] = change
		}
	}

	return diff
}

// =============================================================================

// unionAccounts returns the sorted union of account ids across the
// snapshots.
func unionAccounts(preAccounts, postAccounts map[database.AccountID]database.Account, preStorage, postStorage map[database.AccountID]map[common.Hash]uint256.Int) []database.AccountID {
	set := make(map[database.AccountID]struct{})
	for accountID := range preAccounts {
		set[accountID] = struct{}{}
	}
	for accountID := range postAccounts {
		set[accountID] = struct{}{}
	}
	for accountID := range preStorage {
		set[accountID] = struct{}{}
	}
	for accountID := range postStorage {
		set[accountID] = struct{}{}
	}

	ids := make([]database.AccountID, 0, len(set))
	for accountID := range set {
		ids = append(ids, accountID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

// unionSlots returns the union of slot keys across two slot maps.
func unionSlots(pre, post map[common.Hash]uint256.Int) map[common.Hash]struct{} {
	set := make(map[common.Hash]struct{})
	for slot := range pre {
		set[slot] = struct{}{}
	}
	for slot := range post {
		set[slot] = struct{}{}
	}
	return set
}
