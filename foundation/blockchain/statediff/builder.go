package statediff

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/meowchain/meowchain/foundation/blockchain/database"
)

// ErrFinalized is returned when a builder is used after Build.
var ErrFinalized = errors.New("state diff already finalized")

// Builder accumulates mutations during one block's committed execution.
// Repeated changes to the same field collapse: the first old value and the
// last new value survive, and fields that end where they started drop out of
// the final diff.
type Builder struct {
	mu sync.Mutex

	blockNumber uint64
	blockHash   common.Hash
	changes     map[database.AccountID]*AccountDiff
	finalized   bool
}

// NewBuilder constructs a builder for the specified block.
func NewBuilder(blockNumber uint64, blockHash common.Hash) *Builder {
	return &Builder{
		blockNumber: blockNumber,
		blockHash:   blockHash,
		changes:     make(map[database.AccountID]*AccountDiff),
	}
}

// RecordBalanceChange records a committed balance mutation.
func (b *Builder) RecordBalanceChange(accountID database.AccountID, oldBalance uint64, newBalance uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	change := b.account(accountID)
	if change.Balance == nil {
		change.Balance = &Change{Old: oldBalance, New: newBalance}
		return
	}
	change.Balance.New = newBalance
}

// RecordNonceChange records a committed nonce mutation.
func (b *Builder) RecordNonceChange(accountID database.AccountID, oldNonce uint64, newNonce uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	change := b.account(accountID)
	if change.Nonce == nil {
		change.Nonce = &Change{Old: oldNonce, New: newNonce}
		return
	}
	change.Nonce.New = newNonce
}

// RecordCodeChange records that the account's code hash changed.
func (b *Builder) RecordCodeChange(accountID database.AccountID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.account(accountID).CodeChanged = true
}

// RecordStorageChange records a committed storage slot mutation.
func (b *Builder) RecordStorageChange(accountID database.AccountID, slot common.Hash, oldValue uint256.Int, newValue uint256.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	change := b.account(accountID)
	if change.Storage == nil {
		change.Storage = make(map[common.Hash]SlotDiff)
	}

	if existing, exists := change.Storage[slot]; exists {
		existing.New = newValue
		change.Storage[slot] = existing
		return
	}
	change.Storage[slot] = SlotDiff{Old: oldValue, New: newValue}
}

// Build finalizes the accumulated changes into an immutable state diff.
// The builder can only be finalized once.
func (b *Builder) Build(gasUsed uint64, txCount int) (StateDiff, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finalized {
		return StateDiff{}, ErrFinalized
	}
	b.finalized = true

	diff := StateDiff{
		BlockNumber: b.blockNumber,
		BlockHash:   b.blockHash,
		Changes:     make(map[database.AccountID]AccountDiff),
		GasUsed:     gasUsed,
		TxCount:     txCount,
	}

	for accountID, change := range b.changes {
		final := AccountDiff{CodeChanged: change.CodeChanged}

		if change.Balance != nil && change.Balance.Old != change.Balance.New {
			final.Balance = &Change{Old: change.Balance.Old, New: change.Balance.New}
		}
		if change.Nonce != nil && change.Nonce.Old != change.Nonce.New {
			final.Nonce = &Change{Old: change.Nonce.Old, New: change.Nonce.New}
		}
		for slot, slotDiff := range change.Storage {
			if slotDiff.Old.Eq(&slotDiff.New) {
				continue
			}
			if final.Storage == nil {
				final.Storage = make(map[common.Hash]SlotDiff)
			}
			final.Storage[slot] = slotDiff
		}

		if final.Balance != nil || final.Nonce != nil || final.CodeChanged || len(final.Storage) > 0 {
			diff.Changes[accountID] = final
		}
	}

	return diff, nil
}

// =============================================================================

// account returns the working diff for the account, creating it when
// needed. The caller must hold the lock.
func (b *Builder) account(accountID database.AccountID) *AccountDiff {
	change, exists := b.changes[accountID]
	if !exists {
		change = &AccountDiff{}
		b.changes[accountID] = change
	}
	return change
}
