package exec

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/meowchain/meowchain/foundation/blockchain/database"
)

// StateReader represents the read side of the state the executor runs
// against. Reads must be consistent for the duration of one block build.
type StateReader interface {
	Account(accountID database.AccountID) (database.Account, bool)
	ReadStorage(accountID database.AccountID, slot common.Hash) (uint256.Int, bool)
}

// StateWriter represents the commit side of the state. Only the executor
// writes here, and only in canonical transaction order.
type StateWriter interface {
	SetAccount(account database.Account)
	WriteStorage(accountID database.AccountID, slot common.Hash, value uint256.Int)
}

// State combines the read and commit sides of one block build's state.
type State interface {
	StateReader
	StateWriter
}

// Recorder receives every committed mutation so a per-block state diff can
// be accumulated. The statediff package provides the production
// implementation.
type Recorder interface {
	RecordBalanceChange(accountID database.AccountID, oldBalance uint64, newBalance uint64)
	RecordNonceChange(accountID database.AccountID, oldNonce uint64, newNonce uint64)
	RecordCodeChange(accountID database.AccountID)
	RecordStorageChange(accountID database.AccountID, slot common.Hash, oldValue uint256.Int, newValue uint256.Int)
}

// =============================================================================

// TxView is the per-transaction state overlay an engine executes against.
// Reads fall through to the base state, writes are buffered until the
// executor commits them, and every access is captured in the view's record.
// Nothing externally visible mutates until commit.
type TxView struct {
	base     StateReader
	accounts map[database.AccountID]database.Account
	slots    map[AccessKey]uint256.Int
	record   *AccessRecord
}

// NewTxView constructs an overlay over the specified base state.
func NewTxView(base StateReader) *TxView {
	return &TxView{
		base:     base,
		accounts: make(map[database.AccountID]database.Account),
		slots:    make(map[AccessKey]uint256.Int),
		record:   NewAccessRecord(),
	}
}

// Account returns the account as seen by this transaction, preferring a
// buffered write over the base state. The access is recorded as an
// account-level read.
func (v *TxView) Account(accountID database.AccountID) (database.Account, bool) {
	v.record.AddAccountRead(accountID)

	if account, exists := v.accounts[accountID]; exists {
		return account, true
	}
	return v.base.Account(accountID)
}

// SetAccount buffers an account-level write.
func (v *TxView) SetAccount(account database.Account) {
	v.record.AddAccountWrite(account.AccountID)
	v.accounts[account.AccountID] = account
}

// ReadStorage returns the storage slot as seen by this transaction. The
// access is recorded as a slot read.
func (v *TxView) ReadStorage(accountID database.AccountID, slot common.Hash) (uint256.Int, bool) {
	v.record.AddRead(accountID, slot)

	if value, exists := v.slots[StorageKey(accountID, slot)]; exists {
		if value.IsZero() {
			return uint256.Int{}, false
		}
		return value, true
	}
	return v.base.ReadStorage(accountID, slot)
}

// WriteStorage buffers a storage slot write. The zero word marks the slot
// for clearing.
func (v *TxView) WriteStorage(accountID database.AccountID, slot common.Hash, value uint256.Int) {
	v.record.AddWrite(accountID, slot)
	v.slots[StorageKey(accountID, slot)] = value
}

// Record returns the access footprint captured so far.
func (v *TxView) Record() *AccessRecord {
	return v.record
}

// =============================================================================

// commit applies the view's buffered writes to the state in a deterministic
// order and reports every mutation to the recorder. Buffered writes whose
// value equals the committed state are dropped rather than recorded.
func (v *TxView) commit(st State, rec Recorder) {

	// Account-level changes first, ordered by account id.
	for _, key := range v.record.Writes() {
		if key.Slot != AccountKeySlot {
			continue
		}

		account := v.accounts[key.Account]
		old, existed := st.Account(key.Account)

		if rec != nil {
			if !existed || old.Balance != account.Balance {
				rec.RecordBalanceChange(key.Account, old.Balance, account.Balance)
			}
			if !existed || old.Nonce != account.Nonce {
				rec.RecordNonceChange(key.Account, old.Nonce, account.Nonce)
			}
			if old.CodeHash != account.CodeHash {
				rec.RecordCodeChange(key.Account)
			}
		}

		st.SetAccount(account)
	}

	// Storage slot changes, ordered by account id then slot.
	for _, key := range v.record.Writes() {
		if key.Slot == AccountKeySlot {
			continue
		}

		value := v.slots[key]
		old, _ := st.ReadStorage(key.Account, key.Slot)
		if old.Eq(&value) {
			continue
		}

		if rec != nil {
			rec.RecordStorageChange(key.Account, key.Slot, old, value)
		}
		st.WriteStorage(key.Account, key.Slot, value)
	}
}
