// Package database maintains the in memory account and storage state the
// execution layer reads from and commits to. A persistent backing store is a
// node concern; this package is the read/write boundary the rest of the
// execution layer is written against.
package database

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/meowchain/meowchain/foundation/blockchain/genesis"
)

// StorageReader represents the behavior required to be implemented by any
// source of single slot storage reads. The bool reports whether the slot
// is present; an absent slot is not the same as a zero-valued one.
type StorageReader interface {
	ReadStorage(accountID AccountID, slot common.Hash) (uint256.Int, bool)
}

// =============================================================================

// Database manages data related to accounts and their storage.
type Database struct {
	mu sync.RWMutex

	genesis  genesis.Genesis
	accounts map[AccountID]Account
	storage  map[AccountID]map[common.Hash]uint256.Int
}

// New constructs a new database and applies account genesis information.
func New(genesis genesis.Genesis) (*Database, error) {
	db := Database{
		genesis:  genesis,
		accounts: make(map[AccountID]Account),
		storage:  make(map[AccountID]map[common.Hash]uint256.Int),
	}

	// Update the database with account balance information from genesis.
	for accountStr, balance := range genesis.Balances {
		accountID, err := ToAccountID(accountStr)
		if err != nil {
			return nil, err
		}
		db.accounts[accountID] = newAccount(accountID, balance)
	}

	return &db, nil
}

// Reset re-initalizes the database back to the genesis state.
func (db *Database) Reset() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.accounts = make(map[AccountID]Account)
	db.storage = make(map[AccountID]map[common.Hash]uint256.Int)
	for accountStr, balance := range db.genesis.Balances {
		accountID, err := ToAccountID(accountStr)
		if err != nil {
			return err
		}

		db.accounts[accountID] = newAccount(accountID, balance)
	}

	return nil
}

// Account retrieves the account record for the specified id.
func (db *Database) Account(accountID AccountID) (Account, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	account, exists := db.accounts[accountID]
	return account, exists
}

// SetAccount stores the account record, creating it when needed.
func (db *Database) SetAccount(account Account) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.accounts[account.AccountID] = account
}

// Remove deletes an account from the database.
func (db *Database) Remove(accountID AccountID) {
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.accounts, accountID)
	delete(db.storage, accountID)
}

// ReadStorage returns the current value of the specified storage slot. The
// bool reports whether the slot is present.
func (db *Database) ReadStorage(accountID AccountID, slot common.Hash) (uint256.Int, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	slots, exists := db.storage[accountID]
	if !exists {
		return uint256.Int{}, false
	}

	value, exists := slots[slot]
	return value, exists
}

// WriteStorage sets the value of the specified storage slot. Writing the
// zero word clears the slot, mirroring how the execution model represents
// cleared storage.
func (db *Database) WriteStorage(accountID AccountID, slot common.Hash, value uint256.Int) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if value.IsZero() {
		if slots, exists := db.storage[accountID]; exists {
			delete(slots, slot)
			if len(slots) == 0 {
				delete(db.storage, accountID)
			}
		}
		return
	}

	slots, exists := db.storage[accountID]
	if !exists {
		slots = make(map[common.Hash]uint256.Int)
		db.storage[accountID] = slots
	}
	slots[slot] = value
}

// CopyAccounts makes a copy of the current accounts in the database.
func (db *Database) CopyAccounts() map[AccountID]Account {
	db.mu.RLock()
	defer db.mu.RUnlock()

	accounts := make(map[AccountID]Account)
	for accountID, account := range db.accounts {
		accounts[accountID] = account
	}
	return accounts
}

// CopyStorage makes a copy of the current storage slots in the database.
func (db *Database) CopyStorage() map[AccountID]map[common.Hash]uint256.Int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	storage := make(map[AccountID]map[common.Hash]uint256.Int)
	for accountID, slots := range db.storage {
		cp := make(map[common.Hash]uint256.Int, len(slots))
		for slot, value := range slots {
			cp[slot] = value
		}
		storage[accountID] = cp
	}
	return storage
}

// Copy makes a snapshot of the entire database. The snapshot shares nothing
// with the original and is safe to mutate independently.
func (db *Database) Copy() *Database {
	db.mu.RLock()
	genesis := db.genesis
	db.mu.RUnlock()

	cp := Database{
		genesis:  genesis,
		accounts: db.CopyAccounts(),
		storage:  db.CopyStorage(),
	}
	return &cp
}
