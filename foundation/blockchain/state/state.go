// Package state is the core API for the execution layer and wires the
// database, hot cache, executor, and diff recorder together for the node.
package state

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/meowchain/meowchain/foundation/blockchain/database"
	"github.com/meowchain/meowchain/foundation/blockchain/exec"
	"github.com/meowchain/meowchain/foundation/blockchain/genesis"
	"github.com/meowchain/meowchain/foundation/blockchain/hotcache"
	"github.com/meowchain/meowchain/foundation/blockchain/statediff"
)

// ErrNoTransactions is returned when a block is requested to be produced
// and there are no queued transactions.
var ErrNoTransactions = errors.New("no transactions queued")

// =============================================================================

// EventHandler defines a function that is called when events occur in the
// processing of blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by
// any package providing support for background block production.
type Worker interface {
	Shutdown()
	SignalProduceBlock()
}

// =============================================================================

// Config represents the configuration required to start the execution layer.
type Config struct {
	Genesis    genesis.Genesis
	Engine     exec.Engine
	Sequential bool
	EvHandler  EventHandler
}

// State manages the execution layer state for one node instance. The hot
// cache outlives any single block build; everything else is per block.
type State struct {
	mu sync.Mutex

	genesis    genesis.Genesis
	evHandler  EventHandler
	governance []database.AccountID

	db       *database.Database
	cache    *hotcache.Cache
	reader   *hotcache.CachedStorageReader
	executor *exec.Executor

	blockNumber uint64
	latestHash  common.Hash
	latestDiff  statediff.StateDiff
	lastReport  exec.BlockReport
	pending     []database.Tx

	Worker Worker
}

// New constructs the execution layer state for use.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	db, err := database.New(cfg.Genesis)
	if err != nil {
		return nil, err
	}

	capacity := cfg.Genesis.CacheCapacity
	if capacity == 0 {
		capacity = hotcache.DefaultCapacity
	}
	cache, err := hotcache.New(capacity)
	if err != nil {
		return nil, err
	}

	executor, err := exec.New(exec.Config{
		Engine:     cfg.Engine,
		Workers:    cfg.Genesis.Workers,
		Sequential: cfg.Sequential,
		EvHandler:  exec.EventHandler(ev),
	})
	if err != nil {
		return nil, err
	}

	governance := make([]database.AccountID, 0, len(cfg.Genesis.GovernanceAccounts))
	for _, accountStr := range cfg.Genesis.GovernanceAccounts {
		accountID, err := database.ToAccountID(accountStr)
		if err != nil {
			return nil, err
		}
		governance = append(governance, accountID)
	}

	state := State{
		genesis:    cfg.Genesis,
		evHandler:  ev,
		governance: governance,
		db:         db,
		cache:      cache,
		reader:     hotcache.NewCachedStorageReader(db, cache),
		executor:   executor,
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start the block production loop for the node.

	return &state, nil
}

// Shutdown cleanly brings the execution layer down.
func (s *State) Shutdown() error {
	if s.Worker != nil {
		s.Worker.Shutdown()
	}
	return nil
}

// =============================================================================

// SubmitTransaction queues a transaction for inclusion in the next produced
// block and signals the worker.
func (s *State) SubmitTransaction(tx database.Tx) error {
	if !tx.FromID.IsAccountID() {
		return errors.New("invalid from account format")
	}
	if !tx.ToID.IsAccountID() {
		return errors.New("invalid to account format")
	}

	s.mu.Lock()
	s.pending = append(s.pending, tx)
	n := len(s.pending)
	s.mu.Unlock()

	s.evHandler("state: SubmitTransaction: tx[%s] queued, pending[%d]", tx, n)

	if s.Worker != nil && n >= int(s.genesis.TransPerBlock) {
		s.Worker.SignalProduceBlock()
	}

	return nil
}

// InvalidateAccount drops every cached storage entry for the account. The
// epoch/governance boundary calls this whenever the account's underlying
// data changed outside the cache's own read path.
func (s *State) InvalidateAccount(accountID database.AccountID) {
	s.cache.InvalidateAccount(accountID)
}
