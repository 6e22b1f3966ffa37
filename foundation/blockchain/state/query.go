package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/meowchain/meowchain/foundation/blockchain/database"
	"github.com/meowchain/meowchain/foundation/blockchain/exec"
	"github.com/meowchain/meowchain/foundation/blockchain/genesis"
	"github.com/meowchain/meowchain/foundation/blockchain/hotcache"
	"github.com/meowchain/meowchain/foundation/blockchain/statediff"
)

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveAccounts returns a copy of the committed account set.
func (s *State) RetrieveAccounts() map[database.AccountID]database.Account {
	return s.db.CopyAccounts()
}

// RetrieveLatestDiff returns the state diff of the most recent block.
func (s *State) RetrieveLatestDiff() statediff.StateDiff {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.latestDiff
}

// RetrieveLatestBlock returns the number and hash of the most recent block.
func (s *State) RetrieveLatestBlock() (uint64, common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.blockNumber, s.latestHash
}

// RetrieveLastReport returns the execution report of the most recent block,
// including the achieved-parallelism metrics.
func (s *State) RetrieveLastReport() exec.BlockReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastReport
}

// RetrieveCacheStats returns the hot cache counters.
func (s *State) RetrieveCacheStats() hotcache.Stats {
	return s.cache.Stats()
}

// RetrievePendingCount returns the number of queued transactions.
func (s *State) RetrievePendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.pending)
}
