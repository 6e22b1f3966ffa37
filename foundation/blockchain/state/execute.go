package state

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/meowchain/meowchain/foundation/blockchain/database"
	"github.com/meowchain/meowchain/foundation/blockchain/exec"
	"github.com/meowchain/meowchain/foundation/blockchain/hotcache"
	"github.com/meowchain/meowchain/foundation/blockchain/statediff"
)

// ProduceBlock drains the pending queue and executes the drained
// transactions as the next block.
func (s *State) ProduceBlock(ctx context.Context) (statediff.StateDiff, error) {
	s.mu.Lock()
	n := len(s.pending)
	if n == 0 {
		s.mu.Unlock()
		return statediff.StateDiff{}, ErrNoTransactions
	}
	if limit := int(s.genesis.TransPerBlock); n > limit {
		n = limit
	}
	txs := make([]database.Tx, n)
	copy(txs, s.pending[:n])
	s.pending = append(s.pending[:0], s.pending[n:]...)
	s.mu.Unlock()

	report, diff, err := s.ScheduleAndExecute(ctx, txs)

	// A deadline finalizes only the committed prefix. The skipped remainder
	// goes back to the front of the queue so the next block picks it up in
	// canonical order.
	if errors.Is(err, exec.ErrDeadline) {
		s.requeueSkipped(txs, report)
	}

	return diff, err
}

// requeueSkipped puts the transactions a partial block never committed back
// at the head of the pending queue.
func (s *State) requeueSkipped(txs []database.Tx, report exec.BlockReport) {
	var skipped []database.Tx
	for i, result := range report.Results {
		if result.Status == exec.StatusSkipped {
			skipped = append(skipped, txs[i])
		}
	}
	if len(skipped) == 0 {
		return
	}

	s.mu.Lock()
	s.pending = append(skipped, s.pending...)
	n := len(s.pending)
	s.mu.Unlock()

	s.evHandler("state: requeueSkipped: requeued[%d] pending[%d]", len(skipped), n)
}

// ScheduleAndExecute is the block producer boundary: it executes the
// ordered transaction list as the next block and returns the ordered
// per-transaction results along with the finalized state diff.
//
// When the context deadline expires mid-block, or an engine fault aborts
// it, the committed prefix of batches still finalizes into the diff, the
// report is flagged partial, and the error is returned alongside it so the
// producer can decide how to execute the remainder.
func (s *State) ScheduleAndExecute(ctx context.Context, txs []database.Tx) (exec.BlockReport, statediff.StateDiff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blockNumber := s.blockNumber + 1
	blockHash := nextBlockHash(blockNumber, s.latestHash, txs)

	s.evHandler("state: ScheduleAndExecute: block[%d] txs[%d]", blockNumber, len(txs))

	builder := statediff.NewBuilder(blockNumber, blockHash)
	view := execState{db: s.db, reader: s.reader, cache: s.cache}

	// A partial report means batches already committed to the database, so
	// the block must finalize even though an error rides along. Only an
	// error with nothing committed discards the block.
	report, execErr := s.executor.ScheduleAndExecute(ctx, txs, view, builder)
	if execErr != nil && !report.Partial {
		return report, statediff.StateDiff{}, execErr
	}

	diff, err := builder.Build(report.GasUsed, len(txs))
	if err != nil {
		return report, statediff.StateDiff{}, err
	}

	s.blockNumber = blockNumber
	s.latestHash = blockHash
	s.latestDiff = diff
	s.lastReport = report

	// Governance storage is refreshed at fixed block-count boundaries by
	// mechanisms the cache cannot observe, so drop those entries.
	if s.genesis.EpochBlocks != 0 && blockNumber%s.genesis.EpochBlocks == 0 {
		s.evHandler("state: ScheduleAndExecute: epoch boundary at block[%d], invalidating %d governance accounts", blockNumber, len(s.governance))
		for _, accountID := range s.governance {
			s.cache.InvalidateAccount(accountID)
		}
	}

	s.evHandler("state: ScheduleAndExecute: block[%d] committed: batches[%d] avg[%.2f] reruns[%d] gas[%d]",
		blockNumber, report.Schedule.BatchCount(), report.AvgBatchSize(), report.Reruns, report.GasUsed)

	// Stream the finalized diff to any registered viewer.
	if data, err := json.Marshal(diff); err == nil {
		s.evHandler("viewer: diff: %s", data)
	}

	return report, diff, execErr
}

// =============================================================================

// execState is the combined state the executor runs one block against:
// account reads and commits go to the database, storage reads go through
// the hot cache, and committed storage writes invalidate the written
// account so later batches never see a stale cached value.
type execState struct {
	db     *database.Database
	reader *hotcache.CachedStorageReader
	cache  *hotcache.Cache
}

// Account returns the committed account record.
func (es execState) Account(accountID database.AccountID) (database.Account, bool) {
	return es.db.Account(accountID)
}

// ReadStorage reads a storage slot through the hot cache.
func (es execState) ReadStorage(accountID database.AccountID, slot common.Hash) (uint256.Int, bool) {
	return es.reader.ReadStorage(accountID, slot)
}

// SetAccount commits an account record.
func (es execState) SetAccount(account database.Account) {
	es.db.SetAccount(account)
}

// WriteStorage commits a storage slot write and drops the account's cached
// entries, which happened outside the cache's read path.
func (es execState) WriteStorage(accountID database.AccountID, slot common.Hash, value uint256.Int) {
	es.db.WriteStorage(accountID, slot, value)
	es.cache.InvalidateAccount(accountID)
}

// =============================================================================

// nextBlockHash derives a deterministic hash for the block being built from
// its number, parent hash, and transaction identities.
func nextBlockHash(blockNumber uint64, parentHash common.Hash, txs []database.Tx) common.Hash {
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], blockNumber)

	data := append([]byte{}, num[:]...)
	data = append(data, parentHash.Bytes()...)
	for _, tx := range txs {
		data = append(data, []byte(fmt.Sprintf("%s:%d:%s:%d", tx.FromID, tx.Nonce, tx.ToID, tx.Value))...)
	}

	return crypto.Keccak256Hash(data)
}
