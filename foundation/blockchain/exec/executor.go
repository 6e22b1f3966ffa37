package exec

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/meowchain/meowchain/foundation/blockchain/database"
)

// Statuses for the outcome of executing one transaction.
const (
	StatusSuccess = "success"
	StatusRevert  = "revert"
	StatusSkipped = "skipped"
)

// ErrDeadline is returned when a block build ran out of time. The report
// returned alongside it is partial: transactions not committed carry the
// skipped status and the producer decides how to finish the block.
var ErrDeadline = errors.New("block execution deadline exceeded")

// =============================================================================

// Log represents an event emitted by a transaction during execution.
type Log struct {
	Account database.AccountID `json:"account"`
	Data    string             `json:"data"`
}

// Result is the outcome of executing one transaction.
type Result struct {
	Status  string `json:"status"`
	GasUsed uint64 `json:"gas_used"`
	Logs    []Log  `json:"logs"`
	Error   string `json:"error,omitempty"` // Populated when the status is revert.
}

// Engine represents the behavior required to be implemented by the
// bytecode-execution engine this layer drives. Execute applies one
// transaction to the view, buffering all writes in it; a returned error is
// an engine fault, not a transaction failure, and aborts the block.
type Engine interface {
	Execute(tx database.Tx, view *TxView) (Result, error)
}

// EventHandler defines a function that is called when events occur during
// block execution.
type EventHandler func(v string, args ...any)

// =============================================================================

// Config represents the configuration required to construct an executor.
type Config struct {
	Engine     Engine
	Workers    int
	Sequential bool // Execute every transaction alone in its own batch.
	EvHandler  EventHandler
}

// Executor schedules and executes the transactions of one block at a time.
// It is not safe for concurrent block builds; one block completes before the
// next begins.
type Executor struct {
	engine     Engine
	workers    int
	sequential bool
	evHandler  EventHandler
}

// New constructs an executor for the specified configuration.
func New(cfg Config) (*Executor, error) {
	if cfg.Engine == nil {
		return nil, errors.New("an execution engine is required")
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("invalid worker count %d", cfg.Workers)
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	ex := Executor{
		engine:     cfg.Engine,
		workers:    cfg.Workers,
		sequential: cfg.Sequential,
		evHandler:  ev,
	}

	return &ex, nil
}

// =============================================================================

// BlockReport is the ordered outcome of one block build plus the achieved
// parallelism metrics.
type BlockReport struct {
	Results  []Result
	Schedule Schedule
	GasUsed  uint64
	Reruns   int  // Transactions re-executed after a speculative record mismatch.
	Partial  bool // True when a deadline or engine fault stopped the block before every batch committed.
}

// AvgBatchSize returns the average batch size achieved for the block.
func (br BlockReport) AvgBatchSize() float64 {
	return br.Schedule.AvgBatchSize()
}

// =============================================================================

// ScheduleAndExecute runs the ordered transaction list against the state and
// returns the ordered results, exactly as strictly sequential execution in
// canonical order would have produced them.
//
// Transactions are first run speculatively against the pre-block state to
// collect access records, the records are layered into non-conflicting
// batches, and each batch executes concurrently over the worker pool.
// Results commit atomically in canonical transaction order once the whole
// batch is known. The commit-time footprint is re-derived and is
// authoritative: a transaction that escapes its speculative record is
// re-executed sequentially against the committed state instead.
//
// When the context expires, uncommitted overlays are discarded, remaining
// transactions report the skipped status, and ErrDeadline is returned with
// the partial report.
func (ex *Executor) ScheduleAndExecute(ctx context.Context, txs []database.Tx, st State, rec Recorder) (BlockReport, error) {
	report := BlockReport{
		Results: make([]Result, len(txs)),
	}
	for i := range report.Results {
		report.Results[i] = Result{Status: StatusSkipped}
	}

	if len(txs) == 0 {
		return report, nil
	}

	// Collect access records with a speculative pre-pass and layer them
	// into batches. The fallback mode skips speculation entirely.
	var records []*AccessRecord
	switch {
	case ex.sequential:
		report.Schedule = sequentialSchedule(len(txs))

	default:
		records = ex.speculate(ctx, txs, st)
		report.Schedule = BuildSchedule(records)
	}

	ex.evHandler("exec: ScheduleAndExecute: txs[%d] batches[%d] avg[%.2f]", len(txs), report.Schedule.BatchCount(), report.Schedule.AvgBatchSize())

	for _, batch := range report.Schedule.Batches {
		if ctx.Err() != nil {
			report.Partial = true
			return report, ErrDeadline
		}

		assertNoConflicts(records, batch)

		// Execute the batch concurrently, each transaction against its
		// own overlay of the committed state.
		views := make([]*TxView, len(batch))
		results := make([]Result, len(batch))
		errs := make([]error, len(batch))

		ex.runConcurrent(len(batch), func(i int) {
			view := NewTxView(st)
			result, err := ex.engine.Execute(txs[batch[i]], view)
			views[i], results[i], errs[i] = view, result, err
		})

		// The whole batch is abandoned when the deadline expired while it
		// was in flight. Nothing computed above has been committed.
		if ctx.Err() != nil {
			report.Partial = true
			return report, ErrDeadline
		}

		// An engine fault aborts the block before anything from this batch
		// commits. Earlier batches stay committed; the report is flagged
		// partial so the caller finalizes the committed prefix.
		for i, err := range errs {
			if err != nil {
				report.Partial = true
				return report, fmt.Errorf("engine fault executing tx %d: %w", batch[i], err)
			}
		}

		// Commit in canonical transaction order.
		var rerunRecords []*AccessRecord

		for i, txIndex := range batch {
			view, result := views[i], results[i]

			// The speculative record must cover what the transaction
			// actually touched. When it does not, the parallel result
			// cannot be trusted: re-run sequentially against the true
			// post-predecessor state. A re-run's corrected footprint can
			// in turn escape into a later sibling's footprint, so every
			// re-run record is checked against the siblings that follow.
			rerun := records != nil && !records[txIndex].Covers(view.Record())
			if !rerun {
				for _, rr := range rerunRecords {
					if Conflicts(rr, view.Record()) {
						rerun = true
						break
					}
				}
			}

			if rerun {
				ex.evHandler("exec: ScheduleAndExecute: tx[%d] escaped its speculative record, re-running sequentially", txIndex)
				report.Reruns++

				view = NewTxView(st)
				var err error
				result, err = ex.engine.Execute(txs[txIndex], view)
				if err != nil {
					report.Partial = true
					return report, fmt.Errorf("engine fault re-executing tx %d: %w", txIndex, err)
				}
				rerunRecords = append(rerunRecords, view.Record())
			}

			if result.Status == StatusSuccess {
				view.commit(st, rec)
			}

			report.Results[txIndex] = result
			report.GasUsed += result.GasUsed
		}
	}

	return report, nil
}

// =============================================================================

// speculate executes every transaction concurrently against the pre-block
// state and returns the collected access records. Results are discarded;
// only the footprints matter for scheduling.
func (ex *Executor) speculate(ctx context.Context, txs []database.Tx, base StateReader) []*AccessRecord {
	records := make([]*AccessRecord, len(txs))

	ex.runConcurrent(len(txs), func(i int) {
		view := NewTxView(base)
		ex.engine.Execute(txs[i], view)
		records[i] = view.Record()
	})

	return records
}

// runConcurrent runs fn for every index over at most workers goroutines.
func (ex *Executor) runConcurrent(n int, fn func(i int)) {
	sem := make(chan struct{}, ex.workers)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i)
		}(i)
	}
	wg.Wait()
}

// assertNoConflicts panics when two transactions sharing a batch conflict.
// The scheduler guarantees this never happens; a violation is a programming
// error that must not be papered over.
func assertNoConflicts(records []*AccessRecord, batch []int) {
	if records == nil {
		return
	}

	for i := 1; i < len(batch); i++ {
		for j := 0; j < i; j++ {
			if Conflicts(records[batch[j]], records[batch[i]]) {
				panic(fmt.Sprintf("schedule invariant violated: conflicting txs %d and %d share a batch", batch[j], batch[i]))
			}
		}
	}
}
