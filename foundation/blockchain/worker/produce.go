package worker

import (
	"context"
	"errors"
	"time"

	"github.com/meowchain/meowchain/foundation/blockchain/exec"
	"github.com/meowchain/meowchain/foundation/blockchain/state"
)

// tickerOperations turns the block period into production signals so blocks
// are produced on schedule even when the queue never fills.
func (w *Worker) tickerOperations() {
	w.evHandler("worker: tickerOperations: G started")
	defer w.evHandler("worker: tickerOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.SignalProduceBlock()
			}
		case <-w.shut:
			w.evHandler("worker: tickerOperations: received shut signal")
			return
		}
	}
}

// produceBlockOperations handles block production.
func (w *Worker) produceBlockOperations() {
	w.evHandler("worker: produceBlockOperations: G started")
	defer w.evHandler("worker: produceBlockOperations: G completed")

	for {
		select {
		case <-w.produceBlock:
			if !w.isShutdown() {
				w.runProduceBlockOperation()
			}
		case <-w.shut:
			w.evHandler("worker: produceBlockOperations: received shut signal")
			return
		}
	}
}

// runProduceBlockOperation drains the pending queue into the next block. The
// block build runs under a deadline of one block period so a slow block
// finalizes its committed prefix instead of delaying the chain.
func (w *Worker) runProduceBlockOperation() {
	w.evHandler("worker: runProduceBlockOperation: PRODUCE: started")
	defer w.evHandler("worker: runProduceBlockOperation: PRODUCE: completed")

	// After producing a block, check if another block should be signaled.
	defer func() {
		if w.state.RetrievePendingCount() > 0 {
			w.evHandler("worker: runProduceBlockOperation: PRODUCE: signal new block production")
			w.SignalProduceBlock()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.blockTimeout)
	defer cancel()

	t := time.Now()
	diff, err := w.state.ProduceBlock(ctx)
	duration := time.Since(t)

	w.evHandler("worker: runProduceBlockOperation: PRODUCE: duration[%v]", duration)

	if err != nil {
		switch {
		case errors.Is(err, state.ErrNoTransactions):
			w.evHandler("worker: runProduceBlockOperation: PRODUCE: no transactions queued")
		case errors.Is(err, exec.ErrDeadline):
			w.evHandler("worker: runProduceBlockOperation: PRODUCE: WARNING: deadline expired, block[%d] finalized partial, remainder requeued", diff.BlockNumber)
		default:
			w.evHandler("worker: runProduceBlockOperation: PRODUCE: ERROR: %s", err)
		}
		return
	}

	w.evHandler("worker: runProduceBlockOperation: PRODUCE: block[%d] accounts changed[%d]", diff.BlockNumber, len(diff.Changes))
}
