// Package worker implements background block production for the execution
// layer.
package worker

import (
	"sync"
	"time"

	"github.com/meowchain/meowchain/foundation/blockchain/state"
)

// Worker manages the block production workflow for the node.
type Worker struct {
	state        *state.State
	wg           sync.WaitGroup
	ticker       *time.Ticker
	blockTimeout time.Duration
	shut         chan struct{}
	produceBlock chan bool
	evHandler    state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, evHandler state.EventHandler) {
	gen := st.RetrieveGenesis()
	blockPeriod := time.Duration(gen.BlockPeriod) * time.Second

	w := Worker{
		state:        st,
		ticker:       time.NewTicker(blockPeriod),
		blockTimeout: blockPeriod,
		shut:         make(chan struct{}),
		produceBlock: make(chan bool, 1),
		evHandler:    evHandler,
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Load the set of operations we need to run.
	operations := []func(){
		w.tickerOperations,
		w.produceBlockOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop ticker")
	w.ticker.Stop()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SignalProduceBlock starts a block production operation. If there is already
// a signal pending in the channel, just return since a block will be produced.
func (w *Worker) SignalProduceBlock() {
	select {
	case w.produceBlock <- true:
	default:
	}
	w.evHandler("worker: SignalProduceBlock: block production signaled")
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
