package exec_test

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/holiman/uint256"
	"github.com/meowchain/meowchain/foundation/blockchain/database"
	"github.com/meowchain/meowchain/foundation/blockchain/exec"
	"github.com/meowchain/meowchain/foundation/blockchain/genesis"
)

// transferEngine applies plain transfers and slot writes through the view.
type transferEngine struct{}

func (transferEngine) Execute(tx database.Tx, view *exec.TxView) (exec.Result, error) {
	from, _ := view.Account(tx.FromID)
	from.AccountID = tx.FromID
	to, _ := view.Account(tx.ToID)
	to.AccountID = tx.ToID

	if from.Balance < tx.Value {
		return exec.Result{Status: exec.StatusRevert, GasUsed: 21, Error: "insufficient funds"}, nil
	}

	from.Balance -= tx.Value
	from.Nonce = tx.Nonce
	to.Balance += tx.Value

	view.SetAccount(from)
	view.SetAccount(to)

	for _, sw := range tx.SlotWrites {
		view.ReadStorage(tx.ToID, sw.Slot)
		view.WriteStorage(tx.ToID, sw.Slot, sw.Value)
	}

	return exec.Result{Status: exec.StatusSuccess, GasUsed: 21}, nil
}

// branchingEngine reads an extra slot only when the first slot holds a
// value, so its footprint depends on the state it runs against.
type branchingEngine struct{}

func (branchingEngine) Execute(tx database.Tx, view *exec.TxView) (exec.Result, error) {
	if tx.Value > 0 {
		view.WriteStorage(tx.ToID, slot1, *uint256.NewInt(tx.Value))
		return exec.Result{Status: exec.StatusSuccess, GasUsed: 21}, nil
	}

	value, _ := view.ReadStorage(tx.ToID, slot1)
	if !value.IsZero() {
		view.ReadStorage(tx.ToID, slot2)
	}

	return exec.Result{Status: exec.StatusSuccess, GasUsed: 21}, nil
}

// expiringEngine wraps another engine and expires the block context once a
// configured number of executions has run.
type expiringEngine struct {
	inner  exec.Engine
	cancel context.CancelFunc
	after  int32
	calls  *int32
}

func (e expiringEngine) Execute(tx database.Tx, view *exec.TxView) (exec.Result, error) {
	if atomic.AddInt32(e.calls, 1) == e.after {
		e.cancel()
	}
	return e.inner.Execute(tx, view)
}

// trapEngine transfers like transferEngine but faults whenever the
// receiver's first slot holds a value, so the fault only fires against
// committed block state, never during speculation.
type trapEngine struct{}

func (trapEngine) Execute(tx database.Tx, view *exec.TxView) (exec.Result, error) {
	if value, _ := view.ReadStorage(tx.ToID, slot1); !value.IsZero() {
		return exec.Result{}, errors.New("engine fault")
	}
	return transferEngine{}.Execute(tx, view)
}

// storageEngine interprets the transaction value as a small storage
// program, keeping every footprint at the slot level.
type storageEngine struct{}

func (storageEngine) Execute(tx database.Tx, view *exec.TxView) (exec.Result, error) {
	switch tx.Value {

	// Arm the flag slot.
	case 1:
		view.WriteStorage(tx.ToID, slot1, *uint256.NewInt(1))

	// Spill into the data slot only when the flag is set.
	case 2:
		if flag, _ := view.ReadStorage(tx.ToID, slot1); !flag.IsZero() {
			view.WriteStorage(tx.ToID, slot2, *uint256.NewInt(7))
		}

	// Derive the result slot from the data slot.
	case 3:
		view.ReadStorage(tx.ToID, slot1)
		data, _ := view.ReadStorage(tx.ToID, slot2)
		view.WriteStorage(tx.ToID, slot3, *uint256.NewInt(data.Uint64()+1))
	}

	return exec.Result{Status: exec.StatusSuccess, GasUsed: 21}, nil
}

// =============================================================================

func newDatabase(t *testing.T) *database.Database {
	t.Helper()

	db, err := database.New(genesis.Genesis{
		Balances: map[string]uint64{
			string(acc1): 1000,
			string(acc2): 1000,
			string(acc3): 1000,
		},
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the database: %v", failed, err)
	}

	return db
}

func newExecutor(t *testing.T, engine exec.Engine, sequential bool) *exec.Executor {
	t.Helper()

	ex, err := exec.New(exec.Config{
		Engine:     engine,
		Workers:    4,
		Sequential: sequential,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the executor: %v", failed, err)
	}

	return ex
}

// =============================================================================

func Test_ParallelMatchesSequential(t *testing.T) {
	txs := []database.Tx{
		{FromID: acc1, ToID: acc2, Nonce: 1, Value: 100},
		{FromID: acc3, ToID: acc1, Nonce: 1, Value: 50, SlotWrites: []database.SlotWrite{
			{Slot: slot1, Value: *uint256.NewInt(7)},
		}},
		{FromID: acc2, ToID: acc3, Nonce: 1, Value: 5000},
		{FromID: acc2, ToID: acc3, Nonce: 2, Value: 25},
	}

	t.Log("Given the need for parallel execution to match sequential execution.")
	{
		t.Log("\tTest 0:\tWhen executing the same block both ways.")
		{
			parDB := newDatabase(t)
			parEx := newExecutor(t, transferEngine{}, false)
			parReport, err := parEx.ScheduleAndExecute(context.Background(), txs, parDB, nil)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to execute in parallel: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to execute in parallel.", success)

			seqDB := newDatabase(t)
			seqEx := newExecutor(t, transferEngine{}, true)
			seqReport, err := seqEx.ScheduleAndExecute(context.Background(), txs, seqDB, nil)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to execute sequentially: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to execute sequentially.", success)

			if !reflect.DeepEqual(parReport.Results, seqReport.Results) {
				t.Fatalf("\t%s\tTest 0:\tShould get identical ordered results.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould get identical ordered results.", success)

			if !reflect.DeepEqual(parDB.CopyAccounts(), seqDB.CopyAccounts()) {
				t.Fatalf("\t%s\tTest 0:\tShould get identical account state.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould get identical account state.", success)

			if !reflect.DeepEqual(parDB.CopyStorage(), seqDB.CopyStorage()) {
				t.Fatalf("\t%s\tTest 0:\tShould get identical storage state.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould get identical storage state.", success)

			if parReport.GasUsed != seqReport.GasUsed {
				t.Fatalf("\t%s\tTest 0:\tShould get identical gas usage, got %d exp %d.", failed, parReport.GasUsed, seqReport.GasUsed)
			}
			t.Logf("\t%s\tTest 0:\tShould get identical gas usage.", success)
		}

		t.Log("\tTest 1:\tWhen a transaction reverts it must change nothing.")
		{
			db := newDatabase(t)
			ex := newExecutor(t, transferEngine{}, false)

			report, err := ex.ScheduleAndExecute(context.Background(), txs, db, nil)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to execute the block: %v", failed, err)
			}

			if report.Results[2].Status != exec.StatusRevert {
				t.Fatalf("\t%s\tTest 1:\tShould revert the overdrawn transaction, got %q.", failed, report.Results[2].Status)
			}
			t.Logf("\t%s\tTest 1:\tShould revert the overdrawn transaction.", success)

			account, _ := db.Account(acc3)
			if account.Balance != 1000-50+25 {
				t.Fatalf("\t%s\tTest 1:\tShould leave the receiver untouched by the revert, bal %d.", failed, account.Balance)
			}
			t.Logf("\t%s\tTest 1:\tShould leave the receiver untouched by the revert.", success)
		}
	}
}

func Test_ExecutorDeadline(t *testing.T) {
	txs := []database.Tx{
		{FromID: acc1, ToID: acc2, Nonce: 1, Value: 100},
		{FromID: acc3, ToID: acc1, Nonce: 1, Value: 50},
	}

	t.Log("Given the need to stop cleanly when the block deadline expires.")
	{
		t.Log("\tTest 0:\tWhen the context is already expired.")
		{
			db := newDatabase(t)
			ex := newExecutor(t, transferEngine{}, false)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			report, err := ex.ScheduleAndExecute(ctx, txs, db, nil)
			if err != exec.ErrDeadline {
				t.Fatalf("\t%s\tTest 0:\tShould get ErrDeadline, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get ErrDeadline.", success)

			if !report.Partial {
				t.Fatalf("\t%s\tTest 0:\tShould flag the report partial.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould flag the report partial.", success)

			for i, result := range report.Results {
				if result.Status != exec.StatusSkipped {
					t.Fatalf("\t%s\tTest 0:\tShould mark tx %d skipped, got %q.", failed, i, result.Status)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould mark every uncommitted transaction skipped.", success)

			account, _ := db.Account(acc1)
			if account.Balance != 1000 {
				t.Fatalf("\t%s\tTest 0:\tShould leave the state untouched, bal %d.", failed, account.Balance)
			}
			t.Logf("\t%s\tTest 0:\tShould leave the state untouched.", success)
		}

		t.Log("\tTest 1:\tWhen the deadline expires between batches.")
		{
			db := newDatabase(t)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			eng := expiringEngine{
				inner:  transferEngine{},
				cancel: cancel,
				after:  4, // Two speculative runs, then one run per batch.
				calls:  new(int32),
			}
			ex := newExecutor(t, eng, false)

			report, err := ex.ScheduleAndExecute(ctx, txs, db, nil)
			if !errors.Is(err, exec.ErrDeadline) {
				t.Fatalf("\t%s\tTest 1:\tShould get ErrDeadline, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould get ErrDeadline.", success)

			if !report.Partial {
				t.Fatalf("\t%s\tTest 1:\tShould flag the report partial.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould flag the report partial.", success)

			if report.Results[0].Status != exec.StatusSuccess {
				t.Fatalf("\t%s\tTest 1:\tShould commit the first batch, got %q.", failed, report.Results[0].Status)
			}
			if report.Results[1].Status != exec.StatusSkipped {
				t.Fatalf("\t%s\tTest 1:\tShould skip the expired batch, got %q.", failed, report.Results[1].Status)
			}
			t.Logf("\t%s\tTest 1:\tShould commit the first batch and skip the rest.", success)

			receiver, _ := db.Account(acc2)
			untouched, _ := db.Account(acc3)
			if receiver.Balance != 1100 || untouched.Balance != 1000 {
				t.Fatalf("\t%s\tTest 1:\tShould hold exactly the committed prefix, bals %d %d.", failed, receiver.Balance, untouched.Balance)
			}
			t.Logf("\t%s\tTest 1:\tShould hold exactly the committed prefix.", success)
		}
	}
}

func Test_EngineFault(t *testing.T) {
	txs := []database.Tx{
		{FromID: acc1, ToID: acc2, Nonce: 1, Value: 100, SlotWrites: []database.SlotWrite{
			{Slot: slot1, Value: *uint256.NewInt(1)},
		}},
		{FromID: acc3, ToID: acc2, Nonce: 1, Value: 50},
	}

	t.Log("Given the need to abort on an engine fault without losing committed batches.")
	{
		t.Log("\tTest 0:\tWhen the engine faults in a later batch.")
		{
			db := newDatabase(t)
			ex := newExecutor(t, trapEngine{}, false)

			report, err := ex.ScheduleAndExecute(context.Background(), txs, db, nil)
			if err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould report the engine fault.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould report the engine fault.", success)

			if !report.Partial {
				t.Fatalf("\t%s\tTest 0:\tShould flag the report partial.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould flag the report partial.", success)

			if report.Results[0].Status != exec.StatusSuccess || report.Results[1].Status != exec.StatusSkipped {
				t.Fatalf("\t%s\tTest 0:\tShould keep the first batch and skip the faulting one, got %q %q.", failed, report.Results[0].Status, report.Results[1].Status)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the first batch and skip the faulting one.", success)

			receiver, _ := db.Account(acc2)
			untouched, _ := db.Account(acc3)
			if receiver.Balance != 1100 || untouched.Balance != 1000 {
				t.Fatalf("\t%s\tTest 0:\tShould commit nothing from the faulting batch, bals %d %d.", failed, receiver.Balance, untouched.Balance)
			}
			t.Logf("\t%s\tTest 0:\tShould commit nothing from the faulting batch.", success)
		}
	}
}

func Test_SpeculativeMismatchRerun(t *testing.T) {
	txs := []database.Tx{
		{FromID: acc1, ToID: acc2, Nonce: 1, Value: 5},
		{FromID: acc1, ToID: acc2, Nonce: 2, Value: 0},
	}

	t.Log("Given the need to repair transactions that escape their speculative record.")
	{
		t.Log("\tTest 0:\tWhen a committed write changes a later transaction's branch.")
		{
			db := newDatabase(t)
			ex := newExecutor(t, branchingEngine{}, false)

			report, err := ex.ScheduleAndExecute(context.Background(), txs, db, nil)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to execute the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to execute the block.", success)

			if report.Reruns != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould re-run exactly one transaction, got %d.", failed, report.Reruns)
			}
			t.Logf("\t%s\tTest 0:\tShould re-run exactly one transaction.", success)

			for i, result := range report.Results {
				if result.Status != exec.StatusSuccess {
					t.Fatalf("\t%s\tTest 0:\tShould succeed tx %d, got %q.", failed, i, result.Status)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould succeed every transaction.", success)

			value, exists := db.ReadStorage(acc2, slot1)
			if !exists || value.Uint64() != 5 {
				t.Fatalf("\t%s\tTest 0:\tShould commit the slot write, got %s.", failed, value.Dec())
			}
			t.Logf("\t%s\tTest 0:\tShould commit the slot write.", success)
		}
	}
}

func Test_RerunCascade(t *testing.T) {
	txs := []database.Tx{
		{FromID: acc1, ToID: acc2, Nonce: 1, Value: 1},
		{FromID: acc1, ToID: acc2, Nonce: 2, Value: 2},
		{FromID: acc1, ToID: acc2, Nonce: 3, Value: 3},
	}

	t.Log("Given the need for a re-run's corrected writes to reach its batch siblings.")
	{
		t.Log("\tTest 0:\tWhen a re-run writes a slot a sibling already read.")
		{
			db := newDatabase(t)
			ex := newExecutor(t, storageEngine{}, false)

			report, err := ex.ScheduleAndExecute(context.Background(), txs, db, nil)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to execute the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to execute the block.", success)

			// The second transaction escapes its record and the third one
			// read the slot the re-run then wrote, so both re-run.
			if report.Reruns != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould re-run the escapee and its sibling, got %d.", failed, report.Reruns)
			}
			t.Logf("\t%s\tTest 0:\tShould re-run the escapee and its sibling.", success)

			value, exists := db.ReadStorage(acc2, slot2)
			if !exists || value.Uint64() != 7 {
				t.Fatalf("\t%s\tTest 0:\tShould commit the re-run's write, got %s.", failed, value.Dec())
			}
			t.Logf("\t%s\tTest 0:\tShould commit the re-run's write.", success)

			value, exists = db.ReadStorage(acc2, slot3)
			if !exists || value.Uint64() != 8 {
				t.Fatalf("\t%s\tTest 0:\tShould derive from the re-run's write, not the stale read, got %s.", failed, value.Dec())
			}
			t.Logf("\t%s\tTest 0:\tShould derive from the re-run's write, not the stale read.", success)
		}
	}
}

func Test_EmptyBlock(t *testing.T) {
	t.Log("Given the need to handle a block with no transactions.")
	{
		t.Log("\tTest 0:\tWhen executing zero transactions.")
		{
			db := newDatabase(t)
			ex := newExecutor(t, transferEngine{}, false)

			report, err := ex.ScheduleAndExecute(context.Background(), nil, db, nil)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to execute an empty block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to execute an empty block.", success)

			if len(report.Results) != 0 || report.Schedule.BatchCount() != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould get an empty report.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould get an empty report.", success)
		}
	}
}
