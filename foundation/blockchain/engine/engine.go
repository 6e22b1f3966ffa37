// Package engine provides the built-in transfer and storage execution
// engine. It applies the account and governance-storage business rules this
// chain supports natively; the executor treats it as an opaque
// implementation of the exec.Engine boundary, so a bytecode engine can take
// its place without touching the scheduling layer.
package engine

import (
	"fmt"

	"github.com/meowchain/meowchain/foundation/blockchain/database"
	"github.com/meowchain/meowchain/foundation/blockchain/exec"
	"github.com/meowchain/meowchain/foundation/blockchain/genesis"
)

// Gas charged for the fixed overhead of any transaction and for each
// storage slot assignment. Non-zero calldata bytes default to the chain's
// discount rate of 4 gas rather than the 16 gas mainnet charges.
const (
	intrinsicGas   = 21_000
	slotWriteGas   = 20_000
	zeroByteGas    = 4
	defaultByteGas = 4
	mainnetByteGas = 16
)

// Engine executes transfer and storage transactions against a transaction
// view. Gas fees are burned from the sender rather than credited to a
// beneficiary so independent transfers stay independent for scheduling.
type Engine struct {
	chainID     uint16
	gasPrice    uint64
	calldataGas uint64
}

// New constructs an engine from the genesis configuration.
func New(gen genesis.Genesis) *Engine {
	calldataGas := gen.CalldataGasPerByte
	if calldataGas == 0 || calldataGas > mainnetByteGas {
		calldataGas = defaultByteGas
	}

	return &Engine{
		chainID:     gen.ChainID,
		gasPrice:    gen.GasPrice,
		calldataGas: calldataGas,
	}
}

// Execute applies one transaction to the view, buffering every write in it.
// Business rule violations produce a revert result, not an error; the view
// is discarded by the executor so a reverted transaction changes nothing.
func (e *Engine) Execute(tx database.Tx, view *exec.TxView) (exec.Result, error) {
	gas := e.gasFor(tx)

	if tx.ChainID != e.chainID {
		return revert(gas, fmt.Errorf("wrong chain id, got %d, exp %d", tx.ChainID, e.chainID)), nil
	}
	if tx.FromID == tx.ToID {
		return revert(gas, fmt.Errorf("sending money to yourself, from %s, to %s", tx.FromID, tx.ToID)), nil
	}
	if !tx.FromID.IsAccountID() || !tx.ToID.IsAccountID() {
		return revert(gas, fmt.Errorf("invalid account, from %s, to %s", tx.FromID, tx.ToID)), nil
	}

	// Capture these accounts through the view so the footprint records the
	// account-level reads.
	from, _ := view.Account(tx.FromID)
	from.AccountID = tx.FromID
	to, _ := view.Account(tx.ToID)
	to.AccountID = tx.ToID

	if tx.Nonce <= from.Nonce {
		return revert(gas, fmt.Errorf("nonce too small, current %d, provided %d", from.Nonce, tx.Nonce)), nil
	}

	// The gas fee is burned. The account must hold the full amount.
	fee := gas * e.gasPrice
	if from.Balance < tx.Value+fee {
		return revert(gas, fmt.Errorf("insufficient funds, bal %d, needed %d", from.Balance, tx.Value+fee)), nil
	}

	// Update the balances between the two parties and bump the nonce for
	// the next transaction check.
	from.Balance -= tx.Value + fee
	from.Nonce = tx.Nonce
	to.Balance += tx.Value

	view.SetAccount(from)
	view.SetAccount(to)

	// Apply the storage slot assignments to the receiving account. The
	// prior value is read through the view so the slot shows up in the
	// read set as well as the write set.
	for _, write := range tx.SlotWrites {
		view.ReadStorage(tx.ToID, write.Slot)
		view.WriteStorage(tx.ToID, write.Slot, write.Value)
	}

	result := exec.Result{
		Status:  exec.StatusSuccess,
		GasUsed: gas,
		Logs: []exec.Log{
			{Account: tx.ToID, Data: fmt.Sprintf("transfer %d from %s", tx.Value, tx.FromID)},
		},
	}

	return result, nil
}

// =============================================================================

// gasFor computes the gas a transaction consumes: the intrinsic cost, the
// calldata cost per byte (non-zero bytes charged at the configured discount
// rate), and the cost of each storage slot assignment.
func (e *Engine) gasFor(tx database.Tx) uint64 {
	gas := uint64(intrinsicGas)

	for _, b := range tx.Data {
		if b == 0 {
			gas += zeroByteGas
			continue
		}
		gas += e.calldataGas
	}

	gas += uint64(len(tx.SlotWrites)) * slotWriteGas

	return gas
}

// revert constructs a revert result carrying the failure reason.
func revert(gas uint64, err error) exec.Result {
	return exec.Result{
		Status:  exec.StatusRevert,
		GasUsed: gas,
		Error:   err.Error(),
	}
}
