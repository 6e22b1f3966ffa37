// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
	"github.com/meowchain/meowchain/business/sys/validate"
	v1 "github.com/meowchain/meowchain/business/web/v1"
	"github.com/meowchain/meowchain/foundation/blockchain/database"
	"github.com/meowchain/meowchain/foundation/blockchain/state"
	"github.com/meowchain/meowchain/foundation/events"
	"github.com/meowchain/meowchain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of public endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitTransaction queues a new transaction for the next block.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var payload newTx
	if err := web.Decode(r, &payload); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	if err := validate.Check(payload); err != nil {
		return err
	}

	tx, err := toDatabaseTx(payload)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	h.Log.Infow("submit tran", "traceid", v.TraceID, "tx", tx, "slot writes", len(tx.SlotWrites))
	if err := h.State.SubmitTransaction(tx); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction queued",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Accounts returns the committed state for all accounts or one account.
func (h Handlers) Accounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	account := web.Param(r, "account")

	dbAccounts := h.State.RetrieveAccounts()

	var acts []info
	for accountID, dbAccount := range dbAccounts {
		if account != "" && account != string(accountID) {
			continue
		}
		acts = append(acts, info{
			Account: accountID,
			Balance: dbAccount.Balance,
			Nonce:   dbAccount.Nonce,
		})
	}
	sort.Slice(acts, func(i, j int) bool { return acts[i].Account < acts[j].Account })

	blockNumber, _ := h.State.RetrieveLatestBlock()

	ai := actInfo{
		LatestBlock: blockNumber,
		Uncommitted: h.State.RetrievePendingCount(),
		Accounts:    acts,
	}

	return web.Respond(ctx, w, ai, http.StatusOK)
}

// LatestBlock returns the number and hash of the most recent block.
func (h Handlers) LatestBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	number, hash := h.State.RetrieveLatestBlock()

	bi := blockInfo{
		Number: number,
		Hash:   hash.Hex(),
	}

	return web.Respond(ctx, w, bi, http.StatusOK)
}

// LatestDiff returns the state diff of the most recent block.
func (h Handlers) LatestDiff(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	diff := h.State.RetrieveLatestDiff()
	return web.Respond(ctx, w, diff, http.StatusOK)
}

// ExecutionMetrics returns the hot cache counters and the scheduling report
// for the most recent block.
func (h Handlers) ExecutionMetrics(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	report := h.State.RetrieveLastReport()

	resp := struct {
		Cache        any     `json:"cache"`
		Batches      int     `json:"batches"`
		Transactions int     `json:"transactions"`
		AvgBatchSize float64 `json:"avg_batch_size"`
		Reruns       int     `json:"reruns"`
		GasUsed      uint64  `json:"gas_used"`
		Partial      bool    `json:"partial"`
	}{
		Cache:        h.State.RetrieveCacheStats(),
		Batches:      report.Schedule.BatchCount(),
		Transactions: report.Schedule.TxCount(),
		AvgBatchSize: report.AvgBatchSize(),
		Reruns:       report.Reruns,
		GasUsed:      report.GasUsed,
		Partial:      report.Partial,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// InvalidateAccount drops every cached storage entry for the account. This
// is the hook governance tooling calls after refreshing an account's storage
// outside the execution path.
func (h Handlers) InvalidateAccount(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	accountID, err := database.ToAccountID(web.Param(r, "account"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	h.State.InvalidateAccount(accountID)

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "account invalidated",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// =============================================================================

// toDatabaseTx converts the payload into a transaction ready for the queue.
func toDatabaseTx(payload newTx) (database.Tx, error) {
	fromID, err := database.ToAccountID(payload.From)
	if err != nil {
		return database.Tx{}, err
	}
	toID, err := database.ToAccountID(payload.To)
	if err != nil {
		return database.Tx{}, err
	}

	slotWrites := make([]database.SlotWrite, len(payload.SlotWrites))
	for i, sw := range payload.SlotWrites {
		value, err := uint256.FromHex(sw.Value)
		if err != nil {
			return database.Tx{}, fmt.Errorf("slot value %q: %w", sw.Value, err)
		}
		slotWrites[i] = database.SlotWrite{
			Slot:  common.HexToHash(sw.Slot),
			Value: *value,
		}
	}

	tx := database.Tx{
		ChainID:    payload.ChainID,
		Nonce:      payload.Nonce,
		FromID:     fromID,
		ToID:       toID,
		Value:      payload.Value,
		Data:       payload.Data,
		SlotWrites: slotWrites,
	}

	return tx, nil
}
