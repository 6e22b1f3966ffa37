package public

import (
	"github.com/meowchain/meowchain/foundation/blockchain/database"
)

// newTx is the payload for submitting a transaction.
type newTx struct {
	ChainID    uint16         `json:"chain_id" validate:"required"`
	Nonce      uint64         `json:"nonce" validate:"required"`
	From       string         `json:"from" validate:"required"`
	To         string         `json:"to" validate:"required"`
	Value      uint64         `json:"value"`
	Data       []byte         `json:"data"`
	SlotWrites []newSlotWrite `json:"slot_writes"`
}

// newSlotWrite is one storage slot assignment inside a transaction payload.
type newSlotWrite struct {
	Slot  string `json:"slot" validate:"required"`
	Value string `json:"value" validate:"required"`
}

// info is the account state returned to the client.
type info struct {
	Account database.AccountID `json:"account"`
	Balance uint64             `json:"balance"`
	Nonce   uint64             `json:"nonce"`
}

// actInfo wraps the account list with chain position details.
type actInfo struct {
	LatestBlock uint64 `json:"latest_block"`
	Uncommitted int    `json:"uncommitted"`
	Accounts    []info `json:"accounts"`
}

// blockInfo is the latest block position returned to the client.
type blockInfo struct {
	Number uint64 `json:"number"`
	Hash   string `json:"hash"`
}
