package database

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SlotWrite represents one storage slot assignment carried by a transaction.
// Writing the zero word clears the slot.
type SlotWrite struct {
	Slot  common.Hash `json:"slot"`
	Value uint256.Int `json:"value"`
}

// Tx is a transaction in the canonical order the block producer supplies.
// Consensus has already authenticated the sender, so the from account is
// carried explicitly rather than recovered from a signature.
type Tx struct {
	ChainID    uint16      `json:"chain_id"`    // Ethereum: The chain id that is listed in the genesis file.
	Nonce      uint64      `json:"nonce"`       // Ethereum: Unique id for the transaction supplied by the user.
	FromID     AccountID   `json:"from"`        // Account sending the transaction.
	ToID       AccountID   `json:"to"`          // Ethereum: Account receiving the benefit of the transaction.
	Value      uint64      `json:"value"`       // Ethereum: Monetary value received from this transaction.
	Data       []byte      `json:"data"`        // Ethereum: Extra data related to the transaction.
	SlotWrites []SlotWrite `json:"slot_writes"` // Storage slot assignments applied to the receiving account.
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	return fmt.Sprintf("%s:%d", tx.FromID, tx.Nonce)
}
