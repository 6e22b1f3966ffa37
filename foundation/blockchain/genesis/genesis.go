// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/meowchain/meowchain/business/sys/validate"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date               time.Time         `json:"date"`
	ChainID            uint16            `json:"chain_id" validate:"required"`                  // The chain id represents an unique id for this running instance.
	TransPerBlock      uint16            `json:"trans_per_block" validate:"required"`           // The maximum number of transactions that can be in a block.
	BlockPeriod        uint16            `json:"block_period" validate:"required"`              // Seconds between produced blocks.
	EpochBlocks        uint64            `json:"epoch_blocks" validate:"required"`              // Block count between governance cache invalidations.
	GasPrice           uint64            `json:"gas_price"`                                     // Fee paid per unit of gas used by a transaction.
	CalldataGasPerByte uint64            `json:"calldata_gas_per_byte" validate:"gte=1,lte=16"` // Gas charged per non-zero byte of transaction data.
	CacheCapacity      int               `json:"cache_capacity" validate:"required,gt=0"`       // Maximum number of hot storage slots kept in memory.
	Workers            int               `json:"workers" validate:"required,gt=0"`              // Goroutines executing a batch of transactions.
	GovernanceAccounts []string          `json:"governance_accounts"`                           // Accounts whose cached storage is dropped at epoch boundaries.
	Balances           map[string]uint64 `json:"balances"`
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	if err := validate.Check(genesis); err != nil {
		return Genesis{}, fmt.Errorf("validating genesis: %w", err)
	}

	return genesis, nil
}
