package genesis_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/meowchain/meowchain/foundation/blockchain/genesis"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const goodGenesis = `{
  "date": "2026-01-01T00:00:00.000000000Z",
  "chain_id": 1,
  "trans_per_block": 16,
  "block_period": 12,
  "epoch_blocks": 32,
  "gas_price": 1,
  "calldata_gas_per_byte": 4,
  "cache_capacity": 1024,
  "workers": 8,
  "governance_accounts": ["0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"],
  "balances": {
    "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4": 1000000000
  }
}`

func write(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "genesis.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("\t%s\tShould be able to write the genesis file: %v", failed, err)
	}
	return path
}

// =============================================================================

func Test_Load(t *testing.T) {
	t.Log("Given the need to load and validate the genesis file.")
	{
		t.Log("\tTest 0:\tWhen loading a well formed file.")
		{
			gen, err := genesis.Load(write(t, goodGenesis))
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to load the file: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to load the file.", success)

			if gen.ChainID != 1 || gen.CacheCapacity != 1024 || gen.Workers != 8 {
				t.Fatalf("\t%s\tTest 0:\tShould carry the configured values, got %+v.", failed, gen)
			}
			t.Logf("\t%s\tTest 0:\tShould carry the configured values.", success)
		}

		t.Log("\tTest 1:\tWhen the calldata gas rate exceeds the mainnet rate.")
		{
			bad := `{
  "chain_id": 1,
  "trans_per_block": 16,
  "block_period": 12,
  "epoch_blocks": 32,
  "calldata_gas_per_byte": 99,
  "cache_capacity": 1024,
  "workers": 8
}`
			if _, err := genesis.Load(write(t, bad)); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould reject the out of range rate.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould reject the out of range rate.", success)
		}

		t.Log("\tTest 2:\tWhen the file does not exist.")
		{
			if _, err := genesis.Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
				t.Fatalf("\t%s\tTest 2:\tShould report the missing file.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould report the missing file.", success)
		}
	}
}
