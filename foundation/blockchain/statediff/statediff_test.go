package statediff_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/meowchain/meowchain/foundation/blockchain/database"
	"github.com/meowchain/meowchain/foundation/blockchain/genesis"
	"github.com/meowchain/meowchain/foundation/blockchain/statediff"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	acc1 = database.AccountID("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")
	acc2 = database.AccountID("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")
)

var (
	slot1     = common.HexToHash("0x01")
	slot2     = common.HexToHash("0x02")
	blockHash = common.HexToHash("0xabcd")
)

func newDatabase(t *testing.T) *database.Database {
	t.Helper()

	db, err := database.New(genesis.Genesis{
		Balances: map[string]uint64{
			string(acc1): 1000,
			string(acc2): 500,
		},
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the database: %v", failed, err)
	}

	return db
}

// =============================================================================

func Test_BuilderCollapse(t *testing.T) {
	t.Log("Given the need to collapse repeated changes to the same field.")
	{
		t.Log("\tTest 0:\tWhen a balance changes three times in one block.")
		{
			builder := statediff.NewBuilder(1, blockHash)
			builder.RecordBalanceChange(acc1, 1000, 900)
			builder.RecordBalanceChange(acc1, 900, 950)
			builder.RecordBalanceChange(acc1, 950, 800)

			diff, err := builder.Build(21, 3)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to build the diff: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to build the diff.", success)

			change := diff.Changes[acc1].Balance
			if change == nil || change.Old != 1000 || change.New != 800 {
				t.Fatalf("\t%s\tTest 0:\tShould keep the first old and last new value, got %+v.", failed, change)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the first old and last new value.", success)
		}

		t.Log("\tTest 1:\tWhen a field ends where it started.")
		{
			builder := statediff.NewBuilder(1, blockHash)
			builder.RecordBalanceChange(acc1, 1000, 900)
			builder.RecordBalanceChange(acc1, 900, 1000)
			builder.RecordStorageChange(acc1, slot1, *uint256.NewInt(5), *uint256.NewInt(7))
			builder.RecordStorageChange(acc1, slot1, *uint256.NewInt(7), *uint256.NewInt(5))

			diff, err := builder.Build(42, 2)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to build the diff: %v", failed, err)
			}

			if len(diff.Changes) != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould drop no-op changes entirely, got %d accounts.", failed, len(diff.Changes))
			}
			t.Logf("\t%s\tTest 1:\tShould drop no-op changes entirely.", success)
		}
	}
}

func Test_BuildOnce(t *testing.T) {
	t.Log("Given the need to finalize a diff exactly once.")
	{
		t.Log("\tTest 0:\tWhen building a second time.")
		{
			builder := statediff.NewBuilder(1, blockHash)
			builder.RecordNonceChange(acc1, 0, 1)

			if _, err := builder.Build(21, 1); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to build the first time: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to build the first time.", success)

			if _, err := builder.Build(21, 1); !errors.Is(err, statediff.ErrFinalized) {
				t.Fatalf("\t%s\tTest 0:\tShould get ErrFinalized on the second build, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get ErrFinalized on the second build.", success)
		}
	}
}

func Test_ApplyDeriveRoundTrip(t *testing.T) {
	t.Log("Given the need for apply and derive to be inverse operations.")
	{
		t.Log("\tTest 0:\tWhen applying a diff and deriving it back.")
		{
			builder := statediff.NewBuilder(7, blockHash)
			builder.RecordBalanceChange(acc1, 1000, 850)
			builder.RecordNonceChange(acc1, 0, 1)
			builder.RecordBalanceChange(acc2, 500, 650)
			builder.RecordStorageChange(acc2, slot1, uint256.Int{}, *uint256.NewInt(11))

			diff, err := builder.Build(21_000, 1)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to build the diff: %v", failed, err)
			}

			pre := newDatabase(t)
			post := pre.Copy()
			statediff.Apply(post, diff)

			derived := statediff.Derive(pre, post, 7, blockHash, 21_000, 1)

			if !reflect.DeepEqual(diff, derived) {
				t.Fatalf("\t%s\tTest 0:\tShould derive the identical diff back.\ngot %+v\nexp %+v", failed, derived, diff)
			}
			t.Logf("\t%s\tTest 0:\tShould derive the identical diff back.", success)
		}
	}
}

func Test_ZeroValueClearsSlot(t *testing.T) {
	t.Log("Given the need for a zero new value to clear the slot.")
	{
		t.Log("\tTest 0:\tWhen applying a diff that zeroes a populated slot.")
		{
			db := newDatabase(t)
			db.WriteStorage(acc1, slot1, *uint256.NewInt(9))

			builder := statediff.NewBuilder(2, blockHash)
			builder.RecordStorageChange(acc1, slot1, *uint256.NewInt(9), uint256.Int{})

			diff, err := builder.Build(20_000, 1)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to build the diff: %v", failed, err)
			}

			statediff.Apply(db, diff)

			if _, exists := db.ReadStorage(acc1, slot1); exists {
				t.Fatalf("\t%s\tTest 0:\tShould remove the slot, not store a zero.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould remove the slot, not store a zero.", success)
		}
	}
}

func Test_VerifyAgainstPreState(t *testing.T) {
	t.Log("Given the need to reject diffs built against a different pre-state.")
	{
		t.Log("\tTest 0:\tWhen the recorded old values match the pre-state.")
		{
			db := newDatabase(t)

			builder := statediff.NewBuilder(1, blockHash)
			builder.RecordBalanceChange(acc1, 1000, 900)
			builder.RecordStorageChange(acc2, slot2, uint256.Int{}, *uint256.NewInt(3))

			diff, err := builder.Build(21, 1)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to build the diff: %v", failed, err)
			}

			if err := statediff.VerifyAgainstPreState(db, diff); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould verify a matching diff: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould verify a matching diff.", success)
		}

		t.Log("\tTest 1:\tWhen a recorded old balance does not match.")
		{
			db := newDatabase(t)

			builder := statediff.NewBuilder(1, blockHash)
			builder.RecordBalanceChange(acc1, 999, 900)

			diff, err := builder.Build(21, 1)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to build the diff: %v", failed, err)
			}

			if err := statediff.VerifyAgainstPreState(db, diff); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould reject the mismatched diff.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould reject the mismatched diff.", success)
		}
	}
}
