package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/meowchain/meowchain/foundation/blockchain/database"
	"github.com/meowchain/meowchain/foundation/blockchain/genesis"
	"github.com/meowchain/meowchain/foundation/blockchain/statediff"
	"github.com/spf13/cobra"
)

var (
	verifyGenesis string
	verifyDiff    string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a state diff against the genesis derived pre-state.",
	Run:   verifyRun,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVarP(&verifyGenesis, "genesis", "g", "zblock/genesis.json", "Path to the genesis file.")
	verifyCmd.Flags().StringVarP(&verifyDiff, "diff", "d", "diff.json", "Path to the state diff file.")
}

func verifyRun(cmd *cobra.Command, args []string) {
	gen, err := genesis.Load(verifyGenesis)
	if err != nil {
		log.Fatal(err)
	}

	db, err := database.New(gen)
	if err != nil {
		log.Fatal(err)
	}

	data, err := os.ReadFile(verifyDiff)
	if err != nil {
		log.Fatal(err)
	}

	var diff statediff.StateDiff
	if err := json.Unmarshal(data, &diff); err != nil {
		log.Fatal(err)
	}

	if err := statediff.VerifyAgainstPreState(db, diff); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("diff for block %d verified: %d accounts changed, gas %d\n", diff.BlockNumber, len(diff.Changes), diff.GasUsed)
}
