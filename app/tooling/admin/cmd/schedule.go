package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/meowchain/meowchain/foundation/blockchain/database"
	"github.com/meowchain/meowchain/foundation/blockchain/exec"
	"github.com/spf13/cobra"
)

var scheduleFile string

// access is one account or slot touch in the input file. An empty slot
// means the touch is account level.
type access struct {
	Account string `json:"account"`
	Slot    string `json:"slot,omitempty"`
}

// footprint is the access set of one transaction in the input file.
type footprint struct {
	Reads  []access `json:"reads"`
	Writes []access `json:"writes"`
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Build an execution schedule from a file of transaction footprints.",
	Run:   scheduleRun,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.Flags().StringVarP(&scheduleFile, "file", "f", "footprints.json", "Path to the footprints file.")
}

func scheduleRun(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(scheduleFile)
	if err != nil {
		log.Fatal(err)
	}

	var footprints []footprint
	if err := json.Unmarshal(data, &footprints); err != nil {
		log.Fatal(err)
	}

	records := make([]*exec.AccessRecord, len(footprints))
	for i, fp := range footprints {
		record := exec.NewAccessRecord()
		for _, a := range fp.Reads {
			if a.Slot == "" {
				record.AddAccountRead(database.AccountID(a.Account))
				continue
			}
			record.AddRead(database.AccountID(a.Account), common.HexToHash(a.Slot))
		}
		for _, a := range fp.Writes {
			if a.Slot == "" {
				record.AddAccountWrite(database.AccountID(a.Account))
				continue
			}
			record.AddWrite(database.AccountID(a.Account), common.HexToHash(a.Slot))
		}
		records[i] = record
	}

	schedule := exec.BuildSchedule(records)

	fmt.Printf("transactions: %d\n", schedule.TxCount())
	fmt.Printf("batches:      %d\n", schedule.BatchCount())
	fmt.Printf("avg batch:    %.2f\n", schedule.AvgBatchSize())
	for i, batch := range schedule.Batches {
		fmt.Printf("batch %d: %v\n", i, batch)
	}
}
