package cmd

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var sendFile string

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Submit a transaction file to the node.",
	Run:   sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendFile, "file", "f", "tx.json", "Path to the transaction file.")
}

func sendRun(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(sendFile)
	if err != nil {
		log.Fatal(err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewReader(data))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	fmt.Println("status:", resp.Status)
}
