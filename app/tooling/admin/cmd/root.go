// Package cmd contains the admin tooling commands.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var url string

func init() {
	rootCmd.PersistentFlags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
}

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative tooling for the node",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
