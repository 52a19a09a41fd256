package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "crm-api",
	Short: "CRM API - permission-aware CRM backend",
	Long:  `CRM HTTP API with JWT auth, per-user permission sessions, generic entity storage, workflow cascades and observability.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
