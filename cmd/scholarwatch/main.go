// Package main provides the scholarwatch CLI: a pipeline that watches
// academic job boards, normalizes and deduplicates what it finds, and
// mails a relevance-ranked digest.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonathan/scholarwatch/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "scholarwatch",
	Short: "Academic job posting watcher",
	Long:  "ScholarWatch collects academic job postings from configured boards, deduplicates and verifies them, scores them for relevance, and sends an email digest.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()
	logging.Init(logging.FromEnv())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
