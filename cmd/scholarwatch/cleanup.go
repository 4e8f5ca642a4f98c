package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/scholarwatch/internal/store"
)

var cleanupCommand = &cobra.Command{
	Use:   "cleanup",
	Short: "Run database maintenance",
	Long: `Drops stored page markup, prunes all but the newest snapshot per
posting, removes closed postings past the expiry window together with their
snapshots and cached enrichments, and compacts the database file.`,
	RunE: runCleanupCmd,
}

var (
	cleanupConfigPath string
	cleanupDBPath     string
	cleanupExpiryDays int
)

func init() {
	cleanupCommand.Flags().StringVar(&cleanupConfigPath, "config", "", "Path to config.json")
	cleanupCommand.Flags().StringVar(&cleanupDBPath, "db", "", "SQLite database path (overrides config)")
	cleanupCommand.Flags().IntVar(&cleanupExpiryDays, "expiry-days", 0, "Expiry window for closed postings (overrides config)")

	rootCmd.AddCommand(cleanupCommand)
}

func runCleanupCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cleanupConfigPath, cleanupDBPath)
	if err != nil {
		return err
	}
	expiryDays := cfg.ExpiryDays
	if cleanupExpiryDays > 0 {
		expiryDays = cleanupExpiryDays
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	stats, err := st.Cleanup(ctx, expiryDays)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	fmt.Printf("Cleanup done: %d markup blobs dropped, %d snapshots pruned, %d postings expired\n",
		stats.HTMLNulled, stats.SnapshotsPruned, stats.PostingsExpired)
	return nil
}
