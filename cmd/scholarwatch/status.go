package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/scholarwatch/internal/store"
)

var statusCommand = &cobra.Command{
	Use:   "status",
	Short: "Show the latest pipeline run",
	RunE:  runStatusCmd,
}

var (
	statusConfigPath string
	statusDBPath     string
)

func init() {
	statusCommand.Flags().StringVar(&statusConfigPath, "config", "", "Path to config.json")
	statusCommand.Flags().StringVar(&statusDBPath, "db", "", "SQLite database path (overrides config)")

	rootCmd.AddCommand(statusCommand)
}

func runStatusCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(statusConfigPath, statusDBPath)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	run, err := st.LatestRun(ctx)
	if err != nil {
		return fmt.Errorf("failed to load latest run: %w", err)
	}
	if run == nil {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	fmt.Printf("Run %s\n", run.RunKey)
	fmt.Printf("  Status:   %s\n", run.Status)
	fmt.Printf("  Started:  %s\n", run.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if !run.FinishedAt.IsZero() {
		fmt.Printf("  Finished: %s\n", run.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Printf("  Postings: %d found, %d new, %d updated\n",
		run.Stats.PostingsFound, run.Stats.PostingsNew, run.Stats.PostingsUpdated)
	fmt.Printf("  Enrichments: %d, emails: %d\n", run.Stats.EnrichmentsMade, run.Stats.EmailsSent)
	if len(run.Metadata) > 0 {
		var pairs []string
		for k, v := range run.Metadata {
			pairs = append(pairs, k+"="+v)
		}
		fmt.Printf("  Metadata: %s\n", strings.Join(pairs, " "))
	}
	if len(run.Errors) > 0 {
		fmt.Printf("  Errors (%d):\n", len(run.Errors))
		for _, e := range run.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}
	return nil
}
