package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/scholarwatch/internal/adapters"
	"github.com/jonathan/scholarwatch/internal/collect"
	"github.com/jonathan/scholarwatch/internal/config"
	"github.com/jonathan/scholarwatch/internal/enrich"
	"github.com/jonathan/scholarwatch/internal/fetch"
	"github.com/jonathan/scholarwatch/internal/llm"
	"github.com/jonathan/scholarwatch/internal/logging"
	"github.com/jonathan/scholarwatch/internal/notify"
	"github.com/jonathan/scholarwatch/internal/pipeline"
	"github.com/jonathan/scholarwatch/internal/ratelimit"
	"github.com/jonathan/scholarwatch/internal/store"
	"github.com/jonathan/scholarwatch/internal/types"
	"github.com/jonathan/scholarwatch/internal/verify"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the full ingestion pipeline end-to-end",
	Long: `Collects postings from all enabled sources, deduplicates and stores
them, verifies stored open postings against their live pages, enriches new
postings via the model, and sends the email digest.

With --dry-run the digest step reports what would be sent without sending
anything or marking postings as emailed.`,
	RunE: runPipelineCmd,
}

var (
	runConfigPath string
	runDBPath     string
	runDryRun     bool
)

func init() {
	runCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json (missing values fall back to defaults)")
	runCommand.Flags().StringVar(&runDBPath, "db", "", "SQLite database path (overrides config)")
	runCommand.Flags().BoolVar(&runDryRun, "dry-run", false, "Skip sending the digest; report what would be sent")

	rootCmd.AddCommand(runCommand)
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(runConfigPath, runDBPath)
	if err != nil {
		return err
	}
	if cfg.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is not set")
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	registry, err := adapters.NewRegistry()
	if err != nil {
		return fmt.Errorf("failed to build adapter registry: %w", err)
	}

	client := fetch.New(&fetch.Options{
		Timeout:   30 * time.Second,
		UserAgent: cfg.UserAgent,
		Retries:   3,
	})
	limiter := ratelimit.NewLimiter(logging.Component("ratelimit"))

	llmClient, err := llm.NewGeminiClient(ctx, llm.DefaultConfig(), cfg.GeminiAPIKey)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}
	defer func() { _ = llmClient.Close() }()

	p := pipeline.New(
		st,
		collect.New(registry, client, limiter, cfg),
		verify.New(st, client, limiter, cfg),
		enrich.New(st, llmClient, cfg),
		notify.New(st, cfg, cfg.ResendAPIKey),
		cfg,
	)

	summary, err := p.Run(ctx, runDryRun)
	if err != nil {
		return err
	}
	if summary.Status != types.RunCompleted {
		return fmt.Errorf("run %s finished with status %s", summary.RunKey, summary.Status)
	}

	fmt.Printf("Run %s completed: %d found, %d new, %d updated, %d enrichments, %d emailed, %d errors\n",
		summary.RunKey,
		summary.Stats.PostingsFound,
		summary.Stats.PostingsNew,
		summary.Stats.PostingsUpdated,
		summary.Stats.EnrichmentsMade,
		summary.Stats.EmailsSent,
		len(summary.Errors))
	return nil
}

// loadConfig loads the config file (or defaults) and applies CLI
// overrides.
func loadConfig(path, dbPath string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
