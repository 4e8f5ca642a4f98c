// Package collect runs the enabled source adapters and gathers their
// raw postings for one pipeline run.
package collect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/scholarwatch/internal/adapters"
	"github.com/jonathan/scholarwatch/internal/config"
	"github.com/jonathan/scholarwatch/internal/fetch"
	"github.com/jonathan/scholarwatch/internal/logging"
	"github.com/jonathan/scholarwatch/internal/ratelimit"
	"github.com/jonathan/scholarwatch/internal/types"
)

// Collector fans out over the enabled adapters. Sources run
// concurrently; requests within a source are serialized by the
// per-source rate limiter.
type Collector struct {
	registry *adapters.Registry
	client   *fetch.Client
	limiter  *ratelimit.Limiter
	cfg      *config.Config
	log      zerolog.Logger
}

// New builds a collector.
func New(registry *adapters.Registry, client *fetch.Client, limiter *ratelimit.Limiter, cfg *config.Config) *Collector {
	return &Collector{
		registry: registry,
		client:   client,
		limiter:  limiter,
		cfg:      cfg,
		log:      logging.Component("collect"),
	}
}

// Result is the outcome of one collection pass.
type Result struct {
	Postings []types.RawPosting
	// Errors holds one message per source that failed or partially
	// failed. A failing source never aborts the others.
	Errors []string
}

// Run collects from every enabled, registered source.
func (c *Collector) Run(ctx context.Context) (*Result, error) {
	var (
		mu  sync.Mutex
		out Result
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range c.cfg.Sources {
		if !src.Enabled {
			c.log.Debug().Str("source", src.ID).Msg("source disabled")
			continue
		}
		adapter := c.registry.Get(src.ID)
		if adapter == nil {
			mu.Lock()
			out.Errors = append(out.Errors, fmt.Sprintf("source %s: no adapter registered", src.ID))
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			fetcher := &limitedFetcher{
				client:   c.client,
				limiter:  c.limiter,
				sourceID: src.ID,
				interval: time.Duration(src.RateLimitSeconds * float64(time.Second)),
			}
			postings, err := adapter.Collect(gctx, fetcher, c.cfg.Keywords)

			mu.Lock()
			defer mu.Unlock()
			out.Postings = append(out.Postings, postings...)
			if err != nil {
				out.Errors = append(out.Errors, fmt.Sprintf("source %s: %v", src.ID, err))
				c.log.Warn().Str("source", src.ID).Err(err).Msg("collection incomplete")
			} else {
				c.log.Info().Str("source", src.ID).Int("postings", len(postings)).Msg("collected")
			}
			// Source failures are isolated; only context cancellation
			// propagates.
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return &out, fmt.Errorf("collection aborted: %w", err)
	}
	return &out, nil
}

// limitedFetcher applies the per-source rate limit and error backoff
// around the shared fetch client.
type limitedFetcher struct {
	client   *fetch.Client
	limiter  *ratelimit.Limiter
	sourceID string
	interval time.Duration
}

func (f *limitedFetcher) Get(ctx context.Context, url string) (*fetch.Result, error) {
	f.limiter.Wait(f.sourceID, f.interval)
	res, err := f.client.Get(ctx, url)
	if err != nil || (res != nil && res.StatusCode >= 500) {
		base := f.interval
		if base <= 0 {
			base = time.Second
		}
		f.limiter.RecordError(f.sourceID, base)
		return res, err
	}
	f.limiter.RecordSuccess(f.sourceID)
	return res, nil
}
