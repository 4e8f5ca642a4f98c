// Package adapters implements the per-source collectors that turn job
// board listings into raw postings. The set of adapters is fixed at
// compile time and validated once at startup.
package adapters

import (
	"context"
	"fmt"

	"github.com/jonathan/scholarwatch/internal/config"
	"github.com/jonathan/scholarwatch/internal/fetch"
	"github.com/jonathan/scholarwatch/internal/types"
)

// Fetcher retrieves a URL. The collector hands each adapter a fetcher
// that already applies the per-source rate limit.
type Fetcher interface {
	Get(ctx context.Context, url string) (*fetch.Result, error)
}

// Adapter collects raw postings from one source.
type Adapter interface {
	// ID is the stable source identifier used in config and storage.
	ID() string
	// Collect fetches listings for the configured keywords. Adapters
	// return whatever they gathered alongside an error, so a failure
	// partway through a keyword list does not discard earlier results.
	Collect(ctx context.Context, f Fetcher, kw config.Keywords) ([]types.RawPosting, error)
}

// Registry holds the known adapters keyed by source ID.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds the static adapter set and validates it.
func NewRegistry() (*Registry, error) {
	all := []Adapter{
		NewJobsAcUk(),
		NewNatureCareers(),
		NewEuraxess(),
	}

	m := make(map[string]Adapter, len(all))
	for _, a := range all {
		id := a.ID()
		if id == "" {
			return nil, fmt.Errorf("adapter %T has an empty source ID", a)
		}
		if _, dup := m[id]; dup {
			return nil, fmt.Errorf("duplicate adapter source ID %q", id)
		}
		m[id] = a
	}
	return &Registry{adapters: m}, nil
}

// Get returns the adapter for sourceID, or nil if unknown.
func (r *Registry) Get(sourceID string) Adapter {
	return r.adapters[sourceID]
}

// IDs returns the registered source IDs.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}
