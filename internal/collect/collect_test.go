package collect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/scholarwatch/internal/adapters"
	"github.com/jonathan/scholarwatch/internal/config"
	"github.com/jonathan/scholarwatch/internal/fetch"
	"github.com/jonathan/scholarwatch/internal/logging"
	"github.com/jonathan/scholarwatch/internal/ratelimit"
)

func TestRun_SkipsDisabledAndUnknownSources(t *testing.T) {
	reg, err := adapters.NewRegistry()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Sources = []config.SourceConfig{
		{ID: "jobs_ac_uk", Enabled: false},
		{ID: "mystery_board", Enabled: true},
	}

	c := New(reg, fetch.New(nil), ratelimit.NewLimiter(logging.Component("test")), cfg)
	res, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, res.Postings)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "mystery_board")
	assert.Contains(t, res.Errors[0], "no adapter registered")
}

func TestLimitedFetcher_RecordsOutcomes(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	limiter := ratelimit.NewLimiter(logging.Component("test"))
	f := &limitedFetcher{
		client:   fetch.New(&fetch.Options{Retries: 0}),
		limiter:  limiter,
		sourceID: "test_source",
		interval: 0,
	}

	status = http.StatusInternalServerError
	_, err := f.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 1, limiter.ConsecutiveErrors("test_source"))

	// The next Get sits out the 1s error backoff before the request.
	status = http.StatusOK
	_, err = f.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 0, limiter.ConsecutiveErrors("test_source"))
}
