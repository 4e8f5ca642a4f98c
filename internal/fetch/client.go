// Package fetch provides polite URL fetching and HTML-to-text processing.
// It centralizes the HTTP behavior shared by adapters and the verifier.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/jonathan/scholarwatch/internal/logging"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent identifies the crawler to job boards.
const DefaultUserAgent = "Mozilla/5.0 (compatible; ScholarWatch/1.0)"

// Result holds the response from a URL fetch.
type Result struct {
	URL         string
	Body        string
	ContentType string
	StatusCode  int
}

// NotFound reports whether the page is gone. Both 404 and 410 count:
// boards differ on which they return for removed listings.
func (r *Result) NotFound() bool {
	return r.StatusCode == http.StatusNotFound || r.StatusCode == http.StatusGone
}

// Error represents an error during URL fetching.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures the fetch client.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Retries   int
	Headers   map[string]string
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() *Options {
	return &Options{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
		Retries:   3,
	}
}

// Client fetches URLs with retries and a fixed identity.
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

// New builds a fetch client from the given options.
func New(opts *Options) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	hc := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(10*time.Second).
		SetHeader("User-Agent", opts.UserAgent)
	for key, value := range opts.Headers {
		hc.SetHeader(key, value)
	}
	// 404/410 is a meaningful answer for the verifier, not a failure,
	// so only retry on transport errors and 5xx.
	hc.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= http.StatusInternalServerError
	})

	return &Client{
		http: hc,
		log:  logging.Component("fetch"),
	}
}

// Get retrieves the content at urlStr. A non-2xx status is returned in
// the Result without error so callers can inspect it; transport
// failures return a *Error.
func (c *Client) Get(ctx context.Context, urlStr string) (*Result, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, &Error{URL: urlStr, Message: "invalid URL", Cause: err}
	}

	resp, err := c.http.R().SetContext(ctx).Get(urlStr)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "HTTP request failed", Cause: err}
	}

	result := &Result{
		URL:         urlStr,
		Body:        string(resp.Body()),
		ContentType: resp.Header().Get("Content-Type"),
		StatusCode:  resp.StatusCode(),
	}
	c.log.Debug().
		Str("url", urlStr).
		Int("status", result.StatusCode).
		Int("bytes", len(result.Body)).
		Msg("fetched")
	return result, nil
}
