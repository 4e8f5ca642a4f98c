// Package notify renders and sends the email digest of newly scored
// postings via the Resend API.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/jonathan/scholarwatch/internal/config"
	"github.com/jonathan/scholarwatch/internal/logging"
	"github.com/jonathan/scholarwatch/internal/store"
	"github.com/jonathan/scholarwatch/internal/types"
)

const resendEndpoint = "https://api.resend.com/emails"

// Notifier builds and sends digest emails.
type Notifier struct {
	store    *store.Store
	cfg      *config.Config
	apiKey   string
	endpoint string
	http     *resty.Client
	log      zerolog.Logger
}

// New builds a notifier. An empty apiKey is allowed; Run then fails
// only if there is actually something to send.
func New(st *store.Store, cfg *config.Config, apiKey string) *Notifier {
	return &Notifier{
		store:    st,
		cfg:      cfg,
		apiKey:   apiKey,
		endpoint: resendEndpoint,
		http: resty.New().
			SetTimeout(30 * time.Second).
			SetRetryCount(2),
		log: logging.Component("notify"),
	}
}

// Result summarizes one digest attempt.
type Result struct {
	Eligible int
	Sent     int
	// DeliveryID is the provider's message ID, empty on dry runs.
	DeliveryID string
	DryRun     bool
}

// Run assembles the digest from unsent relevant postings and sends it.
// With dryRun set it reports what would be sent without sending or
// marking anything.
func (n *Notifier) Run(ctx context.Context, dryRun bool) (*Result, error) {
	candidates, err := n.store.PostingsForDigest(ctx, n.cfg.Notify.MaxPostings)
	if err != nil {
		return nil, fmt.Errorf("failed to load digest postings: %w", err)
	}

	// Below-threshold postings stay unsent but are not digest-worthy.
	var postings []types.Posting
	for _, p := range candidates {
		if p.RelevanceScore >= n.cfg.RelevanceThreshold {
			postings = append(postings, p)
		}
	}

	result := &Result{Eligible: len(postings), DryRun: dryRun}
	if len(postings) == 0 {
		n.log.Info().Msg("no postings for digest")
		return result, nil
	}
	if dryRun {
		n.log.Info().Int("eligible", len(postings)).Msg("dry run, digest not sent")
		return result, nil
	}

	if n.cfg.Notify.Recipient == "" {
		return result, fmt.Errorf("no digest recipient configured")
	}
	if n.apiKey == "" {
		return result, fmt.Errorf("RESEND_API_KEY is not set")
	}

	html, err := renderDigest(postings)
	if err != nil {
		return result, fmt.Errorf("failed to render digest: %w", err)
	}

	deliveryID, err := n.send(ctx, html, len(postings))
	if err != nil {
		return result, err
	}
	result.DeliveryID = deliveryID

	ids := make([]string, len(postings))
	for i, p := range postings {
		ids[i] = p.PostingID
	}
	if err := n.store.MarkEmailed(ctx, ids); err != nil {
		// The mail is out; surface the bookkeeping failure loudly, the
		// next run would otherwise resend these postings.
		return result, fmt.Errorf("digest sent (%s) but failed to mark postings: %w", deliveryID, err)
	}
	result.Sent = len(postings)

	n.log.Info().Int("postings", len(postings)).Str("delivery_id", deliveryID).Msg("digest sent")
	return result, nil
}

func (n *Notifier) send(ctx context.Context, html string, count int) (string, error) {
	payload := map[string]any{
		"from":    n.cfg.Notify.Sender,
		"to":      []string{n.cfg.Notify.Recipient},
		"subject": fmt.Sprintf("ScholarWatch digest: %d new postings", count),
		"html":    html,
	}

	resp, err := n.http.R().
		SetContext(ctx).
		SetAuthToken(n.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(n.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to send digest: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("digest send rejected: HTTP %d: %s", resp.StatusCode(), resp.String())
	}

	return gjson.GetBytes(resp.Body(), "id").String(), nil
}
