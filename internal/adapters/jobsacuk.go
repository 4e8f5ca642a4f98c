package adapters

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jonathan/scholarwatch/internal/config"
	"github.com/jonathan/scholarwatch/internal/logging"
	"github.com/jonathan/scholarwatch/internal/types"
)

const jobsAcUkFeedURL = "https://www.jobs.ac.uk/search/feed"

// JobsAcUk collects postings from the jobs.ac.uk RSS search feed.
type JobsAcUk struct {
	feedURL string
	log     zerolog.Logger
}

// NewJobsAcUk returns the jobs.ac.uk adapter.
func NewJobsAcUk() *JobsAcUk {
	return &JobsAcUk{
		feedURL: jobsAcUkFeedURL,
		log:     logging.Component("adapter.jobs_ac_uk"),
	}
}

// ID implements Adapter.
func (a *JobsAcUk) ID() string { return "jobs_ac_uk" }

// Collect runs one feed query per thematic keyword and merges the
// results. Duplicate URLs across keyword queries are collapsed here so
// downstream dedup only sees cross-source repeats.
func (a *JobsAcUk) Collect(ctx context.Context, f Fetcher, kw config.Keywords) ([]types.RawPosting, error) {
	var (
		postings []types.RawPosting
		errs     []string
		seen     = make(map[string]struct{})
	)

	for _, keyword := range kw.Thematic {
		feedURL := a.feedURL + "?keywords=" + url.QueryEscape(keyword)
		res, err := f.Get(ctx, feedURL)
		if err != nil {
			errs = append(errs, fmt.Sprintf("keyword %q: %v", keyword, err))
			continue
		}
		if res.StatusCode != 200 {
			errs = append(errs, fmt.Sprintf("keyword %q: HTTP %d", keyword, res.StatusCode))
			continue
		}

		items, err := parseRSS(res.Body)
		if err != nil {
			errs = append(errs, fmt.Sprintf("keyword %q: %v", keyword, err))
			continue
		}

		for _, item := range items {
			link := strings.TrimSpace(item.Link)
			if link == "" {
				continue
			}
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}

			title, institution := splitTitle(item.Title)
			postings = append(postings, types.RawPosting{
				URL:         link,
				Title:       title,
				Institution: institution,
				SourceID:    a.ID(),
				ContentText: stripTags(item.Description),
				Language:    "en",
			})
		}
		a.log.Debug().Str("keyword", keyword).Int("items", len(items)).Msg("feed query done")
	}

	if len(errs) > 0 {
		return postings, fmt.Errorf("jobs.ac.uk collection incomplete: %s", strings.Join(errs, "; "))
	}
	return postings, nil
}
