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

const natureCareersFeedURL = "https://www.nature.com/naturecareers/jobs/rss"

// NatureCareers collects postings from the Nature Careers RSS feed.
type NatureCareers struct {
	feedURL string
	log     zerolog.Logger
}

// NewNatureCareers returns the Nature Careers adapter.
func NewNatureCareers() *NatureCareers {
	return &NatureCareers{
		feedURL: natureCareersFeedURL,
		log:     logging.Component("adapter.nature_careers"),
	}
}

// ID implements Adapter.
func (a *NatureCareers) ID() string { return "nature_careers" }

// Collect runs one feed query per thematic keyword.
func (a *NatureCareers) Collect(ctx context.Context, f Fetcher, kw config.Keywords) ([]types.RawPosting, error) {
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

			// Nature feed titles read "Job Title : Employer".
			title, institution := item.Title, ""
			if idx := strings.LastIndex(item.Title, " : "); idx > 0 {
				title = strings.TrimSpace(item.Title[:idx])
				institution = strings.TrimSpace(item.Title[idx+3:])
			} else {
				title, institution = splitTitle(item.Title)
			}

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
		return postings, fmt.Errorf("nature careers collection incomplete: %s", strings.Join(errs, "; "))
	}
	return postings, nil
}
