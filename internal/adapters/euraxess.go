package adapters

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/jonathan/scholarwatch/internal/config"
	"github.com/jonathan/scholarwatch/internal/logging"
	"github.com/jonathan/scholarwatch/internal/types"
)

const euraxessSearchURL = "https://euraxess.ec.europa.eu/jobs/search"

// Euraxess scrapes the EURAXESS job search results page. The portal has
// no feed, so this adapter parses the listing HTML directly.
type Euraxess struct {
	searchURL string
	log       zerolog.Logger
}

// NewEuraxess returns the EURAXESS adapter.
func NewEuraxess() *Euraxess {
	return &Euraxess{
		searchURL: euraxessSearchURL,
		log:       logging.Component("adapter.euraxess"),
	}
}

// ID implements Adapter.
func (a *Euraxess) ID() string { return "euraxess" }

// Collect scrapes one search results page per thematic keyword.
func (a *Euraxess) Collect(ctx context.Context, f Fetcher, kw config.Keywords) ([]types.RawPosting, error) {
	var (
		postings []types.RawPosting
		errs     []string
		seen     = make(map[string]struct{})
	)

	for _, keyword := range kw.Thematic {
		pageURL := a.searchURL + "?keywords=" + url.QueryEscape(keyword)
		res, err := f.Get(ctx, pageURL)
		if err != nil {
			errs = append(errs, fmt.Sprintf("keyword %q: %v", keyword, err))
			continue
		}
		if res.StatusCode != 200 {
			errs = append(errs, fmt.Sprintf("keyword %q: HTTP %d", keyword, res.StatusCode))
			continue
		}

		found, err := a.parseResults(res.Body)
		if err != nil {
			errs = append(errs, fmt.Sprintf("keyword %q: %v", keyword, err))
			continue
		}
		for _, p := range found {
			if _, dup := seen[p.URL]; dup {
				continue
			}
			seen[p.URL] = struct{}{}
			postings = append(postings, p)
		}
		a.log.Debug().Str("keyword", keyword).Int("items", len(found)).Msg("search page done")
	}

	if len(errs) > 0 {
		return postings, fmt.Errorf("euraxess collection incomplete: %s", strings.Join(errs, "; "))
	}
	return postings, nil
}

// parseResults extracts listings from a search results page.
func (a *Euraxess) parseResults(html string) ([]types.RawPosting, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse results page: %w", err)
	}

	var postings []types.RawPosting
	doc.Find("article.job-result, .ecl-content-item, li.search-result").Each(func(_ int, sel *goquery.Selection) {
		link := sel.Find("a[href]").First()
		href, ok := link.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		href = a.absoluteURL(strings.TrimSpace(href))

		title := strings.TrimSpace(link.Text())
		if title == "" {
			title = strings.TrimSpace(sel.Find("h2, h3, .title").First().Text())
		}
		institution := strings.TrimSpace(sel.Find(".institution, .organisation, .ecl-content-block__secondary-meta").First().Text())
		deadline := strings.TrimSpace(sel.Find(".deadline, .application-deadline, time").First().Text())

		postings = append(postings, types.RawPosting{
			URL:         href,
			Title:       title,
			Institution: institution,
			SourceID:    a.ID(),
			ClosingDate: deadline,
		})
	})
	return postings, nil
}

// absoluteURL resolves relative listing links against the portal host.
func (a *Euraxess) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base, err := url.Parse(a.searchURL)
	if err != nil {
		return href
	}
	rel, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(rel).String()
}
