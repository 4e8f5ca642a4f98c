package adapters

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// rssFeed is the subset of RSS 2.0 the job boards emit.
type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// parseRSS decodes an RSS document and returns its items.
func parseRSS(body string) ([]rssItem, error) {
	var feed rssFeed
	if err := xml.Unmarshal([]byte(body), &feed); err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed: %w", err)
	}
	return feed.Channel.Items, nil
}

// splitTitle separates "Job Title - Institution" feed titles. When no
// separator is present the whole string is the title and the
// institution is left empty.
func splitTitle(raw string) (title, institution string) {
	raw = strings.TrimSpace(raw)
	for _, sep := range []string{" - ", " at ", " | ", ", "} {
		if idx := strings.LastIndex(raw, sep); idx > 0 {
			return strings.TrimSpace(raw[:idx]), strings.TrimSpace(raw[idx+len(sep):])
		}
	}
	return raw, ""
}

// stripTags removes markup from feed descriptions. Feed bodies are
// small, so a light state machine beats a full parse here.
func stripTags(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
