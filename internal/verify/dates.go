package verify

import (
	"regexp"
	"strings"
	"time"
)

// Date patterns tried in priority order: ISO first, then British style
// ("30 September 2026"), then American style ("September 30, 2026").
var (
	isoDateRe      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	dayMonthYearRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.?\s+(\d{4})\b`)
	monthDayYearRe = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
)

var monthNumbers = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// ExtractClosingDate scans page text for a closing date. For each
// keyword occurrence it examines a window of text after the keyword and
// returns the first parseable date, normalized to YYYY-MM-DD. An empty
// string means no date was found.
func ExtractClosingDate(text string, keywords []string, windowSize int) string {
	if windowSize <= 0 {
		windowSize = 200
	}
	lower := strings.ToLower(text)

	for _, keyword := range keywords {
		kw := strings.ToLower(keyword)
		if kw == "" {
			continue
		}
		from := 0
		for {
			idx := strings.Index(lower[from:], kw)
			if idx < 0 {
				break
			}
			start := from + idx + len(kw)
			end := start + windowSize
			if end > len(text) {
				end = len(text)
			}
			if date := ParseDate(text[start:end]); date != "" {
				return date
			}
			from = start
		}
	}
	return ""
}

// ParseDate finds the first recognizable date in s and returns it as
// YYYY-MM-DD, or "" when nothing parses to a real calendar date.
func ParseDate(s string) string {
	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		if d := buildDate(m[1], monthFromNumber(m[2]), m[3]); d != "" {
			return d
		}
	}
	if m := dayMonthYearRe.FindStringSubmatch(s); m != nil {
		if d := buildDate(m[3], monthNumbers[strings.ToLower(m[2])], m[1]); d != "" {
			return d
		}
	}
	if m := monthDayYearRe.FindStringSubmatch(s); m != nil {
		if d := buildDate(m[3], monthNumbers[strings.ToLower(m[1])], m[2]); d != "" {
			return d
		}
	}
	return ""
}

func monthFromNumber(s string) time.Month {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	if n < 1 || n > 12 {
		return 0
	}
	return time.Month(n)
}

// buildDate validates the components against the real calendar by
// round-tripping through time.Date.
func buildDate(yearStr string, month time.Month, dayStr string) string {
	if month == 0 {
		return ""
	}
	year, day := atoi(yearStr), atoi(dayStr)
	if year < 1900 || year > 2200 || day < 1 || day > 31 {
		return ""
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return ""
	}
	return t.Format(time.DateOnly)
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}
