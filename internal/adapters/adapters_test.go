package adapters

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/scholarwatch/internal/config"
	"github.com/jonathan/scholarwatch/internal/fetch"
)

// fakeFetcher serves canned bodies keyed by URL substring.
type fakeFetcher struct {
	pages    map[string]string
	statuses map[string]int
	calls    []string
}

func (f *fakeFetcher) Get(_ context.Context, url string) (*fetch.Result, error) {
	f.calls = append(f.calls, url)
	for key, body := range f.pages {
		if strings.Contains(url, key) {
			status := 200
			if s, ok := f.statuses[key]; ok {
				status = s
			}
			return &fetch.Result{URL: url, Body: body, StatusCode: status}, nil
		}
	}
	return nil, fmt.Errorf("no fixture for %s", url)
}

const jobsAcUkFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>jobs.ac.uk search</title>
<item>
<title>Senior Lecturer in Clinical Psychology - King's College London</title>
<link>https://www.jobs.ac.uk/job/ABC123/senior-lecturer</link>
<description>&lt;p&gt;An exciting opportunity to join the School of Psychology.&lt;/p&gt;</description>
<pubDate>Mon, 24 Aug 2026 09:00:00 GMT</pubDate>
</item>
<item>
<title>Research Fellow in Health Psychology - University of Leeds</title>
<link>https://www.jobs.ac.uk/job/DEF456/research-fellow</link>
<description>Fixed term post.</description>
</item>
</channel>
</rss>`

func TestJobsAcUk_Collect(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"jobs.ac.uk": jobsAcUkFixture}}
	kw := config.Keywords{Thematic: []string{"psychology"}}

	got, err := NewJobsAcUk().Collect(context.Background(), f, kw)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Senior Lecturer in Clinical Psychology", got[0].Title)
	assert.Equal(t, "King's College London", got[0].Institution)
	assert.Equal(t, "https://www.jobs.ac.uk/job/ABC123/senior-lecturer", got[0].URL)
	assert.Equal(t, "jobs_ac_uk", got[0].SourceID)
	assert.Equal(t, "en", got[0].Language)
	assert.Equal(t, "An exciting opportunity to join the School of Psychology.", got[0].ContentText)
}

func TestJobsAcUk_DuplicateLinksAcrossKeywords(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"jobs.ac.uk": jobsAcUkFixture}}
	kw := config.Keywords{Thematic: []string{"psychology", "clinical psychology"}}

	got, err := NewJobsAcUk().Collect(context.Background(), f, kw)
	require.NoError(t, err)
	// Two keyword queries hit the same fixture; links collapse.
	assert.Len(t, got, 2)
	assert.Len(t, f.calls, 2)
}

func TestJobsAcUk_PartialFailureKeepsResults(t *testing.T) {
	f := &fakeFetcher{
		pages:    map[string]string{"keywords=psychology": jobsAcUkFixture, "keywords=broken": "nope"},
		statuses: map[string]int{"keywords=broken": 500},
	}
	kw := config.Keywords{Thematic: []string{"psychology", "broken"}}

	got, err := NewJobsAcUk().Collect(context.Background(), f, kw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
	assert.Len(t, got, 2)
}

const natureFixture = `<?xml version="1.0"?>
<rss version="2.0">
<channel>
<title>Nature Careers</title>
<item>
<title>Associate Professor of Neuroscience : ETH Zurich</title>
<link>https://www.nature.com/naturecareers/job/12345</link>
<description>Lead a new research group.</description>
</item>
</channel>
</rss>`

func TestNatureCareers_Collect(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"nature.com": natureFixture}}
	kw := config.Keywords{Thematic: []string{"neuroscience"}}

	got, err := NewNatureCareers().Collect(context.Background(), f, kw)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Associate Professor of Neuroscience", got[0].Title)
	assert.Equal(t, "ETH Zurich", got[0].Institution)
	assert.Equal(t, "nature_careers", got[0].SourceID)
}

const euraxessFixture = `<html><body>
<article class="job-result">
  <h3><a href="/jobs/98765">Postdoctoral Researcher in Psychology</a></h3>
  <span class="institution">University of Amsterdam</span>
  <span class="deadline">30 September 2026</span>
</article>
<article class="job-result">
  <h3><a href="https://euraxess.ec.europa.eu/jobs/11111">Assistant Professor (Tenure Track)</a></h3>
  <span class="institution">KU Leuven</span>
</article>
</body></html>`

func TestEuraxess_Collect(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"euraxess": euraxessFixture}}
	kw := config.Keywords{Thematic: []string{"psychology"}}

	got, err := NewEuraxess().Collect(context.Background(), f, kw)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Postdoctoral Researcher in Psychology", got[0].Title)
	assert.Equal(t, "University of Amsterdam", got[0].Institution)
	assert.Equal(t, "https://euraxess.ec.europa.eu/jobs/98765", got[0].URL)
	assert.Equal(t, "30 September 2026", got[0].ClosingDate)

	assert.Equal(t, "https://euraxess.ec.europa.eu/jobs/11111", got[1].URL)
	assert.Equal(t, "KU Leuven", got[1].Institution)
}

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	for _, id := range []string{"jobs_ac_uk", "nature_careers", "euraxess"} {
		assert.NotNil(t, reg.Get(id), id)
	}
	assert.Nil(t, reg.Get("unknown_source"))
	assert.Len(t, reg.IDs(), 3)
}

func TestSplitTitle(t *testing.T) {
	tests := []struct {
		in, title, inst string
	}{
		{"Senior Lecturer - University of Leeds", "Senior Lecturer", "University of Leeds"},
		{"Reader in Psychology at UCL", "Reader in Psychology", "UCL"},
		{"Professor of Psychiatry", "Professor of Psychiatry", ""},
	}
	for _, tt := range tests {
		title, inst := splitTitle(tt.in)
		assert.Equal(t, tt.title, title, tt.in)
		assert.Equal(t, tt.inst, inst, tt.in)
	}
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "hello world", stripTags("<p>hello <b>world</b></p>"))
	assert.Equal(t, "plain", stripTags("plain"))
}
