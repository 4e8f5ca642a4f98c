package notify

import (
	_ "embed"
	"html/template"
	"strings"

	"github.com/jonathan/scholarwatch/internal/types"
)

//go:embed digest.html.tmpl
var digestTemplate string

var digestTmpl = template.Must(template.New("digest").Funcs(template.FuncMap{
	"pct": func(score float64) int { return int(score*100 + 0.5) },
	"tags": func(tags []string) string {
		return strings.Join(tags, ", ")
	},
}).Parse(digestTemplate))

type digestData struct {
	Postings []types.Posting
}

// renderDigest renders the HTML digest body.
func renderDigest(postings []types.Posting) (string, error) {
	var sb strings.Builder
	if err := digestTmpl.Execute(&sb, digestData{Postings: postings}); err != nil {
		return "", err
	}
	return sb.String(), nil
}
