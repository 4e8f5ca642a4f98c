package classify

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/scholarwatch/internal/config"
	"github.com/jonathan/scholarwatch/internal/types"
)

func defaultClassifier() *Classifier {
	return New(config.Default().RankBuckets, zerolog.Nop())
}

func TestClassify(t *testing.T) {
	c := defaultClassifier()

	tests := []struct {
		title string
		want  types.RankBucket
	}{
		{"Senior Lecturer in Psychology", types.RankAssociateProfessor},
		{"Reader in Cognitive Neuroscience", types.RankAssociateProfessor},
		{"Associate Professor of Psychology", types.RankAssociateProfessor},
		{"Principal Lecturer in Counselling", types.RankAssociateProfessor},
		{"Professor of Organisational Behaviour", types.RankProfessor},
		{"Professorship in Clinical Psychology", types.RankProfessor},
		{"Assistant Professor of Psychology", types.RankAssistantProfessor},
		{"Lecturer in Health Psychology", types.RankAssistantProfessor},
		{"Postdoctoral Research Fellow", types.RankPostdoc},
		{"Post-doc position in Neuroimaging", types.RankPostdoc},
		{"Research Fellow in Mental Health", types.RankResearchFellow},
		{"Research Associate", types.RankResearchFellow},
		{"Laboratory Technician", types.RankOther},
		{"", types.RankOther},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got, source := c.Classify(tt.title)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, types.RankSourceRules, source)
		})
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	c := defaultClassifier()

	// Titles containing "professor" with a prefix must never land in the
	// bare professor bucket.
	got, _ := c.Classify("Associate Professor")
	assert.NotEqual(t, types.RankProfessor, got)

	got, _ = c.Classify("Assistant Professor")
	assert.NotEqual(t, types.RankProfessor, got)
}

func TestClassify_CaseInsensitive(t *testing.T) {
	c := defaultClassifier()

	got, _ := c.Classify("SENIOR LECTURER IN PSYCHOLOGY")
	assert.Equal(t, types.RankAssociateProfessor, got)
}

func TestNew_SkipsInvalidPattern(t *testing.T) {
	table := []config.RankBucketConfig{
		{Key: "professor", Patterns: []string{`[unclosed`, `\bprofessor\b`}},
		{Key: "other"},
	}
	c := New(table, zerolog.Nop())

	// The bad pattern is dropped, the good one still matches.
	got, _ := c.Classify("Professor of Mathematics")
	assert.Equal(t, types.RankProfessor, got)
}

func TestIsTargetSeniority(t *testing.T) {
	c := defaultClassifier()

	assert.True(t, c.IsTargetSeniority(types.RankAssociateProfessor))
	assert.False(t, c.IsTargetSeniority(types.RankProfessor))
	assert.False(t, c.IsTargetSeniority(types.RankOther))
	assert.False(t, c.IsTargetSeniority(types.RankBucket("nonexistent")))
}
