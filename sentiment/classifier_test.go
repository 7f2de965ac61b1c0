package sentiment

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/jcarlson/subreddit-health/llm"
	"github.com/jcarlson/subreddit-health/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

// mockCompleter records calls and returns a canned response or error
type mockCompleter struct {
	response string
	err      error
	calls    int
}

func (m *mockCompleter) Chat(ctx context.Context, messages []llm.Message, format *llm.ResponseFormat) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func TestClassifyEmptyInput(t *testing.T) {
	completer := &mockCompleter{}
	classifier := NewClassifier(completer, testLogger())

	analysis := classifier.Classify(context.Background(), nil)

	assert.Equal(t, models.CommentAnalysis{}, analysis)
	assert.Equal(t, 0, completer.calls, "empty input must not reach the network")
}

func TestClassifyModelPath(t *testing.T) {
	completer := &mockCompleter{
		response: `{"comments": [
			{"constructive": true, "toxic": false, "mood": "supportive"},
			{"constructive": false, "toxic": true, "mood": "sarcastic"},
			{"constructive": false, "toxic": false, "mood": "neutral"}
		]}`,
	}
	classifier := NewClassifier(completer, testLogger())

	analysis := classifier.Classify(context.Background(), []string{"a", "b", "c"})

	assert.Equal(t, 1, completer.calls)
	assert.Equal(t, models.SourceModel, analysis.Source)
	assert.Equal(t, 3, analysis.Total)
	assert.Equal(t, 1, analysis.Constructive)
	assert.Equal(t, 1, analysis.Toxic)
	assert.Equal(t, 1, analysis.Ridicule)
	assert.Equal(t, 0, analysis.Neutral)
}

func TestClassifyFallbackOnError(t *testing.T) {
	bodies := []string{"you could try restarting", "lol this is dumb", "shut up idiot", "nice photo"}

	completer := &mockCompleter{err: errors.New("upstream exploded")}
	classifier := NewClassifier(completer, testLogger())

	analysis := classifier.Classify(context.Background(), bodies)

	// the degraded result must equal the deterministic heuristic exactly
	assert.Equal(t, Fallback(bodies), analysis)
	assert.Equal(t, models.SourceFallback, analysis.Source)
}

func TestClassifyFallbackOnMalformedResponse(t *testing.T) {
	completer := &mockCompleter{response: "not json at all"}
	classifier := NewClassifier(completer, testLogger())

	analysis := classifier.Classify(context.Background(), []string{"hello"})

	assert.Equal(t, models.SourceFallback, analysis.Source)
	assert.Equal(t, 1, analysis.Total)
}

func TestClassifyFallbackOnCountMismatch(t *testing.T) {
	// two comments in, one verdict out: treat as malformed
	completer := &mockCompleter{
		response: `{"comments": [{"constructive": false, "toxic": false, "mood": "neutral"}]}`,
	}
	classifier := NewClassifier(completer, testLogger())

	analysis := classifier.Classify(context.Background(), []string{"a", "b"})

	assert.Equal(t, models.SourceFallback, analysis.Source)
	assert.Equal(t, 2, analysis.Total)
}

func TestFallbackKeywordCounts(t *testing.T) {
	tests := []struct {
		name     string
		bodies   []string
		expected models.CommentAnalysis
	}{
		{
			name:   "Ridicule keywords",
			bodies: []string{"lol what", "THIS IS DUMB honestly"},
			expected: models.CommentAnalysis{
				Ridicule: 2, Total: 2, Source: models.SourceFallback,
			},
		},
		{
			name:   "Constructive keywords",
			bodies: []string{"you could try this", "I suggest a different approach"},
			expected: models.CommentAnalysis{
				Constructive: 2, Total: 2, Source: models.SourceFallback,
			},
		},
		{
			name:   "Toxic keywords",
			bodies: []string{"what an idiot", "just shut up"},
			expected: models.CommentAnalysis{
				Toxic: 2, Total: 2, Source: models.SourceFallback,
			},
		},
		{
			name:   "Neutral remainder",
			bodies: []string{"nice photo", "agreed"},
			expected: models.CommentAnalysis{
				Neutral: 2, Total: 2, Source: models.SourceFallback,
			},
		},
		{
			name:   "Overlapping categories clamp neutral at zero",
			bodies: []string{"lol you could just shut up"},
			expected: models.CommentAnalysis{
				Ridicule: 1, Constructive: 1, Toxic: 1, Neutral: 0, Total: 1,
				Source: models.SourceFallback,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := Fallback(tc.bodies)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestFallbackIsDeterministic(t *testing.T) {
	bodies := []string{"you could try this", "lol", "idiot", "fine"}

	first := Fallback(bodies)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Fallback(bodies))
	}
}

func TestTallyClampsNegativeNeutral(t *testing.T) {
	// one comment that is constructive, toxic, and sarcastic all at once
	verdicts := []verdict{{Constructive: true, Toxic: true, Mood: "sarcastic"}}

	analysis := tally(verdicts)

	assert.Equal(t, 1, analysis.Total)
	assert.Equal(t, 0, analysis.Neutral, "subtractive neutral must not go negative")
}
