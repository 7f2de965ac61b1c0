package vibe

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jcarlson/subreddit-health/llm"
	"github.com/jcarlson/subreddit-health/models"
)

// FallbackSummary is returned whenever the model call fails
const FallbackSummary = "This community's vibe could not be summarized right now, but the numbers above tell the story."

const summaryPrompt = `You are a community analyst with a casual voice. Given engagement and sentiment numbers for a subreddit, write ONE short paragraph (2-3 sentences) describing the community's tone. Plain text only, no lists, no JSON.

Example outputs:
- "r/gardening is a genuinely warm corner of the internet. Posts get steady attention and the comments skew helpful, with barely any hostility to speak of."
- "Things are tense in r/consolewars right now. Upvotes still flow, but the comment sections are a minefield of sarcasm and insults."
- "r/stamps is quiet but pleasant. Most posts go unnoticed, and the few people who do comment are friendly about it."`

// Completer is the chat-completion call the summarizer depends on
type Completer interface {
	Chat(ctx context.Context, messages []llm.Message, format *llm.ResponseFormat) (string, error)
}

// Summarizer produces the free-text vibe paragraph for a finished report
type Summarizer struct {
	llm Completer
	log *logrus.Logger
}

// NewSummarizer creates a summarizer backed by the given completer
func NewSummarizer(completer Completer, log *logrus.Logger) *Summarizer {
	return &Summarizer{
		llm: completer,
		log: log,
	}
}

// Summarize returns one paragraph describing the community's tone, plus a
// source tag recording whether the model or the static fallback produced
// it. It never returns an error; failures degrade to FallbackSummary.
func (s *Summarizer) Summarize(ctx context.Context, subreddit string, report *models.HealthReport) (string, string) {
	input := fmt.Sprintf(
		"Subreddit: r/%s\nIgnored posts: %d%%\nAverage upvotes: %d\nAverage downvotes (estimated): %d\nAggregate upvote ratio: %d%%\nOverall mood: %s\nComments analyzed: %d (constructive: %d, toxic: %d, ridicule: %d, neutral: %d)",
		subreddit,
		report.IgnoredPercent,
		report.AvgUpvotes,
		report.AvgDownvotes,
		report.UpvoteRatio,
		report.OverallMood,
		report.CommentStats.Total,
		report.CommentStats.Constructive,
		report.CommentStats.Toxic,
		report.CommentStats.Ridicule,
		report.CommentStats.Neutral,
	)

	content, err := s.llm.Chat(ctx, []llm.Message{
		{Role: "system", Content: summaryPrompt},
		{Role: "user", Content: input},
	}, nil)
	if err != nil {
		s.log.WithError(err).WithField("subreddit", subreddit).
			Warn("Vibe summary generation failed, using static fallback")
		return FallbackSummary, models.SourceFallback
	}

	summary := strings.TrimSpace(content)
	if summary == "" {
		return FallbackSummary, models.SourceFallback
	}

	return summary, models.SourceModel
}
