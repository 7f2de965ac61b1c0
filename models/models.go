package models

import (
	"time"
)

// Analysis sources; reports carry these so callers can tell whether the
// classifier/summarizer actually ran or a local fallback was used
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// Moods a subreddit can be assigned based on its comment sentiment
const (
	MoodSupportive = "supportive"
	MoodMixed      = "mixed"
	MoodHostile    = "hostile"
)

// Post represents a sampled Reddit post
type Post struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Upvotes     int     `json:"upvotes"`
	UpvoteRatio float64 `json:"upvote_ratio"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Permalink   string  `json:"permalink"`
}

// Comment represents a top-level reply on a Reddit post
type Comment struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

// CommentAnalysis holds sentiment counts for a batch of comments
type CommentAnalysis struct {
	Ridicule     int    `json:"ridicule"`
	Constructive int    `json:"constructive"`
	Toxic        int    `json:"toxic"`
	Neutral      int    `json:"neutral"`
	Total        int    `json:"total"`
	Source       string `json:"source,omitempty"`
}

// Add folds another analysis into this one. The Source tag is not
// aggregated; per-post sources can differ within one report.
func (a *CommentAnalysis) Add(other CommentAnalysis) {
	a.Ridicule += other.Ridicule
	a.Constructive += other.Constructive
	a.Toxic += other.Toxic
	a.Neutral += other.Neutral
	a.Total += other.Total
}

// HealthReport is the aggregate health result for a (subreddit, filter) pair.
// AvgDownvotes is estimated by inverting Reddit's approximate upvote ratio,
// so it carries compounding error and is not authoritative.
type HealthReport struct {
	Subreddit      string          `json:"subreddit"`
	Filter         string          `json:"filter"`
	SampledPosts   int             `json:"sampled_posts"`
	IgnoredPercent int             `json:"ignored_percent"`
	AvgUpvotes     int             `json:"avg_upvotes"`
	AvgDownvotes   int             `json:"avg_downvotes"`
	UpvoteRatio    int             `json:"upvote_ratio"`
	CommentStats   CommentAnalysis `json:"comment_stats"`
	OverallMood    string          `json:"overall_mood"`
	VibeSummary    string          `json:"vibe_summary,omitempty"`
	VibeSource     string          `json:"vibe_source,omitempty"`
	GeneratedAt    time.Time       `json:"generated_at"`
}
