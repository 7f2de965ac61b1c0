package health

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jcarlson/subreddit-health/cache"
	"github.com/jcarlson/subreddit-health/models"
)

const (
	maxPosts    = 15
	maxComments = 20

	defaultReportTTL  = 30 * time.Minute
	defaultCommentTTL = time.Hour
)

// ForumClient lists a subreddit's posts and expands their replies
type ForumClient interface {
	FetchTopPosts(ctx context.Context, subreddit, filter string, limit int) ([]models.Post, error)
	FetchComments(ctx context.Context, subreddit, postID string, limit int) ([]models.Comment, error)
}

// Classifier turns comment bodies into sentiment counts
type Classifier interface {
	Classify(ctx context.Context, bodies []string) models.CommentAnalysis
}

// Summarizer produces the vibe paragraph and its source tag
type Summarizer interface {
	Summarize(ctx context.Context, subreddit string, report *models.HealthReport) (string, string)
}

// History persists finished reports; may be nil when persistence is off
type History interface {
	SaveReport(report *models.HealthReport) error
}

// Aggregator orchestrates the health pipeline: sample posts, estimate
// vote distributions, classify comment sentiment, and fold everything
// into a single HealthReport, with caching at both the report and the
// per-post comment-analysis granularity.
type Aggregator struct {
	forum      ForumClient
	classifier Classifier
	summarizer Summarizer
	store      cache.Store
	history    History
	log        *logrus.Logger
	reportTTL  time.Duration
	commentTTL time.Duration
}

// NewAggregator creates an aggregator. Zero TTLs fall back to the
// defaults (30m for whole reports, 60m for per-post comment analyses;
// post sampling churns faster than comment sentiment on a given post).
func NewAggregator(
	forum ForumClient,
	classifier Classifier,
	summarizer Summarizer,
	store cache.Store,
	history History,
	reportTTL time.Duration,
	commentTTL time.Duration,
	log *logrus.Logger,
) *Aggregator {
	if reportTTL <= 0 {
		reportTTL = defaultReportTTL
	}
	if commentTTL <= 0 {
		commentTTL = defaultCommentTTL
	}
	return &Aggregator{
		forum:      forum,
		classifier: classifier,
		summarizer: summarizer,
		store:      store,
		history:    history,
		log:        log,
		reportTTL:  reportTTL,
		commentTTL: commentTTL,
	}
}

// NormalizeFilter maps any unknown filter value to "hot"
func NormalizeFilter(filter string) string {
	if filter == "best" {
		return "best"
	}
	return "hot"
}

// DeriveMood derives the overall mood from comment sentiment counts.
// The +1 in the denominator guards division by zero and intentionally
// biases small samples toward "hostile".
func DeriveMood(constructive, toxic int) string {
	ratio := float64(constructive) / float64(toxic+1)
	switch {
	case ratio > 3:
		return models.MoodSupportive
	case ratio > 1:
		return models.MoodMixed
	default:
		return models.MoodHostile
	}
}

// EstimateDownvotes inverts Reddit's approximate upvote ratio to guess how
// many downvotes a post received. When the ratio is 0 the total is taken
// as the upvote count, which makes the estimate 0.
func EstimateDownvotes(upvotes int, ratio float64) int {
	totalVotes := float64(upvotes)
	if ratio > 0 {
		totalVotes = float64(upvotes) / ratio
	}
	down := int(math.Round(totalVotes - float64(upvotes)))
	if down < 0 {
		return 0
	}
	return down
}

func reportCacheKey(subreddit, filter string) string {
	return fmt.Sprintf("subreddit_health:%s:%s", subreddit, filter)
}

func commentCacheKey(postID string) string {
	return "post_comments:" + postID
}

// Analyze produces the HealthReport for a (subreddit, filter) pair. A
// report cache hit short-circuits everything, including vibe summary
// regeneration. Forum fetch failures are the only errors that abort the
// request; classifier and summarizer failures degrade to fallbacks
// inside their own components.
func (a *Aggregator) Analyze(ctx context.Context, subreddit, filter string) (*models.HealthReport, error) {
	filter = NormalizeFilter(filter)
	key := reportCacheKey(subreddit, filter)

	var cached models.HealthReport
	if a.store.Get(ctx, key, &cached) {
		a.log.WithFields(logrus.Fields{
			"subreddit": subreddit,
			"filter":    filter,
		}).Debug("Report cache hit")
		return &cached, nil
	}

	posts, err := a.forum.FetchTopPosts(ctx, subreddit, filter, maxPosts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch posts for r/%s: %w", subreddit, err)
	}

	report := &models.HealthReport{
		Subreddit:    subreddit,
		Filter:       filter,
		SampledPosts: len(posts),
		GeneratedAt:  time.Now(),
	}

	ignored := 0
	totalUpvotes := 0
	totalDownvotes := 0

	for _, post := range posts {
		if post.NumComments == 0 && post.Upvotes == 0 {
			ignored++
		}

		totalUpvotes += post.Upvotes
		totalDownvotes += EstimateDownvotes(post.Upvotes, post.UpvoteRatio)

		analysis, err := a.analyzePostComments(ctx, subreddit, post.ID)
		if err != nil {
			return nil, err
		}
		report.CommentStats.Add(analysis)
	}

	// zero-post samples produce an all-zero report instead of NaN noise
	if len(posts) > 0 {
		report.IgnoredPercent = roundPercent(ignored, len(posts))
		report.AvgUpvotes = int(math.Round(float64(totalUpvotes) / float64(len(posts))))
		report.AvgDownvotes = int(math.Round(float64(totalDownvotes) / float64(len(posts))))
	}
	if totalUpvotes+totalDownvotes > 0 {
		report.UpvoteRatio = roundPercent(totalUpvotes, totalUpvotes+totalDownvotes)
	}

	report.OverallMood = DeriveMood(report.CommentStats.Constructive, report.CommentStats.Toxic)
	report.VibeSummary, report.VibeSource = a.summarizer.Summarize(ctx, subreddit, report)

	a.store.SetWithTTL(ctx, key, report, a.reportTTL)

	if a.history != nil {
		if err := a.history.SaveReport(report); err != nil {
			a.log.WithError(err).WithField("subreddit", subreddit).Error("Failed to persist report history")
		}
	}

	a.log.WithFields(logrus.Fields{
		"subreddit":       subreddit,
		"filter":          filter,
		"sampled_posts":   report.SampledPosts,
		"ignored_percent": report.IgnoredPercent,
		"overall_mood":    report.OverallMood,
		"vibe_source":     report.VibeSource,
	}).Info("Health report generated")

	return report, nil
}

// analyzePostComments returns the post's comment analysis, from cache when
// possible. Comment expansion is a forum fetch, so its errors propagate.
func (a *Aggregator) analyzePostComments(ctx context.Context, subreddit, postID string) (models.CommentAnalysis, error) {
	key := commentCacheKey(postID)

	var cached models.CommentAnalysis
	if a.store.Get(ctx, key, &cached) {
		return cached, nil
	}

	comments, err := a.forum.FetchComments(ctx, subreddit, postID, maxComments)
	if err != nil {
		return models.CommentAnalysis{}, fmt.Errorf("failed to fetch comments for post %s: %w", postID, err)
	}

	bodies := make([]string, 0, len(comments))
	for _, comment := range comments {
		if comment.Body != "" {
			bodies = append(bodies, comment.Body)
		}
	}

	analysis := a.classifier.Classify(ctx, bodies)
	a.store.SetWithTTL(ctx, key, analysis, a.commentTTL)

	return analysis, nil
}

// roundPercent computes round(100 * part / whole); half rounds away from zero
func roundPercent(part, whole int) int {
	return int(math.Round(100 * float64(part) / float64(whole)))
}
