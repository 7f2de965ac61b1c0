package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/jcarlson/subreddit-health/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func testDatabase(t *testing.T) *Database {
	t.Helper()

	database, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"), testLogger())
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return database
}

func sampleReport(subreddit string) *models.HealthReport {
	return &models.HealthReport{
		Subreddit:      subreddit,
		Filter:         "hot",
		SampledPosts:   15,
		IgnoredPercent: 13,
		AvgUpvotes:     88,
		AvgDownvotes:   9,
		UpvoteRatio:    91,
		CommentStats: models.CommentAnalysis{
			Constructive: 12, Toxic: 2, Ridicule: 4, Neutral: 20, Total: 38,
		},
		OverallMood: models.MoodSupportive,
		VibeSummary: "a friendly crowd",
		VibeSource:  models.SourceModel,
		GeneratedAt: time.Now(),
	}
}

func TestSaveAndGetRecentReports(t *testing.T) {
	database := testDatabase(t)

	assert.NoError(t, database.SaveReport(sampleReport("golang")))

	reports, err := database.GetRecentReports("golang", 10)
	assert.NoError(t, err)
	if assert.Len(t, reports, 1) {
		report := reports[0]
		assert.Equal(t, "golang", report.Subreddit)
		assert.Equal(t, "hot", report.Filter)
		assert.Equal(t, 15, report.SampledPosts)
		assert.Equal(t, 88, report.AvgUpvotes)
		assert.Equal(t, 38, report.CommentStats.Total)
		assert.Equal(t, models.MoodSupportive, report.OverallMood)
		assert.Equal(t, "a friendly crowd", report.VibeSummary)
		assert.Equal(t, models.SourceModel, report.VibeSource)
	}
}

func TestGetRecentReportsFiltersBySubreddit(t *testing.T) {
	database := testDatabase(t)

	assert.NoError(t, database.SaveReport(sampleReport("golang")))
	assert.NoError(t, database.SaveReport(sampleReport("rust")))

	reports, err := database.GetRecentReports("golang", 10)
	assert.NoError(t, err)
	assert.Len(t, reports, 1)
	assert.Equal(t, "golang", reports[0].Subreddit)
}

func TestGetRecentReportsLimit(t *testing.T) {
	database := testDatabase(t)

	for i := 0; i < 5; i++ {
		assert.NoError(t, database.SaveReport(sampleReport("golang")))
	}

	reports, err := database.GetRecentReports("golang", 3)
	assert.NoError(t, err)
	assert.Len(t, reports, 3)
}

func TestGetReportCount(t *testing.T) {
	database := testDatabase(t)

	count, err := database.GetReportCount()
	assert.NoError(t, err)
	assert.Equal(t, 0, count)

	assert.NoError(t, database.SaveReport(sampleReport("golang")))
	assert.NoError(t, database.SaveReport(sampleReport("rust")))

	count, err = database.GetReportCount()
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestGetRecentReportsEmpty(t *testing.T) {
	database := testDatabase(t)

	reports, err := database.GetRecentReports("nothing", 10)
	assert.NoError(t, err)
	assert.Empty(t, reports)
}
