package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/jcarlson/subreddit-health/models"
)

// Database stores a history of generated health reports
type Database struct {
	db    *sql.DB
	mutex sync.RWMutex
	log   *logrus.Logger
}

// NewDatabase creates a new SQLite database connection
func NewDatabase(dbPath string, log *logrus.Logger) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &Database{
		db:  db,
		log: log,
	}

	if err := database.initTables(); err != nil {
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return database, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.db.Close()
}

// initTables creates the necessary tables if they don't exist
func (d *Database) initTables() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	// note: in an ideal world, this would be a migration that we could just run once per environment (ie dev, staging, prod)
	query := `
	CREATE TABLE IF NOT EXISTS report_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subreddit TEXT NOT NULL,
		filter TEXT NOT NULL,
		sampled_posts INTEGER NOT NULL,
		ignored_percent INTEGER NOT NULL,
		avg_upvotes INTEGER NOT NULL,
		avg_downvotes INTEGER NOT NULL,
		upvote_ratio INTEGER NOT NULL,
		constructive INTEGER NOT NULL,
		toxic INTEGER NOT NULL,
		ridicule INTEGER NOT NULL,
		neutral INTEGER NOT NULL,
		total_comments INTEGER NOT NULL,
		overall_mood TEXT NOT NULL,
		vibe_summary TEXT,
		vibe_source TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_report_history_subreddit ON report_history(subreddit, created_at DESC);
	`

	_, err := d.db.Exec(query)
	return err
}

// SaveReport appends a generated report to the history
func (d *Database) SaveReport(report *models.HealthReport) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	query := `
	INSERT INTO report_history (
		subreddit, filter, sampled_posts, ignored_percent, avg_upvotes,
		avg_downvotes, upvote_ratio, constructive, toxic, ridicule,
		neutral, total_comments, overall_mood, vibe_summary, vibe_source, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := d.db.Exec(
		query,
		report.Subreddit, report.Filter, report.SampledPosts, report.IgnoredPercent,
		report.AvgUpvotes, report.AvgDownvotes, report.UpvoteRatio,
		report.CommentStats.Constructive, report.CommentStats.Toxic,
		report.CommentStats.Ridicule, report.CommentStats.Neutral,
		report.CommentStats.Total, report.OverallMood,
		report.VibeSummary, report.VibeSource, report.GeneratedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	return nil
}

// GetRecentReports returns the most recent reports for a subreddit, newest first
func (d *Database) GetRecentReports(subreddit string, limit int) ([]models.HealthReport, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	query := `
	SELECT subreddit, filter, sampled_posts, ignored_percent, avg_upvotes,
		avg_downvotes, upvote_ratio, constructive, toxic, ridicule,
		neutral, total_comments, overall_mood, vibe_summary, vibe_source, created_at
	FROM report_history
	WHERE subreddit = ?
	ORDER BY created_at DESC
	LIMIT ?
	`

	rows, err := d.db.Query(query, subreddit, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query report history for %s: %w", subreddit, err)
	}
	defer rows.Close()

	reports := make([]models.HealthReport, 0, limit)
	for rows.Next() {
		var report models.HealthReport
		var vibeSummary sql.NullString
		var vibeSource sql.NullString
		var createdAt string

		err := rows.Scan(
			&report.Subreddit, &report.Filter, &report.SampledPosts, &report.IgnoredPercent,
			&report.AvgUpvotes, &report.AvgDownvotes, &report.UpvoteRatio,
			&report.CommentStats.Constructive, &report.CommentStats.Toxic,
			&report.CommentStats.Ridicule, &report.CommentStats.Neutral,
			&report.CommentStats.Total, &report.OverallMood,
			&vibeSummary, &vibeSource, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}

		report.VibeSummary = vibeSummary.String
		report.VibeSource = vibeSource.String
		report.GeneratedAt, _ = time.Parse(time.RFC3339, createdAt)
		reports = append(reports, report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return reports, nil
}

// GetReportCount returns the total number of reports in the history
func (d *Database) GetReportCount() (int, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM report_history").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get report count: %w", err)
	}

	return count, nil
}
