package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jcarlson/subreddit-health/models"
)

const (
	defaultBaseURL = "https://oauth.reddit.com"
	defaultAuthURL = "https://www.reddit.com/api/v1/access_token"
	maxListLimit   = 100 // max number of posts per request
)

// ErrSubredditNotFound is returned when Reddit reports a subreddit as
// missing or forbidden (private/banned communities also answer 403).
var ErrSubredditNotFound = errors.New("subreddit does not exist")

// TokenBucket implements a rate limiter using the token bucket algorithm
type TokenBucket struct {
	mutex       sync.Mutex
	capacity    int           // maximum tokens the bucket can hold
	tokens      float64       // current number of tokens
	fillRate    float64       // rate at which tokens are added (tokens per second)
	lastRefill  time.Time     // time of last token refill
	waitTimeout time.Duration // max time to wait for a token
}

// NewTokenBucket creates a new token bucket rate limiter
func NewTokenBucket(capacity int, fillRate float64, waitTimeout time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:    capacity,
		tokens:      1, // lets start with just 1 token to avoid initial burst
		fillRate:    fillRate,
		lastRefill:  time.Now(),
		waitTimeout: waitTimeout,
	}
}

// Take attempts to take a token from the bucket
// Returns true if successful, false if timed out
func (tb *TokenBucket) Take() bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	// Refill tokens based on time elapsed
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now

	// Add tokens based on elapsed time and fill rate
	newTokens := elapsed * tb.fillRate
	if newTokens > 0 {
		tb.tokens = tb.tokens + newTokens
		if tb.tokens > float64(tb.capacity) {
			tb.tokens = float64(tb.capacity)
		}
	}

	// If we have at least one token, take it and return true
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}

	// No tokens available
	return false
}

// TakeWithTimeout attempts to take a token from the bucket, waiting up to waitTimeout
func (tb *TokenBucket) TakeWithTimeout() bool {
	if tb.Take() {
		return true
	}

	// calculate the time to wait for the next token
	tb.mutex.Lock()
	tokensNeeded := 1 - tb.tokens
	timeToWait := time.Duration(tokensNeeded / tb.fillRate * float64(time.Second))
	if timeToWait > tb.waitTimeout {
		timeToWait = tb.waitTimeout
	}
	tb.mutex.Unlock()

	// wait for next token and then grab it
	time.Sleep(timeToWait)
	return tb.Take()
}

// Update updates the rate limiter parameters based on Reddit API headers
func (tb *TokenBucket) Update(used int, reset int, maxRequests int) {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	// Reddit allocates 1000 requests per rolling 10-minute period (600 seconds)
	// reset_sec counts down from ~600 to 0
	// remaining is broken/bugged (always 0)
	// used counts up from 0 to 1000
	totalAllocationPeriod := 600
	totalAllocation := 1000

	// calculate the rate based on the entire allocation
	// lets use 95% of the full rate for safety buffer
	fullRate := float64(totalAllocation) / float64(totalAllocationPeriod)
	targetRate := fullRate * 0.95

	// set fill rate based on allocation
	tb.fillRate = targetRate
}

// RedditClient is an authenticated Reddit API client. It is constructed
// explicitly and passed to whatever needs it; no package-level state.
type RedditClient struct {
	clientID     string
	clientSecret string
	username     string
	password     string
	userAgent    string
	baseURL      string
	authURL      string
	httpClient   *http.Client
	accessToken  string
	tokenExpiry  time.Time
	mutex        sync.RWMutex
	log          *logrus.Logger
	rateLimiter  *TokenBucket

	rateResetCached  int
	rateUsedCached   int
	rateHeadersMutex sync.RWMutex
}

// redditThing is the Reddit API envelope for a post or comment
type redditThing struct {
	Kind string `json:"kind"`
	Data struct {
		ID          string  `json:"id"`
		Title       string  `json:"title"`
		Author      string  `json:"author"`
		Subreddit   string  `json:"subreddit"`
		Body        string  `json:"body"`
		CreatedUTC  float64 `json:"created_utc"`
		Ups         int     `json:"ups"`
		UpvoteRatio float64 `json:"upvote_ratio"`
		NumComments int     `json:"num_comments"`
		Permalink   string  `json:"permalink"`
	} `json:"data"`
}

// redditListing is the Reddit API listing envelope
type redditListing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string        `json:"after"`
		Children []redditThing `json:"children"`
	} `json:"data"`
}

// NewRedditClient creates a new Reddit API client. Username and password
// are optional; when present the client authenticates with the password
// grant, otherwise with application-only client credentials.
func NewRedditClient(clientID, clientSecret, username, password, userAgent string, maxRequestsPerMinute int, log *logrus.Logger) *RedditClient {
	// default to 100 requests per minute (real Reddit limit)
	if maxRequestsPerMinute <= 0 {
		maxRequestsPerMinute = 100
	}

	// our 10 minute allocation
	totalAllocation := maxRequestsPerMinute * 10

	standardRate := float64(totalAllocation) / 600.0
	targetRate := standardRate * 0.95

	// Create a token bucket rate limiter:
	// - capacity: 1 (no burst capacity when set to 1)
	// - fillRate: 95% of Reddit's rate (1000 requests per 600 seconds)
	// - waitTimeout: max 30 seconds wait for a token
	rateLimiter := NewTokenBucket(
		1, // no burst
		targetRate,
		30*time.Second,
	)

	return &RedditClient{
		clientID:        clientID,
		clientSecret:    clientSecret,
		username:        username,
		password:        password,
		userAgent:       userAgent,
		baseURL:         defaultBaseURL,
		authURL:         defaultAuthURL,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		log:             log,
		rateLimiter:     rateLimiter,
		rateResetCached: 600,
	}
}

// GetRateLimitStatus returns the current rate limit status (reset time in seconds and used requests)
func (r *RedditClient) GetRateLimitStatus() (int, int) {
	r.rateHeadersMutex.RLock()
	defer r.rateHeadersMutex.RUnlock()
	return r.rateResetCached, r.rateUsedCached
}

// authenticate authenticates with the Reddit API
func (r *RedditClient) authenticate(ctx context.Context) error {
	// first check if we already have a valid token without holding the lock for long
	r.mutex.RLock()
	token := r.accessToken
	expiry := r.tokenExpiry
	r.mutex.RUnlock()

	if token != "" && time.Now().Before(expiry) {
		return nil
	}

	r.log.Info("Authenticating with Reddit API")

	// wait for rate limiting
	if !r.rateLimiter.TakeWithTimeout() {
		return fmt.Errorf("rate limit exceeded during authentication attempt")
	}

	data := url.Values{}
	if r.username != "" && r.password != "" {
		r.log.Debug("Using password grant with script credentials")
		data.Set("grant_type", "password")
		data.Set("username", r.username)
		data.Set("password", r.password)
	} else {
		r.log.Debug("Using application-only auth with client credentials")
		data.Set("grant_type", "client_credentials")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.authURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create auth request: %w", err)
	}

	req.SetBasicAuth(r.clientID, r.clientSecret)
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute auth request: %w", err)
	}
	defer resp.Body.Close()

	r.updateRateLimits(resp)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("auth request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var authResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return fmt.Errorf("failed to decode auth response: %w", err)
	}

	r.mutex.Lock()
	r.accessToken = authResp.AccessToken
	r.tokenExpiry = time.Now().Add(time.Duration(authResp.ExpiresIn) * time.Second)
	r.mutex.Unlock()

	r.log.Info("Successfully authenticated with Reddit API")
	return nil
}

// FetchTopPosts fetches up to limit posts from a subreddit. filter "best"
// samples the weekly top listing; anything else samples "hot".
func (r *RedditClient) FetchTopPosts(ctx context.Context, subreddit, filter string, limit int) ([]models.Post, error) {
	if err := r.authenticate(ctx); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	endpoint := fmt.Sprintf("%s/r/%s/hot.json?limit=%d&raw_json=1", r.baseURL, subreddit, limit)
	if filter == "best" {
		endpoint = fmt.Sprintf("%s/r/%s/top.json?t=week&limit=%d&raw_json=1", r.baseURL, subreddit, limit)
	}

	r.log.WithFields(logrus.Fields{
		"subreddit": subreddit,
		"filter":    filter,
		"limit":     limit,
	}).Info("Fetching posts from Reddit API")

	var listing redditListing
	if err := r.getListing(ctx, endpoint, &listing); err != nil {
		return nil, err
	}

	posts := make([]models.Post, 0, len(listing.Data.Children))
	for _, thing := range listing.Data.Children {
		posts = append(posts, models.Post{
			ID:          thing.Data.ID,
			Title:       thing.Data.Title,
			Author:      thing.Data.Author,
			Subreddit:   thing.Data.Subreddit,
			Upvotes:     thing.Data.Ups,
			UpvoteRatio: thing.Data.UpvoteRatio,
			NumComments: thing.Data.NumComments,
			CreatedUTC:  thing.Data.CreatedUTC,
			Permalink:   thing.Data.Permalink,
		})
	}

	r.log.WithFields(logrus.Fields{
		"post_count": len(posts),
		"subreddit":  subreddit,
	}).Info("Fetched posts from Reddit")

	return posts, nil
}

// FetchComments fetches up to limit top-level replies (depth 1) for a post
func (r *RedditClient) FetchComments(ctx context.Context, subreddit, postID string, limit int) ([]models.Comment, error) {
	if err := r.authenticate(ctx); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	endpoint := fmt.Sprintf("%s/r/%s/comments/%s.json?limit=%d&depth=1&raw_json=1", r.baseURL, subreddit, postID, limit)

	// the comments endpoint answers with [postListing, commentListing]
	var listings []redditListing
	if err := r.getListing(ctx, endpoint, &listings); err != nil {
		return nil, err
	}
	if len(listings) < 2 {
		return nil, fmt.Errorf("unexpected comments response shape for post %s", postID)
	}

	comments := make([]models.Comment, 0, len(listings[1].Data.Children))
	for _, thing := range listings[1].Data.Children {
		// the listing can end with "more" stubs; only t1 things are comments
		if thing.Kind != "t1" || thing.Data.Body == "" {
			continue
		}
		comments = append(comments, models.Comment{
			ID:   thing.Data.ID,
			Body: thing.Data.Body,
		})
		if len(comments) >= limit {
			break
		}
	}

	return comments, nil
}

// getListing performs an authenticated GET and decodes the response into dest
func (r *RedditClient) getListing(ctx context.Context, endpoint string, dest interface{}) error {
	if !r.rateLimiter.TakeWithTimeout() {
		r.log.Warn("Rate limit exceeded, waiting before retrying")
		// wait 1 second and reissue; pacing only, failed calls are not retried
		time.Sleep(time.Second)
		return r.getListing(ctx, endpoint, dest)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	r.mutex.RLock()
	token := r.accessToken
	r.mutex.RUnlock()

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	r.updateRateLimits(resp)

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("reddit returned status %d: %w", resp.StatusCode, ErrSubredditNotFound)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		r.log.WithFields(logrus.Fields{
			"response_body": string(body),
			"status_code":   resp.StatusCode,
		}).Error("Reddit API error response")
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// updateRateLimits updates the rate limiter based on response headers
func (r *RedditClient) updateRateLimits(resp *http.Response) {
	// X-Ratelimit-Used: Approximate number of requests used in this period
	// X-Ratelimit-Reset: Approximate number of seconds to end of period (counts down from ~600 seconds)
	used := getHeaderAsInt(resp.Header, "X-Ratelimit-Used")
	reset := getHeaderAsInt(resp.Header, "X-Ratelimit-Reset")

	// skip if we didn't get valid headers for some reason
	if reset == 0 && used == 0 {
		return
	}

	r.rateHeadersMutex.Lock()
	r.rateResetCached = reset
	r.rateUsedCached = used
	r.rateHeadersMutex.Unlock()

	r.rateLimiter.Update(used, reset, 0)

	r.log.WithFields(logrus.Fields{
		"used":      used,
		"reset_sec": reset,
	}).Debug("Updated rate limiter based on Reddit headers")
}

func getHeaderAsInt(header http.Header, name string) int {
	value := header.Get(name)
	if value == "" {
		return 0
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}

	return intValue
}
