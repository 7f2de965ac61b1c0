package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jcarlson/subreddit-health/api"
	"github.com/jcarlson/subreddit-health/cache"
	"github.com/jcarlson/subreddit-health/db"
	"github.com/jcarlson/subreddit-health/health"
	"github.com/jcarlson/subreddit-health/llm"
	"github.com/jcarlson/subreddit-health/sentiment"
	"github.com/jcarlson/subreddit-health/utils"
	"github.com/jcarlson/subreddit-health/vibe"
)

func main() {
	envPath := flag.String("env", ".env", "Path to .env file")
	logLevel := flag.String("log-level", "debug", "Logging level (debug, info, warn, error)")
	flag.Parse()

	log := setupLogger(*logLevel)
	log.Info("Starting Subreddit Health")

	config, err := utils.LoadConfig(*envPath, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	log.WithFields(logrus.Fields{
		"cache_backend": config.Cache.Backend,
		"llm_model":     config.LLM.Model,
		"server_port":   config.Server.Port,
	}).Info("Configuration loaded")

	database, err := db.NewDatabase(config.Database.Path, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.Close()

	store := setupCache(config, log)

	redditClient := api.NewRedditClient(
		config.Reddit.ClientID,
		config.Reddit.ClientSecret,
		config.Reddit.Username,
		config.Reddit.Password,
		config.Reddit.UserAgent,
		config.Reddit.MaxRequestsPerMinute,
		log,
	)

	llmClient := llm.NewClient(config.LLM.APIKey, config.LLM.Model, config.LLM.BaseURL)
	classifier := sentiment.NewClassifier(llmClient, log)
	summarizer := vibe.NewSummarizer(llmClient, log)

	aggregator := health.NewAggregator(
		redditClient,
		classifier,
		summarizer,
		store,
		database,
		config.Cache.ReportTTL,
		config.Cache.CommentTTL,
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go startEchoServer(ctx, config.Server.Port, aggregator, database, log, config.Reddit.MaxRequestsPerMinute)

	waitForShutdown(cancel, log)
}

// setupLogger sets up the logger with the specified log level
func setupLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// setupCache builds the configured cache backend, falling back to the
// in-memory store when Redis is unreachable
func setupCache(config *utils.Config, log *logrus.Logger) cache.Store {
	if config.Cache.Backend == "redis" {
		redisStore, err := cache.NewRedis(cache.RedisConfig{
			Addr:     config.Cache.RedisAddr,
			Password: config.Cache.RedisPassword,
			DB:       config.Cache.RedisDB,
		})
		if err != nil {
			log.WithError(err).Error("Failed to connect to Redis, falling back to memory cache")
			return cache.NewMemory()
		}
		log.WithField("addr", config.Cache.RedisAddr).Info("Using Redis cache backend")
		return redisStore
	}

	log.Info("Using in-memory cache backend")
	return cache.NewMemory()
}

// startEchoServer starts the Echo HTTP API server
func startEchoServer(ctx context.Context, port int, aggregator *health.Aggregator, database *db.Database, log *logrus.Logger, maxRequestsPerMinute int) {
	e := echo.New()

	// middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	requestsPerSecond := float64(maxRequestsPerMinute) / 60.0

	rateLimit := rate.Limit(requestsPerSecond * 0.95) // use 95% of the rate limit to be safe

	rateLimiterConfig := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rateLimit,
				Burst:     1, // no burst capability
				ExpiresIn: 3 * time.Minute,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return ctx.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Rate limit exceeded, please try again later",
			})
		},
		DenyHandler: func(ctx echo.Context, identifier string, err error) error {
			return ctx.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Rate limit exceeded, please try again later",
			})
		},
	}
	e.Use(middleware.RateLimiterWithConfig(rateLimiterConfig))

	e.POST("/api/health", func(c echo.Context) error {
		var body struct {
			Subreddit string `json:"subreddit"`
			Filter    string `json:"filter"`
		}
		if err := c.Bind(&body); err != nil || body.Subreddit == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "Missing subreddit",
			})
		}

		report, err := aggregator.Analyze(c.Request().Context(), body.Subreddit, body.Filter)
		if err != nil {
			if errors.Is(err, api.ErrSubredditNotFound) {
				return c.JSON(http.StatusNotFound, map[string]string{
					"error": fmt.Sprintf("Subreddit r/%s does not exist", body.Subreddit),
				})
			}
			log.WithError(err).WithField("subreddit", body.Subreddit).Error("Failed to analyze subreddit")
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "Failed to analyze subreddit",
			})
		}

		return c.JSON(http.StatusOK, report)
	})

	e.GET("/api/health/history/:subreddit", func(c echo.Context) error {
		subreddit := c.Param("subreddit")

		limit := 20
		if l := c.QueryParam("limit"); l != "" {
			if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		reports, err := database.GetRecentReports(subreddit, limit)
		if err != nil {
			log.WithError(err).WithField("subreddit", subreddit).Error("Failed to load report history")
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "Failed to load report history",
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"subreddit": subreddit,
			"count":     len(reports),
			"reports":   reports,
		})
	})

	// health check endpoint; useful for k8s liveliness probes but not strictly required in this case;
	// should also add readiness probe, etc if we had a full k8s use case here
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	// start the server!
	go func() {
		serverAddr := fmt.Sprintf(":%d", port)
		log.WithField("port", port).Info("Starting API server")
		if err := e.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("API server failed")
		}
	}()

	// wait for context cancellation to shut down server
	<-ctx.Done()
	log.Info("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("API server shutdown failed")
	}
}

// waitForShutdown waits for a shutdown signal
func waitForShutdown(cancel context.CancelFunc, log *logrus.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithField("signal", sig.String()).Info("Shutdown signal received")

	cancel()

	time.Sleep(1 * time.Second)
	log.Info("Subreddit Health stopped")
}
