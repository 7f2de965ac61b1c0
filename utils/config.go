package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig
	Reddit   RedditConfig
	LLM      LLMConfig
	Cache    CacheConfig
	Database DatabaseConfig
	Server   ServerConfig
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name    string
	Version string
}

// RedditConfig holds Reddit API configuration
type RedditConfig struct {
	ClientID             string
	ClientSecret         string
	Username             string
	Password             string
	UserAgent            string
	MaxRequestsPerMinute int // value is per minute, multiply by 10 for 10-minute rate
}

// LLMConfig holds chat-completion API configuration
type LLMConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// CacheConfig holds cache store configuration
type CacheConfig struct {
	Backend       string // "memory" or "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ReportTTL     time.Duration
	CommentTTL    time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int
}

// LoadConfig loads configuration from .env file
func LoadConfig(envPath string, log *logrus.Logger) (*Config, error) {
	if envPath == "" {
		envPath = ".env"
	}

	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "Subreddit Health"),
			Version: getEnv("APP_VERSION", "1.0.0"),
		},
		Reddit: RedditConfig{
			ClientID:             getEnv("REDDIT_CLIENT_ID", ""),
			ClientSecret:         getEnv("REDDIT_CLIENT_SECRET", ""),
			Username:             getEnv("REDDIT_USERNAME", ""),
			Password:             getEnv("REDDIT_PASSWORD", ""),
			UserAgent:            getEnv("REDDIT_USER_AGENT", ""),
			MaxRequestsPerMinute: getEnvAsInt("REDDIT_MAX_REQUESTS_PER_MINUTE", 100),
		},
		LLM: LLMConfig{
			APIKey:  getEnv("LLM_API_KEY", ""),
			Model:   getEnv("LLM_MODEL", "llama-3.3-70b-versatile"),
			BaseURL: getEnv("LLM_BASE_URL", "https://api.groq.com/openai/v1/chat/completions"),
		},
		Cache: CacheConfig{
			Backend:       getEnv("CACHE_BACKEND", "memory"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			ReportTTL:     time.Duration(getEnvAsInt("REPORT_CACHE_TTL_SECONDS", 1800)) * time.Second,
			CommentTTL:    time.Duration(getEnvAsInt("COMMENT_CACHE_TTL_SECONDS", 3600)) * time.Second,
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./health.db"),
		},
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
	}

	// validation
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	if config.LLM.APIKey == "" {
		// classification and vibe summaries degrade to local fallbacks without a key
		log.Warn("LLM_API_KEY is not set; sentiment and vibe summaries will use fallbacks")
	}

	log.WithField("file", envPath).Info("Config loaded successfully")
	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	// Check Reddit API credentials
	if config.Reddit.ClientID == "" {
		return fmt.Errorf("REDDIT_CLIENT_ID environment variable is required")
	}
	if config.Reddit.ClientSecret == "" {
		return fmt.Errorf("REDDIT_CLIENT_SECRET environment variable is required")
	}

	// User-Agent required per API documentation;  it has strict requirements.  see example.env
	if config.Reddit.UserAgent == "" {
		return fmt.Errorf("REDDIT_USER_AGENT environment variable is required")
	}

	if config.Cache.ReportTTL < time.Second {
		return fmt.Errorf("REPORT_CACHE_TTL_SECONDS must be at least 1")
	}
	if config.Cache.CommentTTL < time.Second {
		return fmt.Errorf("COMMENT_CACHE_TTL_SECONDS must be at least 1")
	}

	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be a valid port number")
	}

	// if we are storing the db in a nested directory, create the directory
	dbDir := filepath.Dir(config.Database.Path)
	if dbDir != "." && dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
