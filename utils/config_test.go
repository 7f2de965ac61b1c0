package utils

import (
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

const testEnvPath = "./test.env"

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func cleanup() {
	os.Remove(testEnvPath)
}

// TestMain handles test setup and cleanup for all tests in this package
func TestMain(m *testing.M) {
	exitCode := m.Run()

	cleanup()

	os.Exit(exitCode)
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_ENV_VAR", "test-value")
	defer os.Unsetenv("TEST_ENV_VAR")

	value := getEnv("TEST_ENV_VAR", "default-value")
	assert.Equal(t, "test-value", value)

	value = getEnv("NON_EXISTENT_VAR", "default-value")
	assert.Equal(t, "default-value", value)
}

func TestGetEnvAsInt(t *testing.T) {
	os.Setenv("TEST_INT_VAR", "42")
	defer os.Unsetenv("TEST_INT_VAR")

	value := getEnvAsInt("TEST_INT_VAR", 10)
	assert.Equal(t, 42, value)

	os.Setenv("TEST_INVALID_INT_VAR", "not-an-int")
	defer os.Unsetenv("TEST_INVALID_INT_VAR")

	value = getEnvAsInt("TEST_INVALID_INT_VAR", 10)
	assert.Equal(t, 10, value)

	value = getEnvAsInt("NON_EXISTENT_VAR", 10)
	assert.Equal(t, 10, value)
}

func TestValidateConfig(t *testing.T) {
	//valid
	validConfig := &Config{
		Reddit: RedditConfig{
			ClientID:     "id",
			ClientSecret: "secret",
			UserAgent:    "agent",
		},
		Cache: CacheConfig{
			ReportTTL:  30 * time.Minute,
			CommentTTL: time.Hour,
		},
		Database: DatabaseConfig{
			Path: "./test.db",
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
	assert.NoError(t, validateConfig(validConfig))

	// missing client id
	invalidConfig := &Config{
		Reddit: RedditConfig{
			ClientID:     "",
			ClientSecret: "secret",
			UserAgent:    "agent",
		},
		Cache: CacheConfig{
			ReportTTL:  30 * time.Minute,
			CommentTTL: time.Hour,
		},
		Server: ServerConfig{Port: 8080},
	}
	err := validateConfig(invalidConfig)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "REDDIT_CLIENT_ID")

	// broken report TTL
	invalidConfig = &Config{
		Reddit: RedditConfig{
			ClientID:     "id",
			ClientSecret: "secret",
			UserAgent:    "agent",
		},
		Cache: CacheConfig{
			ReportTTL:  0,
			CommentTTL: time.Hour,
		},
		Server: ServerConfig{Port: 8080},
	}
	err = validateConfig(invalidConfig)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "REPORT_CACHE_TTL_SECONDS")

	// bogus port
	invalidConfig = &Config{
		Reddit: RedditConfig{
			ClientID:     "id",
			ClientSecret: "secret",
			UserAgent:    "agent",
		},
		Cache: CacheConfig{
			ReportTTL:  30 * time.Minute,
			CommentTTL: time.Hour,
		},
		Server: ServerConfig{Port: -1},
	}
	err = validateConfig(invalidConfig)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "SERVER_PORT")
}

func TestLoadConfigMissingEnvFile(t *testing.T) {
	log := testLogger()

	_, err := LoadConfig("./does-not-exist.env", log)
	assert.Error(t, err)
}

func TestLoadConfigDefaults(t *testing.T) {
	envContent := "REDDIT_CLIENT_ID=id\nREDDIT_CLIENT_SECRET=secret\nREDDIT_USER_AGENT=agent\n"
	if err := os.WriteFile(testEnvPath, []byte(envContent), 0644); err != nil {
		t.Fatalf("failed to write test env file: %v", err)
	}
	defer cleanup()

	config, err := LoadConfig(testEnvPath, testLogger())
	assert.NoError(t, err)
	assert.Equal(t, "memory", config.Cache.Backend)
	assert.Equal(t, 30*time.Minute, config.Cache.ReportTTL)
	assert.Equal(t, time.Hour, config.Cache.CommentTTL)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 100, config.Reddit.MaxRequestsPerMinute)
}
