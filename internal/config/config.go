// Package config provides configuration for the apollo CLI.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds CLI configuration.
type Config struct {
	// DBPath is the SQLite file holding the story history.
	DBPath string
	// LogLevel is the zap level name (debug, info, warn, error).
	LogLevel string
	// LogFormat is "console" or "json".
	LogFormat string
	// LintConfig is an optional YAML file selecting and re-grading lint rules.
	LintConfig string
	// Template is an optional YAML beat template replacing the built-in one.
	Template string
	// MaxScopeNodes caps touched-scope expansion during lint.
	MaxScopeNodes int
	// Branch is the branch created by init.
	Branch string
}

// FromEnv creates a Config from environment variables. A .env file in the
// working directory is read first; variables already set win.
func FromEnv() *Config {
	_ = godotenv.Load()
	return &Config{
		DBPath:        getEnv("APOLLO_DB", ".apollo/story.db"),
		LogLevel:      getEnv("APOLLO_LOG_LEVEL", "info"),
		LogFormat:     getEnv("APOLLO_LOG_FORMAT", "console"),
		LintConfig:    getEnv("APOLLO_LINT_CONFIG", ""),
		Template:      getEnv("APOLLO_TEMPLATE", ""),
		MaxScopeNodes: getEnvInt("APOLLO_MAX_SCOPE_NODES", 500),
		Branch:        getEnv("APOLLO_BRANCH", "main"),
	}
}

// FromArgs creates a Config from explicit values, with env fallbacks.
func FromArgs(dbPath, logLevel string) *Config {
	cfg := FromEnv()
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil && i >= 0 {
			return i
		}
	}
	return defaultVal
}
