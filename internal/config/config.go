// Package config provides functionality for loading and accessing environment variables.
package config

import (
	"os"
	"path/filepath"
	"sync"

	"jjcook/budgetdb/internal/logging"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	once sync.Once
	// Logger is used before the configuration has been read.
	Logger = logrus.New()
)

// ConfigureLogging sets up the bootstrap logger from BUDGETDB_LOG_LEVEL and
// BUDGETDB_LOG_FORMAT and returns it.
func ConfigureLogging() *logrus.Logger {
	logging.Configure(Logger, GetEnv(EnvPrefix+"_LOG_LEVEL", "info"), os.Getenv(EnvPrefix+"_LOG_FORMAT"))
	return Logger
}

// LoadEnv loads environment variables from a .env file if one exists in the
// working directory or its parent. Variables already set are not overridden.
func LoadEnv() {
	once.Do(func() {
		envFile := findEnvFile()
		if envFile == "" {
			Logger.Debug("No .env file found, using environment variables")
			return
		}

		if err := godotenv.Load(envFile); err != nil {
			Logger.Warnf("Error loading .env file: %v", err)
			return
		}
		Logger.Debugf("Loaded environment variables from %s", envFile)

		ConfigureLogging()
	})
}

func findEnvFile() string {
	for _, candidate := range []string{".env", filepath.Join("..", ".env")} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// GetEnv retrieves an environment variable with a fallback value if not set
func GetEnv(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	return value
}
