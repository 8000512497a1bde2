package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"jjcook/budgetdb/cmd/classify"
	"jjcook/budgetdb/cmd/importcmd"
	"jjcook/budgetdb/cmd/root"
	"jjcook/budgetdb/cmd/rules"
	"jjcook/budgetdb/cmd/stats"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func init() {
	// 1. Load environment variables silently first (no logging yet)
	loadEnvSilently()

	// 2. Configure the global log level before any logger is built
	configureLogLevelDirectly()

	// 3. Initialize root command and add all subcommands
	root.Init()
	root.Cmd.AddCommand(importcmd.Cmd)
	root.Cmd.AddCommand(rules.Cmd)
	root.Cmd.AddCommand(classify.Cmd)
	root.Cmd.AddCommand(stats.Cmd)
}

// loadEnvSilently loads environment variables without logging anything
func loadEnvSilently() {
	envFile := ".env"
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		envFile = filepath.Join("..", ".env")
		if _, err := os.Stat(envFile); os.IsNotExist(err) {
			return
		}
	}
	_ = godotenv.Load(envFile)
}

// configureLogLevelDirectly sets the global logrus level from BUDGETDB_LOG_LEVEL
func configureLogLevelDirectly() logrus.Level {
	logLevelStr := os.Getenv("BUDGETDB_LOG_LEVEL")
	if logLevelStr == "" {
		logLevelStr = "info"
	}

	logLevel, err := logrus.ParseLevel(strings.ToLower(logLevelStr))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logrus.SetLevel(logLevel)
	return logLevel
}

func main() {
	err := root.Cmd.Execute()
	// A failed command skips PersistentPostRun; close here so metrics are still written.
	root.Teardown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
