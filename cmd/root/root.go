// Package root contains the root command for the application
package root

import (
	"context"
	"fmt"

	"jjcook/budgetdb/internal/config"
	"jjcook/budgetdb/internal/container"
	"jjcook/budgetdb/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// CommonFlags represents the flags shared by every command
type CommonFlags struct {
	ConfigFile string
	Driver     string
	Database   string
	DSN        string
	Password   string
	LogLevel   string
	LogFormat  string
}

var (
	// Log is the shared logger instance for commands
	Log logging.Logger = logging.NewDiscardLogger()

	// Cmd is the root command
	Cmd = &cobra.Command{
		Use:   "budgetdb",
		Short: "Import budget records and classify transactions with ordered rules.",
		Long: `budgetdb keeps a personal budget database. It imports accounts, budgets,
statements, transactions and allotments from a pipe-delimited flat file and
rewrites transactions in bulk with an ordered list of classification rules.`,
		Run: func(cmd *cobra.Command, args []string) {
			Log.Info("Welcome to budgetdb!")
			Log.Info("Use --help to see available commands")
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return Setup(cmd.Context(), cmd.Flags())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			Teardown()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// SharedFlags holds the persistent flag values
	SharedFlags = CommonFlags{}

	// AppContainer is set by Setup for the running command
	AppContainer *container.Container
)

// Init initializes the root command and all flags
func Init() {
	Cmd.PersistentFlags().StringVarP(&SharedFlags.ConfigFile, "config", "c", "", "Config file (default searches ./config.yaml, .budgetdb/, $HOME/.budgetdb/)")
	Cmd.PersistentFlags().StringVar(&SharedFlags.Driver, "driver", "", "Database driver: sqlite or postgres")
	Cmd.PersistentFlags().StringVarP(&SharedFlags.Database, "database", "d", "", "SQLite database file")
	Cmd.PersistentFlags().StringVar(&SharedFlags.DSN, "dsn", "", "PostgreSQL connection string")
	Cmd.PersistentFlags().StringVarP(&SharedFlags.Password, "password", "p", "", "Database password")
	Cmd.PersistentFlags().StringVar(&SharedFlags.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	Cmd.PersistentFlags().StringVar(&SharedFlags.LogFormat, "log-format", "", "Log format (text or json)")
}

// Setup loads configuration, applies flag overrides and builds AppContainer.
func Setup(ctx context.Context, flags *pflag.FlagSet) error {
	if ctx == nil {
		ctx = context.Background()
	}
	Teardown()
	config.LoadEnv()

	cfg, err := config.InitializeConfigFile(SharedFlags.ConfigFile)
	if err != nil {
		return err
	}
	applyFlags(cfg, flags)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	c, err := container.NewContainer(ctx, cfg)
	if err != nil {
		return err
	}
	AppContainer = c
	Log = c.GetLogger()
	return nil
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(cfg *config.Config, flags *pflag.FlagSet) {
	changed := func(name string) bool {
		return flags != nil && flags.Changed(name)
	}
	if changed("driver") {
		cfg.Database.Driver = SharedFlags.Driver
	}
	if changed("database") {
		cfg.Database.Path = SharedFlags.Database
	}
	if changed("dsn") {
		cfg.Database.DSN = SharedFlags.DSN
	}
	if changed("password") {
		cfg.Database.Password = SharedFlags.Password
	}
	if changed("log-level") {
		cfg.Log.Level = SharedFlags.LogLevel
	}
	if changed("log-format") {
		cfg.Log.Format = SharedFlags.LogFormat
	}
}

// Teardown closes AppContainer, writing metrics when configured.
func Teardown() {
	if AppContainer == nil {
		return
	}
	if err := AppContainer.Close(); err != nil {
		Log.WithError(err).Warn("Failed to close resources")
	}
	AppContainer = nil
}

// GetContainer returns the container built for the running command.
func GetContainer() (*container.Container, error) {
	if AppContainer == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return AppContainer, nil
}
