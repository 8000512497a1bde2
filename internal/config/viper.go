// Package config provides Viper-based hierarchical configuration management
package config

import (
	"fmt"
	"strings"

	"jjcook/budgetdb/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by InitializeConfig.
const EnvPrefix = "BUDGETDB"

// Config represents the complete application configuration
type Config struct {
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Import   ImportConfig   `mapstructure:"import" yaml:"import"`
	Rules    RulesConfig    `mapstructure:"rules" yaml:"rules"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	S3       S3Config       `mapstructure:"s3" yaml:"s3"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DatabaseConfig selects the storage backend. Path is used by sqlite, DSN by
// postgres.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" yaml:"driver"`
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	Path     string `mapstructure:"path" yaml:"path"`
	Password string `mapstructure:"password" yaml:"-"` // Never serialize the password
}

type ImportConfig struct {
	Marker           string `mapstructure:"marker" yaml:"marker"`
	Delimiter        string `mapstructure:"delimiter" yaml:"delimiter"`
	CompareImportKey bool   `mapstructure:"compare_import_key" yaml:"compare_import_key"`
}

// RulesConfig names the YAML rule file used when a command is not given one.
type RulesConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// MetricsConfig holds the optional node-exporter textfile target.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

type S3Config struct {
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	PathStyle       bool   `mapstructure:"path_style" yaml:"path_style"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"-"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"-"`
}

// InitializeConfig initializes Viper configuration with hierarchical loading
func InitializeConfig() (*Config, error) {
	return InitializeConfigFile("")
}

// InitializeConfigFile is InitializeConfig reading file instead of searching
// the default locations. An empty file searches.
func InitializeConfigFile(file string) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Config file locations
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.budgetdb")
		v.AddConfigPath(".budgetdb")
		v.AddConfigPath(".")
	}

	// 3. Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 4. Read config file (optional unless named explicitly)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			if file != "" {
				return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
			}
			// Log the error but don't fail - continue with defaults and env vars
			fmt.Printf("Warning: error reading config file %s: %v\n", v.ConfigFileUsed(), err)
		}
	}

	// 5. The database password has a short variable of its own
	if err := v.BindEnv("database.password", EnvPrefix+"_PASSWORD", EnvPrefix+"_DATABASE_PASSWORD"); err != nil {
		fmt.Printf("Warning: failed to bind %s_PASSWORD environment variable: %v\n", EnvPrefix, err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 6. Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.path", "budget.db")
	v.SetDefault("database.password", "")

	// Import defaults
	v.SetDefault("import.marker", "#")
	v.SetDefault("import.delimiter", "|")
	v.SetDefault("import.compare_import_key", true)

	v.SetDefault("rules.file", "")
	v.SetDefault("metrics.textfile", "")

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.path_style", false)
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
}

// Validate checks c again, e.g. after command-line flags changed it.
func (c *Config) Validate() error {
	return validateConfig(c)
}

// validateConfig validates the configuration values
func validateConfig(config *Config) error {
	// Validate log level
	if _, err := logrus.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", config.Log.Level)
	}

	// Validate log format
	if config.Log.Format != "text" && config.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", config.Log.Format)
	}

	switch strings.ToLower(config.Database.Driver) {
	case "sqlite":
		if config.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "postgres", "postgresql", "pgx":
		if config.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be 'sqlite' or 'postgres')", config.Database.Driver)
	}

	if config.Import.Marker == "" || config.Import.Delimiter == "" {
		return fmt.Errorf("import.marker and import.delimiter must not be empty")
	}
	if config.Import.Marker == config.Import.Delimiter {
		return fmt.Errorf("import.marker and import.delimiter must differ, both are %q", config.Import.Marker)
	}

	if (config.S3.AccessKeyID == "") != (config.S3.SecretAccessKey == "") {
		return fmt.Errorf("s3.access_key_id and s3.secret_access_key must be set together")
	}

	return nil
}

// ConfigureLoggingFromConfig configures logging based on the Config struct
func ConfigureLoggingFromConfig(config *Config) *logrus.Logger {
	logger := logrus.New()
	logging.Configure(logger, config.Log.Level, config.Log.Format)
	return logger
}
