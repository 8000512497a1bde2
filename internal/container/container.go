// Package container provides dependency injection for the budgetdb application.
// It centralizes the creation and wiring of all application dependencies,
// making them explicit and testable.
package container

import (
	"context"
	"fmt"

	"jjcook/budgetdb/internal/classifier"
	"jjcook/budgetdb/internal/config"
	"jjcook/budgetdb/internal/importer"
	"jjcook/budgetdb/internal/logging"
	"jjcook/budgetdb/internal/metrics"
	"jjcook/budgetdb/internal/rulefile"
	"jjcook/budgetdb/internal/rulelist"
	"jjcook/budgetdb/internal/source"
	"jjcook/budgetdb/internal/store"
)

// Container holds all application dependencies and provides methods to access them.
//
// Container is immutable after creation - all fields are private and can only
// be accessed through getter methods.
type Container struct {
	logger     logging.Logger
	config     *config.Config
	store      *store.Store
	metrics    *metrics.Registry
	opener     *source.Opener
	rules      *rulelist.List
	classifier *classifier.Classifier
	ruleFiles  *rulefile.Files
}

// NewContainer opens storage and wires every component on top of it.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	return NewContainerWithLogger(ctx, cfg, logging.NewLogrusAdapter(config.ConfigureLoggingFromConfig(cfg)))
}

// NewContainerWithLogger is NewContainer with a caller-supplied logger.
func NewContainerWithLogger(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}

	st, err := store.Open(ctx, StoreConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	registry := metrics.NewRegistry()
	rules := rulelist.New(st, logger)
	cls := classifier.New(st, registry, logger)

	logger.Debug("Container initialized successfully",
		logging.F(logging.FieldDriver, st.Dialect()))

	return &Container{
		logger:     logger,
		config:     cfg,
		store:      st,
		metrics:    registry,
		opener:     source.NewOpener(S3Config(cfg), logger),
		rules:      rules,
		classifier: cls,
		ruleFiles:  rulefile.New(rules, st, cls, logger),
	}, nil
}

// StoreConfig maps the database section onto store.Config.
func StoreConfig(cfg *config.Config) store.Config {
	return store.Config{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
		Path:     cfg.Database.Path,
		Password: cfg.Database.Password,
	}
}

// ImportOptions maps the import section onto importer.Options.
func ImportOptions(cfg *config.Config) importer.Options {
	return importer.Options{
		Marker:           cfg.Import.Marker,
		Delimiter:        cfg.Import.Delimiter,
		CompareImportKey: cfg.Import.CompareImportKey,
	}
}

// S3Config maps the s3 section onto source.S3Config.
func S3Config(cfg *config.Config) source.S3Config {
	return source.S3Config{
		Region:          cfg.S3.Region,
		Endpoint:        cfg.S3.Endpoint,
		PathStyle:       cfg.S3.PathStyle,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
	}
}

// NewImporter returns a fresh staging table saving into the container's store.
func (c *Container) NewImporter() *importer.Records {
	return importer.New(c.store, c.opener, ImportOptions(c.config), c.metrics, c.logger)
}

// NewDryRunImporter returns a staging table that resolves relations against
// the store and staged rows but cannot save.
func (c *Container) NewDryRunImporter() *importer.Records {
	return importer.NewDryRun(c.store, c.opener, ImportOptions(c.config), c.metrics, c.logger)
}

func (c *Container) GetLogger() logging.Logger {
	return c.logger
}

func (c *Container) GetConfig() *config.Config {
	return c.config
}

func (c *Container) GetStore() *store.Store {
	return c.store
}

func (c *Container) GetMetrics() *metrics.Registry {
	return c.metrics
}

func (c *Container) GetOpener() *source.Opener {
	return c.opener
}

func (c *Container) GetRuleList() *rulelist.List {
	return c.rules
}

func (c *Container) GetClassifier() *classifier.Classifier {
	return c.classifier
}

func (c *Container) GetRuleFiles() *rulefile.Files {
	return c.ruleFiles
}

// Close writes the metrics textfile, when one is configured, and closes the
// store.
func (c *Container) Close() error {
	var firstErr error
	if err := c.metrics.WriteTextfile(c.config.Metrics.Textfile); err != nil {
		c.logger.WithError(err).Warn("Failed to write metrics textfile",
			logging.F(logging.FieldFile, c.config.Metrics.Textfile))
		firstErr = err
	}
	if err := c.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	c.logger.Debug("Container closed")
	return firstErr
}
