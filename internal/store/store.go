// Package store is the relational persistence layer behind the importer, the
// rule list and the classifier. It speaks database/sql to either an embedded
// SQLite file or a PostgreSQL server.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"jjcook/budgetdb/internal/logging"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

// Supported values of Config.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and addresses the database.
type Config struct {
	Driver   string
	DSN      string
	Path     string // sqlite file, used when DSN is empty
	Password string // injected into a postgres DSN when set
}

// Store wraps a *sql.DB and the dialect its queries are rebound for.
type Store struct {
	db      *sql.DB
	dialect string
	logger  logging.Logger
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type txKey struct{}

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, cfg Config, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	driverName, dsn, err := cfg.driverDSN()
	if err != nil {
		return nil, err
	}

	if err := migrateUp(cfg.dialect(), driverName, dsn); err != nil {
		return nil, fmt.Errorf("migrate %s database: %w", cfg.dialect(), err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.dialect(), err)
	}
	if cfg.dialect() == DriverSQLite {
		db.SetMaxOpenConns(1) // sqlite
		db.SetConnMaxLifetime(0)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", cfg.dialect(), err)
	}

	logger.Debug("Database opened", logging.F(logging.FieldDriver, cfg.dialect()))
	return &Store{db: db, dialect: cfg.dialect(), logger: logger}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect returns DriverSQLite or DriverPostgres.
func (s *Store) Dialect() string {
	return s.dialect
}

func (c Config) dialect() string {
	switch strings.ToLower(c.Driver) {
	case DriverPostgres, "postgresql", "pgx":
		return DriverPostgres
	default:
		return DriverSQLite
	}
}

// driverDSN returns the database/sql driver name and connection string.
func (c Config) driverDSN() (string, string, error) {
	switch c.dialect() {
	case DriverPostgres:
		if c.DSN == "" {
			return "", "", fmt.Errorf("postgres driver requires database.dsn")
		}
		return "pgx", withPassword(c.DSN, c.Password), nil
	default:
		if c.DSN != "" {
			return "sqlite", c.DSN, nil
		}
		path := c.Path
		if path == "" {
			path = "budget.db"
		}
		return "sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path), nil
	}
}

// withPassword sets password on a postgres URL or keyword/value DSN.
func withPassword(dsn, password string) string {
	if password == "" {
		return dsn
	}
	if u, err := url.Parse(dsn); err == nil && (u.Scheme == "postgres" || u.Scheme == "postgresql") {
		name := ""
		if u.User != nil {
			name = u.User.Username()
		}
		u.User = url.UserPassword(name, password)
		return u.String()
	}
	return dsn + " password=" + quoteKV(password)
}

func quoteKV(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// WithinTx runs fn inside a transaction carried by the context passed to fn.
// The transaction commits when fn returns nil and rolls back otherwise. A call
// made while a transaction is already active joins it.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

func (s *Store) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.conn(ctx).ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.conn(ctx).QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.conn(ctx).QueryRowContext(ctx, s.rebind(query), args...)
}

// rebind rewrites ? placeholders as $1, $2, ... for postgres. Queries built
// here never contain a literal question mark.
func (s *Store) rebind(query string) string {
	if s.dialect != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
