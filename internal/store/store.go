package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver.
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver.
	_ "github.com/mattn/go-sqlite3"    // SQLite driver.
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/jsonapi/internal/model"
	"github.com/roach88/jsonapi/internal/querysql"
)

var tracer = otel.Tracer("jsonapi/internal/store")

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jsonapi",
		Subsystem: "store",
		Name:      "queries_total",
		Help:      "Number of SQL statements issued by the data layer.",
	}, []string{"operation"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jsonapi",
		Subsystem: "store",
		Name:      "query_duration_seconds",
		Help:      "Latency of SQL statements issued by the data layer.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

// Options configures a Store.
type Options struct {
	// Engine is "sqlite", "postgres" or "mysql".
	Engine string

	// DSN is the driver data source name; a file path for SQLite.
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store loads and mutates resources in a relational database.
// Store is safe for concurrent use.
type Store struct {
	db       *sql.DB
	models   model.Provider
	compiler *querysql.Compiler

	roundTrips atomic.Int64
}

var driverNames = map[string]string{
	"sqlite":   "sqlite3",
	"postgres": "pgx",
	"mysql":    "mysql",
}

// Open connects to the database described by opts.
//
// For SQLite the connection pool is limited to a single connection and the
// required pragmas are applied.
func Open(opts Options, models model.Provider) (*Store, error) {
	dialect, err := querysql.DialectFor(opts.Engine)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverNames[dialect.Name], opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dialect.Name == querysql.SQLite.Name {
		// SQLite only supports one writer at a time
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	return &Store{
		db:       db,
		models:   models,
		compiler: querysql.NewCompiler(models, dialect),
	}, nil
}

// OpenSQLite opens (or creates) a SQLite database file.
func OpenSQLite(path string, models model.Provider) (*Store, error) {
	return Open(Options{Engine: "sqlite", DSN: path}, models)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Compiler returns the SQL compiler bound to the store's model and dialect.
func (s *Store) Compiler() *querysql.Compiler {
	return s.compiler
}

// RoundTrips returns the number of statements issued since the store was opened.
func (s *Store) RoundTrips() int64 {
	return s.roundTrips.Load()
}

// ExecScript runs DDL or seed statements. Multi-statement scripts are
// supported by the SQLite and PostgreSQL drivers.
func (s *Store) ExecScript(ctx context.Context, script string) error {
	if _, err := s.db.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("exec script: %w", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// observe starts a span for a statement and returns the function that ends it.
func (s *Store) observe(ctx context.Context, operation, query string) (context.Context, func(error)) {
	s.roundTrips.Add(1)
	queriesTotal.WithLabelValues(operation).Inc()

	ctx, span := tracer.Start(ctx, "store."+operation, trace.WithAttributes(
		attribute.String("db.statement", query),
	))
	start := time.Now()

	return ctx, func(err error) {
		queryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}

func (s *Store) query(ctx context.Context, operation, query string, args ...any) (*sql.Rows, error) {
	ctx, done := s.observe(ctx, operation, query)
	rows, err := s.db.QueryContext(ctx, query, args...)
	done(err)
	return rows, err
}

func (s *Store) exec(ctx context.Context, operation, query string, args ...any) (sql.Result, error) {
	ctx, done := s.observe(ctx, operation, query)
	res, err := s.db.ExecContext(ctx, query, args...)
	done(err)
	return res, err
}
