package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"sparkify/internal/config"
	"sparkify/internal/schema"
	"sparkify/pkg/errors"
)

// Driver names registered by the imported database/sql drivers
const (
	driverPgx    = "pgx"
	driverSQLite = "sqlite"
)

// Result describes one executed statement
type Result struct {
	Statement    string
	Duration     time.Duration
	RowsAffected int64
}

// TxFunc runs work inside a transaction and reports the rows it affected
type TxFunc func(ctx context.Context, tx *sql.Tx) (int64, error)

// Service executes statements against the warehouse over a single
// connection. Outside Atomic every statement commits on its own.
type Service struct {
	db      *sql.DB
	dialect schema.Dialect
	timeout time.Duration
	tx      *sql.Tx
}

// Option configures a Service
type Option func(*Service)

// WithStatementTimeout bounds each statement. Zero means no limit.
func WithStatementTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithDialect records the dialect the connected engine speaks
func WithDialect(d schema.Dialect) Option {
	return func(s *Service) { s.dialect = d }
}

// New wraps an already opened database handle
func New(db *sql.DB, opts ...Option) *Service {
	s := &Service{db: db, dialect: schema.Redshift}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the Redshift cluster described by cfg
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	db, err := sql.Open(driverPgx, cfg.DSN())
	if err != nil {
		return nil, errors.ConnectionError("Failed to open warehouse connection", err).
			WithContext("host", cfg.Cluster.Host)
	}
	s := New(db, append([]Option{WithDialect(schema.Redshift)}, opts...)...)
	if err := s.ping(ctx); err != nil {
		db.Close()
		return nil, classifyConnect(err).
			WithContext("host", cfg.Cluster.Host).
			WithContext("port", cfg.Cluster.Port).
			WithContext("user", cfg.Cluster.User)
	}
	return s, nil
}

// OpenSQLite opens (or creates) the local database file at path
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*Service, error) {
	db, err := sql.Open(driverSQLite, path)
	if err != nil {
		return nil, errors.ConnectionError("Failed to open local database", err).
			WithContext("path", path)
	}
	s := New(db, append([]Option{WithDialect(schema.SQLite)}, opts...)...)
	if err := s.ping(ctx); err != nil {
		db.Close()
		return nil, classifyConnect(err).WithContext("path", path)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.ConnectionError("Failed to enable foreign keys", err).
			WithContext("path", path)
	}
	return s, nil
}

func (s *Service) ping(ctx context.Context) error {
	// Statements run strictly one after another on one session
	s.db.SetMaxOpenConns(1)
	s.db.SetMaxIdleConns(1)
	s.db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Dialect returns the SQL dialect of the connected engine
func (s *Service) Dialect() schema.Dialect {
	return s.dialect
}

// Close closes the database connection. A transaction left open by a
// cancelled Atomic call is rolled back first.
func (s *Service) Close() error {
	if s.db == nil {
		return nil
	}
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	s.db = nil
	return nil
}

// Exec runs one statement and reports the rows it affected
func (s *Service) Exec(ctx context.Context, stmt schema.Statement) (Result, error) {
	return s.Run(ctx, stmt.Name, func(ctx context.Context, tx *sql.Tx) (int64, error) {
		res, err := tx.ExecContext(ctx, stmt.SQL)
		if err != nil {
			return 0, classify(stmt, err)
		}
		// Not every driver reports a count for DDL and COPY
		n, err := res.RowsAffected()
		if err != nil {
			return 0, nil
		}
		return n, nil
	})
}

// Run executes fn in its own committed transaction, or inside the open
// transaction when called under Atomic.
func (s *Service) Run(ctx context.Context, name string, fn TxFunc) (Result, error) {
	if s.db == nil {
		return Result{}, errors.New(errors.ErrCodeConnectionFailed, "Not connected to database").
			WithSuggestions("Open the warehouse connection before executing statements")
	}

	ctx, cancel := s.statementContext(ctx)
	defer cancel()

	start := time.Now()
	result := Result{Statement: name}

	if s.tx != nil {
		n, err := fn(ctx, s.tx)
		result.Duration = time.Since(start)
		result.RowsAffected = n
		return result, s.timeoutError(ctx, name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, errors.Wrap(err, errors.ErrCodeSQLTransaction, fmt.Sprintf("Failed to begin transaction for %s", name)).
			WithContext("statement", name)
	}

	n, err := fn(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		result.Duration = time.Since(start)
		return result, s.timeoutError(ctx, name, err)
	}

	if err := tx.Commit(); err != nil {
		result.Duration = time.Since(start)
		return result, errors.Wrap(err, errors.ErrCodeSQLTransaction, fmt.Sprintf("Failed to commit %s", name)).
			WithContext("statement", name)
	}

	result.Duration = time.Since(start)
	result.RowsAffected = n
	return result, nil
}

// Atomic runs fn with every statement inside one transaction. The
// transaction commits when fn succeeds and rolls back otherwise.
func (s *Service) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.db == nil {
		return errors.New(errors.ErrCodeConnectionFailed, "Not connected to database")
	}
	if s.tx != nil {
		return errors.New(errors.ErrCodeSQLTransaction, "Atomic run already in progress")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSQLTransaction, "Failed to begin transaction")
	}
	s.tx = tx
	defer func() { s.tx = nil }()

	if err := fn(ctx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrap(err, errors.ErrCodeSQLTransaction, "Rollback failed after error").
				WithContext("rollback_error", rbErr.Error())
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeSQLTransaction, "Failed to commit transaction")
	}
	return nil
}

// CountRows returns the number of rows in table
func (s *Service) CountRows(ctx context.Context, table string) (int64, error) {
	if s.db == nil {
		return 0, errors.New(errors.ErrCodeConnectionFailed, "Not connected to database")
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)

	var row *sql.Row
	if s.tx != nil {
		row = s.tx.QueryRowContext(ctx, query)
	} else {
		row = s.db.QueryRowContext(ctx, query)
	}

	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, classify(schema.Statement{Name: "count_" + table, Table: table, SQL: query}, err)
	}
	return n, nil
}

// DB returns the underlying database handle
func (s *Service) DB() *sql.DB {
	return s.db
}

func (s *Service) statementContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// timeoutError reports a cancelled or expired statement as a timeout
// regardless of how the driver phrased it.
func (s *Service) timeoutError(ctx context.Context, name string, err error) error {
	if err == nil || ctx.Err() == nil {
		return err
	}
	if errors.GetErrorCode(err) == errors.ErrCodeSQLTimeout {
		return err
	}
	appErr := errors.Wrap(err, errors.ErrCodeSQLTimeout, fmt.Sprintf("Statement %s did not finish", name)).
		WithContext("statement", name)
	if s.timeout > 0 {
		appErr.WithContext("timeout", s.timeout.String()).
			WithSuggestions("Raise warehouse.statement_timeout or leave it unset")
	}
	return appErr
}
