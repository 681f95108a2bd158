package orm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/sirupsen/logrus"

	// database drivers selectable through DB_DRIVER
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL flavour spoken by a driver
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// DialectFor maps a database/sql driver name to its dialect
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "pgsql", "pgx":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDialect, driver)
}

// driverName returns the name the driver registered with database/sql
func driverName(driver string) string {
	switch driver {
	case "pgsql":
		return "postgres"
	case "sqlite3":
		return "sqlite"
	}
	return driver
}

// Querier is the subset of *sql.DB and *sql.Tx the query layer runs on
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Options tunes the connection pool opened by Open
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB executes queries for registered models
type DB struct {
	conn    Querier
	sqlDB   *sql.DB
	driver  string
	dialect Dialect
	models  *Registry
	builder sq.StatementBuilderType
	logger  *logrus.Logger
}

// Open connects to the database and verifies the connection
func Open(ctx context.Context, driver, dsn string, opts Options, models *Registry, logger *logrus.Logger) (*DB, error) {
	if _, err := DialectFor(driver); err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driverName(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	db, err := New(sqlDB, driver, models, logger)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// New wraps an open connection pool
func New(sqlDB *sql.DB, driver string, models *Registry, logger *logrus.Logger) (*DB, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	if models == nil {
		models, _ = NewRegistry()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	builder := sq.StatementBuilder
	if dialect == Postgres {
		builder = builder.PlaceholderFormat(sq.Dollar)
	}

	return &DB{
		conn:    sqlDB,
		sqlDB:   sqlDB,
		driver:  driver,
		dialect: dialect,
		models:  models,
		builder: builder,
		logger:  logger,
	}, nil
}

// Dialect returns the SQL dialect
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Driver returns the configured driver name
func (db *DB) Driver() string {
	return db.driver
}

// Models returns the model registry
func (db *DB) Models() *Registry {
	return db.models
}

// Builder returns a statement builder using the dialect's placeholders
func (db *DB) Builder() sq.StatementBuilderType {
	return db.builder
}

// Ping checks the database connection
func (db *DB) Ping(ctx context.Context) error {
	if db.sqlDB == nil {
		return nil
	}
	if err := db.sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Stats returns connection pool statistics
func (db *DB) Stats() sql.DBStats {
	if db.sqlDB == nil {
		return sql.DBStats{}
	}
	return db.sqlDB.Stats()
}

// Close closes the connection pool
func (db *DB) Close() error {
	if db.sqlDB == nil {
		return nil
	}
	return db.sqlDB.Close()
}

// Exec runs a raw statement, used for migrations
func (db *DB) Exec(ctx context.Context, query string, args ...interface{}) error {
	db.logSQL(query, args)
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return convertError(err)
	}
	return nil
}

// Tx is a DB bound to an open transaction
type Tx struct {
	*DB
	tx *sql.Tx
}

// Begin starts a transaction
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	if db.sqlDB == nil {
		return nil, errors.New("nested transactions are not supported")
	}
	tx, err := db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	bound := *db
	bound.conn = tx
	bound.sqlDB = nil
	return &Tx{DB: &bound, tx: tx}, nil
}

// Commit commits the transaction
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

type ctxKey struct{}

// NewContext binds a DB (usually a transaction) to the context
func NewContext(ctx context.Context, db *DB) context.Context {
	return context.WithValue(ctx, ctxKey{}, db)
}

// FromContext returns the DB bound to the context
func FromContext(ctx context.Context) (*DB, bool) {
	db, ok := ctx.Value(ctxKey{}).(*DB)
	return db, ok && db != nil
}

// Use returns the DB bound to the context, falling back to db
func (db *DB) Use(ctx context.Context) *DB {
	if bound, ok := FromContext(ctx); ok {
		return bound
	}
	return db
}

func (db *DB) logSQL(query string, args []interface{}) {
	db.logger.WithFields(logrus.Fields{
		"sql":  query,
		"args": args,
	}).Debug("Executing SQL")
}

func (db *DB) queryRows(ctx context.Context, stmt sq.Sqlizer) ([]map[string]interface{}, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	db.logSQL(query, args)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, convertError(err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func (db *DB) execStmt(ctx context.Context, stmt sq.Sqlizer) (sql.Result, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build statement: %w", err)
	}
	db.logSQL(query, args)

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, convertError(err)
	}
	return res, nil
}

// scanRows reads every row into a column map
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
