package orm

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

var (
	// ErrRecordNotFound is returned when a lookup by key matches no row
	ErrRecordNotFound = errors.New("record not found")
	// ErrUnknownDialect is returned for a driver name no dialect is known for
	ErrUnknownDialect = errors.New("unknown database dialect")
	// ErrUnknownRelation is returned when a relation name is not declared on a model
	ErrUnknownRelation = errors.New("unknown relation")
	// ErrUniqueViolation wraps unique constraint failures from every driver
	ErrUniqueViolation = errors.New("unique constraint violation")
	// ErrForeignKeyViolation wraps foreign key failures from every driver
	ErrForeignKeyViolation = errors.New("foreign key violation")
)

// PostgreSQL SQLSTATE codes
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// MySQL error numbers
const (
	mysqlDuplicateEntry   = 1062
	mysqlForeignKeyParent = 1451
	mysqlForeignKeyChild  = 1452
)

// convertError maps driver specific constraint errors onto the package sentinels
func convertError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRecordNotFound
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		switch pgxErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrUniqueViolation, pgxErr.Detail)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrForeignKeyViolation, pgxErr.Detail)
		}
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrUniqueViolation, pqErr.Detail)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrForeignKeyViolation, pqErr.Detail)
		}
		return err
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlDuplicateEntry:
			return fmt.Errorf("%w: %s", ErrUniqueViolation, mysqlErr.Message)
		case mysqlForeignKeyParent, mysqlForeignKeyChild:
			return fmt.Errorf("%w: %s", ErrForeignKeyViolation, mysqlErr.Message)
		}
		return err
	}

	// sqlite reports constraint failures only through the message text
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %s", ErrUniqueViolation, msg)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %s", ErrForeignKeyViolation, msg)
	}
	return err
}
