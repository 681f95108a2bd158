package orm

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// ColumnInfo is one persisted column and its storage type as reported by the database
type ColumnInfo struct {
	Name string
	Type string
}

// Columns lists the columns of a table in declaration order
func (db *DB) Columns(ctx context.Context, table string) ([]ColumnInfo, error) {
	var stmt sq.Sqlizer
	nameCol, typeCol := "column_name", "data_type"

	switch db.dialect {
	case SQLite:
		stmt = sq.Expr("SELECT name, type FROM pragma_table_info(?)", table)
		nameCol, typeCol = "name", "type"
	case Postgres:
		stmt = db.builder.
			Select("column_name", "data_type").
			From("information_schema.columns").
			Where(sq.Eq{"table_name": table}).
			Where("table_schema = current_schema()").
			OrderBy("ordinal_position")
	case MySQL:
		stmt = db.builder.
			Select("column_name AS column_name", "data_type AS data_type").
			From("information_schema.columns").
			Where(sq.Eq{"table_name": table}).
			Where("table_schema = DATABASE()").
			OrderBy("ordinal_position")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, db.dialect)
	}

	rows, err := db.queryRows(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}

	cols := make([]ColumnInfo, 0, len(rows))
	for _, row := range rows {
		cols = append(cols, ColumnInfo{
			Name: fmt.Sprint(row[nameCol]),
			Type: strings.ToLower(fmt.Sprint(row[typeCol])),
		})
	}
	return cols, nil
}
