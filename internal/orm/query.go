package orm

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

type trashedScope int

const (
	withoutTrashed trashedScope = iota
	withTrashed
	onlyTrashed
)

// Query builds and runs a select over one model
type Query struct {
	db      *DB
	model   *Model
	wheres  []sq.Sqlizer
	orders  []string
	limit   *uint64
	offset  *uint64
	with    []string
	trashed trashedScope
}

// Query starts a query over the model
func (db *DB) Query(m *Model) *Query {
	return &Query{db: db, model: m}
}

// QueryModel starts a query over a registered model
func (db *DB) QueryModel(name string) (*Query, error) {
	m, ok := db.models.Model(name)
	if !ok {
		return nil, fmt.Errorf("model %s is not registered", name)
	}
	return db.Query(m), nil
}

// Model returns the queried model
func (q *Query) Model() *Model {
	return q.model
}

// DB returns the database the query runs on
func (q *Query) DB() *DB {
	return q.db
}

// Clone copies the query so the copy can be changed independently
func (q *Query) Clone() *Query {
	c := *q
	c.wheres = append([]sq.Sqlizer(nil), q.wheres...)
	c.orders = append([]string(nil), q.orders...)
	c.with = append([]string(nil), q.with...)
	return &c
}

// Where adds a predicate joined with AND
func (q *Query) Where(pred sq.Sqlizer) *Query {
	q.wheres = append(q.wheres, pred)
	return q
}

// WhereKey restricts the query to a primary key value
func (q *Query) WhereKey(id interface{}) *Query {
	return q.Where(sq.Eq{q.model.Column(q.model.Key()): id})
}

// WhereIn restricts a column to a set of values
func (q *Query) WhereIn(column string, values []interface{}) *Query {
	if len(values) == 0 {
		return q.Where(sq.Expr("1=0"))
	}
	return q.Where(sq.Eq{column: values})
}

// OrderBy appends a sort column
func (q *Query) OrderBy(column string, desc bool) *Query {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	q.orders = append(q.orders, column+" "+dir)
	return q
}

// Offset skips rows
func (q *Query) Offset(n uint64) *Query {
	q.offset = &n
	return q
}

// Limit caps the number of rows
func (q *Query) Limit(n uint64) *Query {
	q.limit = &n
	return q
}

// With eager loads relations, dotted paths load nested relations
func (q *Query) With(relations ...string) *Query {
	for _, name := range relations {
		if !contains(q.with, name) {
			q.with = append(q.with, name)
		}
	}
	return q
}

// WithTrashed includes soft deleted rows
func (q *Query) WithTrashed() *Query {
	q.trashed = withTrashed
	return q
}

// OnlyTrashed restricts the query to soft deleted rows
func (q *Query) OnlyTrashed() *Query {
	q.trashed = onlyTrashed
	return q
}

func (q *Query) predicates() []sq.Sqlizer {
	preds := append([]sq.Sqlizer(nil), q.wheres...)
	if q.model.SoftDeletes {
		switch q.trashed {
		case withoutTrashed:
			preds = append(preds, sq.Eq{q.model.Column(DeletedAt): nil})
		case onlyTrashed:
			preds = append(preds, sq.NotEq{q.model.Column(DeletedAt): nil})
		}
	}
	return preds
}

func (q *Query) selectBuilder() sq.SelectBuilder {
	b := q.db.builder.Select(q.model.Table + ".*").From(q.model.Table)
	for _, pred := range q.predicates() {
		b = b.Where(pred)
	}
	if len(q.orders) > 0 {
		b = b.OrderBy(q.orders...)
	}
	if q.limit != nil {
		b = b.Limit(*q.limit)
	}
	if q.offset != nil {
		if q.limit == nil && q.db.dialect != Postgres {
			// mysql and sqlite reject OFFSET without LIMIT
			b = b.Limit(1<<63 - 1)
		}
		b = b.Offset(*q.offset)
	}
	return b
}

// ToSql renders the select statement
func (q *Query) ToSql() (string, []interface{}, error) {
	return q.selectBuilder().ToSql()
}

// Get runs the query and eager loads requested relations
func (q *Query) Get(ctx context.Context) ([]*Record, error) {
	rows, err := q.db.queryRows(ctx, q.selectBuilder())
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.model.Table, err)
	}

	records := make([]*Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, hydrate(q.model, row))
	}
	if len(q.with) > 0 && len(records) > 0 {
		if err := q.db.Load(ctx, records, q.with...); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// First returns the first matching record or ErrRecordNotFound
func (q *Query) First(ctx context.Context) (*Record, error) {
	records, err := q.Clone().Limit(1).Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrRecordNotFound
	}
	return records[0], nil
}

// Find returns the record with the primary key or ErrRecordNotFound
func (q *Query) Find(ctx context.Context, id interface{}) (*Record, error) {
	return q.Clone().WhereKey(id).First(ctx)
}

// Count returns the number of matching rows, ignoring order and paging
func (q *Query) Count(ctx context.Context) (int, error) {
	b := q.db.builder.Select("COUNT(*) AS aggregate").From(q.model.Table)
	for _, pred := range q.predicates() {
		b = b.Where(pred)
	}

	rows, err := q.db.queryRows(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", q.model.Table, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, ok := toInt(rows[0]["aggregate"])
	if !ok {
		return 0, fmt.Errorf("unexpected count value %v", rows[0]["aggregate"])
	}
	return int(n), nil
}
