package orm

import (
	"context"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// now is replaced in tests
var now = func() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func (db *DB) storageValues(r *Record, skipKey bool) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(r.attrs))
	for col, v := range r.attrs {
		if skipKey && col == r.model.Key() {
			continue
		}
		sv, err := storageValue(r.model, col, v)
		if err != nil {
			return nil, err
		}
		values[col] = sv
	}
	return values, nil
}

// Save inserts a new record or updates an existing one
func (db *DB) Save(ctx context.Context, r *Record) error {
	m := r.model
	ts := now()
	if m.Timestamps {
		r.attrs[UpdatedAt] = ts
		if !r.exists {
			r.attrs[CreatedAt] = ts
		}
	}

	if r.exists {
		return db.update(ctx, r)
	}
	return db.insert(ctx, r)
}

func (db *DB) insert(ctx context.Context, r *Record) error {
	m := r.model
	values, err := db.storageValues(r, r.Key() == nil)
	if err != nil {
		return err
	}

	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	vals := make([]interface{}, len(cols))
	for i, col := range cols {
		vals[i] = values[col]
	}

	stmt := db.builder.Insert(m.Table).Columns(cols...).Values(vals...)
	if len(cols) == 0 {
		var key interface{}
		if db.dialect == Postgres {
			key = sq.Expr("DEFAULT")
		}
		stmt = db.builder.Insert(m.Table).Columns(m.Key()).Values(key)
	}

	if db.dialect == Postgres {
		rows, err := db.queryRows(ctx, stmt.Suffix("RETURNING "+m.Key()))
		if err != nil {
			return fmt.Errorf("failed to insert into %s: %w", m.Table, err)
		}
		if len(rows) == 1 {
			r.attrs[m.Key()] = castOut(m, m.Key(), rows[0][m.Key()])
		}
		r.exists = true
		return nil
	}

	res, err := db.execStmt(ctx, stmt)
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", m.Table, err)
	}
	if r.Key() == nil {
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read inserted key of %s: %w", m.Table, err)
		}
		r.attrs[m.Key()] = id
	}
	r.exists = true
	return nil
}

func (db *DB) update(ctx context.Context, r *Record) error {
	m := r.model
	values, err := db.storageValues(r, true)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	stmt := db.builder.Update(m.Table).SetMap(values).Where(sq.Eq{m.Key(): r.Key()})
	if _, err := db.execStmt(ctx, stmt); err != nil {
		return fmt.Errorf("failed to update %s: %w", m.Table, err)
	}
	return nil
}

// Delete removes the record, soft deleting when the model supports it
func (db *DB) Delete(ctx context.Context, r *Record) error {
	m := r.model
	if m.SoftDeletes {
		ts := now()
		stmt := db.builder.Update(m.Table).Set(DeletedAt, ts.Format(storageTimeLayout)).Where(sq.Eq{m.Key(): r.Key()})
		if _, err := db.execStmt(ctx, stmt); err != nil {
			return fmt.Errorf("failed to soft delete from %s: %w", m.Table, err)
		}
		r.attrs[DeletedAt] = ts
		return nil
	}

	stmt := db.builder.Delete(m.Table).Where(sq.Eq{m.Key(): r.Key()})
	if _, err := db.execStmt(ctx, stmt); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", m.Table, err)
	}
	r.exists = false
	return nil
}

// Restore clears the deletion timestamp of a soft deleted record
func (db *DB) Restore(ctx context.Context, r *Record) error {
	m := r.model
	if !m.SoftDeletes {
		return fmt.Errorf("model %s does not support soft deletes", m.Name)
	}
	stmt := db.builder.Update(m.Table).Set(DeletedAt, nil).Where(sq.Eq{m.Key(): r.Key()})
	if _, err := db.execStmt(ctx, stmt); err != nil {
		return fmt.Errorf("failed to restore %s: %w", m.Table, err)
	}
	r.attrs[DeletedAt] = nil
	return nil
}

// SyncResult lists the related keys a Sync attached and detached
type SyncResult struct {
	Attached []string
	Detached []string
}

// Sync replaces the pivot membership of a many-to-many relation so that
// exactly the given related keys remain attached
func (db *DB) Sync(ctx context.Context, r *Record, name string, ids []interface{}) (SyncResult, error) {
	var result SyncResult
	rel, ok := r.model.Relation(name)
	if !ok {
		return result, fmt.Errorf("%w: %s.%s", ErrUnknownRelation, r.model.Name, name)
	}
	if rel.Kind != BelongsToMany && rel.Kind != MorphToMany {
		return result, fmt.Errorf("relation %s.%s of kind %s cannot be synced", r.model.Name, name, rel.Kind)
	}

	owner := r.Get(rel.OwnerKey)
	scope := sq.Eq{rel.PivotForeignKey: owner}
	if rel.Kind == MorphToMany {
		scope[rel.MorphTypeColumn()] = r.model.Name
	}

	rows, err := db.queryRows(ctx, db.builder.Select(rel.PivotRelatedKey).From(rel.Pivot).Where(scope))
	if err != nil {
		return result, fmt.Errorf("failed to read %s: %w", rel.Pivot, err)
	}
	current := make(map[string]interface{}, len(rows))
	for _, row := range rows {
		current[KeyString(row[rel.PivotRelatedKey])] = row[rel.PivotRelatedKey]
	}

	wanted := make(map[string]bool, len(ids))
	var attach []interface{}
	for _, id := range ids {
		key := KeyString(id)
		if key == "" || wanted[key] {
			continue
		}
		wanted[key] = true
		if _, ok := current[key]; !ok {
			attach = append(attach, id)
			result.Attached = append(result.Attached, key)
		}
	}

	var detach []interface{}
	for key, raw := range current {
		if !wanted[key] {
			detach = append(detach, raw)
			result.Detached = append(result.Detached, key)
		}
	}
	sort.Strings(result.Detached)

	if len(detach) > 0 {
		stmt := db.builder.Delete(rel.Pivot).Where(scope).Where(sq.Eq{rel.PivotRelatedKey: detach})
		if _, err := db.execStmt(ctx, stmt); err != nil {
			return result, fmt.Errorf("failed to detach from %s: %w", rel.Pivot, err)
		}
	}

	if len(attach) > 0 {
		cols := []string{rel.PivotForeignKey, rel.PivotRelatedKey}
		if rel.Kind == MorphToMany {
			cols = append(cols, rel.MorphTypeColumn())
		}
		stmt := db.builder.Insert(rel.Pivot).Columns(cols...)
		for _, id := range attach {
			vals := []interface{}{owner, id}
			if rel.Kind == MorphToMany {
				vals = append(vals, r.model.Name)
			}
			stmt = stmt.Values(vals...)
		}
		if _, err := db.execStmt(ctx, stmt); err != nil {
			return result, fmt.Errorf("failed to attach to %s: %w", rel.Pivot, err)
		}
	}

	delete(r.relations, name)
	return result, nil
}
