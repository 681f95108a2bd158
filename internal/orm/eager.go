package orm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// relationPlan is a query over the related model together with the keys
// used to hand results back to their parents
type relationPlan struct {
	query *Query
	// parentKeys returns the lookup keys of a parent record
	parentKeys func(parent *Record) []string
	// relatedKeys returns the parent lookup keys a related record belongs to
	relatedKeys func(related *Record) []string
}

func single(v interface{}) []string {
	if v == nil {
		return nil
	}
	return []string{KeyString(v)}
}

func distinctValues(records []*Record, attr string) []interface{} {
	seen := make(map[string]bool)
	var out []interface{}
	for _, r := range records {
		v := r.Get(attr)
		if v == nil {
			continue
		}
		k := KeyString(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

// plan builds the batched query for one relation over many parents. Pivot
// and through tables are read in a first query so the related query never
// needs a join.
func (db *DB) plan(ctx context.Context, owner *Model, rel Relation, parents []*Record) (*relationPlan, error) {
	related, ok := db.models.Model(rel.Related)
	if !ok && rel.Kind != MorphTo {
		return nil, fmt.Errorf("relation %s.%s targets unregistered model %s", owner.Name, rel.Name, rel.Related)
	}

	switch rel.Kind {
	case BelongsTo:
		q := db.Query(related).WhereIn(related.Column(rel.OwnerKey), distinctValues(parents, rel.ForeignKey))
		return &relationPlan{
			query:       q,
			parentKeys:  func(p *Record) []string { return single(p.Get(rel.ForeignKey)) },
			relatedKeys: func(r *Record) []string { return single(r.Get(rel.OwnerKey)) },
		}, nil

	case HasOne, HasMany:
		q := db.Query(related).WhereIn(related.Column(rel.ForeignKey), distinctValues(parents, rel.OwnerKey))
		return &relationPlan{
			query:       q,
			parentKeys:  func(p *Record) []string { return single(p.Get(rel.OwnerKey)) },
			relatedKeys: func(r *Record) []string { return single(r.Get(rel.ForeignKey)) },
		}, nil

	case HasManyThrough:
		through, ok := db.models.Model(rel.Through)
		if !ok {
			return nil, fmt.Errorf("relation %s.%s goes through unregistered model %s", owner.Name, rel.Name, rel.Through)
		}
		stmt := db.builder.
			Select(through.Key(), rel.ThroughKey).
			From(through.Table).
			Where(sq.Eq{rel.ThroughKey: distinctValues(parents, rel.OwnerKey)})
		if through.SoftDeletes {
			stmt = stmt.Where(sq.Eq{DeletedAt: nil})
		}
		rows, err := db.queryRows(ctx, stmt)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s.%s: %w", owner.Name, rel.Name, err)
		}

		owners := make(map[string]string, len(rows))
		var ids []interface{}
		for _, row := range rows {
			owners[KeyString(row[through.Key()])] = KeyString(row[rel.ThroughKey])
			ids = append(ids, row[through.Key()])
		}
		q := db.Query(related).WhereIn(related.Column(rel.ForeignKey), ids)
		return &relationPlan{
			query:      q,
			parentKeys: func(p *Record) []string { return single(p.Get(rel.OwnerKey)) },
			relatedKeys: func(r *Record) []string {
				if o, ok := owners[KeyString(r.Get(rel.ForeignKey))]; ok {
					return []string{o}
				}
				return nil
			},
		}, nil

	case BelongsToMany, MorphToMany:
		stmt := db.builder.
			Select(rel.PivotForeignKey, rel.PivotRelatedKey).
			From(rel.Pivot).
			Where(sq.Eq{rel.PivotForeignKey: distinctValues(parents, rel.OwnerKey)})
		if rel.Kind == MorphToMany {
			stmt = stmt.Where(sq.Eq{rel.MorphTypeColumn(): owner.Name})
		}
		rows, err := db.queryRows(ctx, stmt)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s.%s: %w", owner.Name, rel.Name, err)
		}

		owners := make(map[string][]string)
		var ids []interface{}
		for _, row := range rows {
			key := KeyString(row[rel.PivotRelatedKey])
			if _, seen := owners[key]; !seen {
				ids = append(ids, row[rel.PivotRelatedKey])
			}
			owners[key] = append(owners[key], KeyString(row[rel.PivotForeignKey]))
		}
		q := db.Query(related).WhereIn(related.Column(related.Key()), ids)
		return &relationPlan{
			query:       q,
			parentKeys:  func(p *Record) []string { return single(p.Get(rel.OwnerKey)) },
			relatedKeys: func(r *Record) []string { return owners[KeyString(r.Key())] },
		}, nil
	}

	return nil, fmt.Errorf("relation %s.%s of kind %s cannot be queried as a set", owner.Name, rel.Name, rel.Kind)
}

// Related returns a query over the records related to one parent, ready to
// be refined by the caller
func (db *DB) Related(ctx context.Context, parent *Record, name string) (*Query, error) {
	rel, ok := parent.model.Relation(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownRelation, parent.model.Name, name)
	}
	p, err := db.plan(ctx, parent.model, rel, []*Record{parent})
	if err != nil {
		return nil, err
	}
	return p.query, nil
}

// Load eager loads relations onto the records with one batched query per
// relation and nesting level. Names may be dotted paths such as "posts.comments".
func (db *DB) Load(ctx context.Context, records []*Record, names ...string) error {
	if len(records) == 0 {
		return nil
	}

	nested := make(map[string][]string)
	var order []string
	for _, name := range names {
		head, rest, _ := strings.Cut(name, ".")
		if _, seen := nested[head]; !seen {
			order = append(order, head)
			nested[head] = nil
		}
		if rest != "" {
			nested[head] = append(nested[head], rest)
		}
	}

	for _, name := range order {
		if err := db.loadRelation(ctx, records, name, nested[name]); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) loadRelation(ctx context.Context, records []*Record, name string, nested []string) error {
	owner := records[0].model
	rel, ok := owner.Relation(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownRelation, owner.Name, name)
	}

	if rel.Kind == MorphTo {
		return db.loadMorphTo(ctx, records, rel, nested)
	}

	p, err := db.plan(ctx, owner, rel, records)
	if err != nil {
		return err
	}
	related, err := p.query.Get(ctx)
	if err != nil {
		return err
	}
	if len(nested) > 0 {
		if err := db.Load(ctx, related, nested...); err != nil {
			return err
		}
	}

	byParent := make(map[string][]*Record)
	for _, r := range related {
		for _, key := range p.relatedKeys(r) {
			byParent[key] = append(byParent[key], r)
		}
	}

	for _, parent := range records {
		var matched []*Record
		for _, key := range p.parentKeys(parent) {
			matched = append(matched, byParent[key]...)
		}
		if rel.Kind.Many() {
			if matched == nil {
				matched = []*Record{}
			}
			parent.SetRelation(name, matched)
			continue
		}
		if len(matched) > 0 {
			parent.SetRelation(name, matched[0])
		} else {
			parent.SetRelation(name, (*Record)(nil))
		}
	}
	return nil
}

// loadMorphTo groups parents by their type column and loads each type once
func (db *DB) loadMorphTo(ctx context.Context, records []*Record, rel Relation, nested []string) error {
	typeCol := rel.MorphTypeColumn()
	groups := make(map[string][]*Record)
	for _, parent := range records {
		parent.SetRelation(rel.Name, (*Record)(nil))
		if t, ok := parent.Get(typeCol).(string); ok && t != "" {
			groups[t] = append(groups[t], parent)
		}
	}

	types := make([]string, 0, len(groups))
	for t := range groups {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, t := range types {
		related, ok := db.models.Model(t)
		if !ok {
			db.logger.WithField("type", t).Warn("Skipping morph relation to unregistered model")
			continue
		}
		parents := groups[t]
		found, err := db.Query(related).WhereIn(related.Column(related.Key()), distinctValues(parents, rel.ForeignKey)).Get(ctx)
		if err != nil {
			return err
		}
		if len(nested) > 0 {
			if err := db.Load(ctx, found, nested...); err != nil {
				return err
			}
		}
		byKey := make(map[string]*Record, len(found))
		for _, r := range found {
			byKey[KeyString(r.Key())] = r
		}
		for _, parent := range parents {
			if r, ok := byKey[KeyString(parent.Get(rel.ForeignKey))]; ok {
				parent.SetRelation(rel.Name, r)
			}
		}
	}
	return nil
}
