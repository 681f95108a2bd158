package transformer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/devplatform/modelgraph/internal/definition"
	"github.com/devplatform/modelgraph/internal/orm"
)

// typenameKey names the concrete type of a morph-to payload
const typenameKey = "__typename"

// store finds or creates the record of def, validates and fills it, saves
// it and hydrates every relation named in input
func (e *Engine) store(ctx context.Context, def *definition.Definition, id interface{}, input map[string]interface{}) (*orm.Record, error) {
	db := e.db.Use(ctx)
	rec, err := e.findOrNew(ctx, db, def.Model, id)
	if err != nil {
		return nil, err
	}
	if err := e.persist(ctx, db, def, rec, input, nil); err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"definition": def.Name,
		"id":         rec.Key(),
	}).Debug("Stored record")
	return rec, nil
}

// persist writes input into rec. Relations whose key lives on rec are
// hydrated before it is saved, the others after. prepare runs right before
// the save and lets callers set link columns.
func (e *Engine) persist(ctx context.Context, db *orm.DB, def *definition.Definition, rec *orm.Record, input map[string]interface{}, prepare func(*orm.Record)) error {
	if err := e.validator.Validate(input, def.Rules, !rec.Exists()); err != nil {
		return err
	}

	rels := e.intro.Relations(def.Model)
	attrs := make(map[string]interface{}, len(input))
	var before, after []string
	for _, key := range sortedKeys(input) {
		if key == "id" || key == typenameKey {
			continue
		}
		rel, isRel := rels[key]
		switch {
		case !isRel:
			attrs[key] = input[key]
		case rel.Kind == orm.BelongsTo || rel.Kind == orm.MorphTo:
			before = append(before, key)
		default:
			after = append(after, key)
		}
	}
	rec.Fill(attrs)

	for _, name := range before {
		if err := e.hydrate(ctx, db, rec, rels[name], input[name]); err != nil {
			return err
		}
	}
	if prepare != nil {
		prepare(rec)
	}
	if err := db.Save(ctx, rec); err != nil {
		return writeError(def.Name, err)
	}
	for _, name := range after {
		if err := e.hydrate(ctx, db, rec, rels[name], input[name]); err != nil {
			return err
		}
	}
	return nil
}

// hydrate dispatches on the relation kind
func (e *Engine) hydrate(ctx context.Context, db *orm.DB, owner *orm.Record, rel orm.Relation, value interface{}) error {
	switch rel.Kind {
	case orm.HasOne, orm.BelongsTo:
		return e.hydrateSingle(ctx, db, owner, rel, value)
	case orm.BelongsToMany, orm.MorphToMany:
		return e.hydrateAssociation(ctx, db, owner, rel, value)
	case orm.MorphTo:
		return e.hydrateMorphTo(ctx, db, owner, rel, value)
	default:
		return e.hydrateMany(ctx, db, owner, rel, value)
	}
}

// hydrateSingle upserts the one related record and links it to the owner
func (e *Engine) hydrateSingle(ctx context.Context, db *orm.DB, owner *orm.Record, rel orm.Relation, value interface{}) error {
	if value == nil {
		if rel.Kind == orm.BelongsTo {
			owner.Associate(rel, nil)
		}
		return nil
	}
	input, ok := value.(map[string]interface{})
	if !ok {
		return &InputError{Field: rel.Name, Reason: "must be an object"}
	}
	relatedDef, err := e.relatedDefinition(rel.Related)
	if err != nil {
		return err
	}

	related, err := e.findOrCurrent(ctx, db, owner, rel, relatedDef.Model, input["id"])
	if err != nil {
		return err
	}

	if rel.Kind == orm.BelongsTo {
		if err := e.persist(ctx, db, relatedDef, related, input, nil); err != nil {
			return err
		}
		owner.Associate(rel, related)
		return nil
	}

	link := owner.Get(rel.OwnerKey)
	return e.persist(ctx, db, relatedDef, related, input, func(r *orm.Record) {
		r.Set(rel.ForeignKey, link)
	})
}

// findOrCurrent finds the related record by id, or falls back to the record
// currently linked to the owner, or a new one
func (e *Engine) findOrCurrent(ctx context.Context, db *orm.DB, owner *orm.Record, rel orm.Relation, m *orm.Model, id interface{}) (*orm.Record, error) {
	if !zeroID(id) {
		return e.findOrNew(ctx, db, m, id)
	}
	if !owner.Exists() {
		return orm.NewRecord(m), nil
	}
	if rel.Kind == orm.BelongsTo && owner.Get(rel.ForeignKey) == nil {
		return orm.NewRecord(m), nil
	}

	q, err := db.Related(ctx, owner, rel.Name)
	if err != nil {
		return nil, err
	}
	current, err := q.First(ctx)
	if errors.Is(err, orm.ErrRecordNotFound) {
		return orm.NewRecord(m), nil
	}
	return current, err
}

// hydrateAssociation replaces the pivot membership with exactly the ids in value
func (e *Engine) hydrateAssociation(ctx context.Context, db *orm.DB, owner *orm.Record, rel orm.Relation, value interface{}) error {
	var ids []interface{}
	for _, item := range asList(value) {
		switch v := item.(type) {
		case map[string]interface{}:
			if !zeroID(v["id"]) {
				ids = append(ids, v["id"])
			}
		case nil:
		default:
			ids = append(ids, v)
		}
	}

	result, err := db.Sync(ctx, owner, rel.Name, ids)
	if err != nil {
		return writeError(owner.Model().Name, err)
	}
	e.logger.WithFields(logrus.Fields{
		"relation": rel.Name,
		"attached": len(result.Attached),
		"detached": len(result.Detached),
	}).Debug("Synced relation")
	return nil
}

// hydrateMorphTo resolves the payload's __typename, upserts that record and
// links it to the owner
func (e *Engine) hydrateMorphTo(ctx context.Context, db *orm.DB, owner *orm.Record, rel orm.Relation, value interface{}) error {
	if value == nil {
		owner.AssociateMorph(rel, nil)
		return nil
	}
	input, ok := value.(map[string]interface{})
	if !ok {
		return &InputError{Field: rel.Name, Reason: "must be an object"}
	}
	typename, _ := input[typenameKey].(string)
	if typename == "" {
		return &InputError{Field: rel.Name, Reason: typenameKey + " is required"}
	}

	def, ok := e.defs.Get(typename)
	if !ok || !allowedMorphType(rel, def.Model.Name) {
		return &InputError{Field: rel.Name, Reason: fmt.Sprintf("unknown type %q", typename)}
	}

	related, err := e.findOrNew(ctx, db, def.Model, input["id"])
	if err != nil {
		return err
	}
	if err := e.persist(ctx, db, def, related, input, nil); err != nil {
		return err
	}
	owner.AssociateMorph(rel, related)
	return nil
}

// hydrateMany upserts each element and links it to the owner. Records left
// out of the list are not touched.
func (e *Engine) hydrateMany(ctx context.Context, db *orm.DB, owner *orm.Record, rel orm.Relation, value interface{}) error {
	relatedDef, err := e.relatedDefinition(rel.Related)
	if err != nil {
		return err
	}

	var prepare func(*orm.Record)
	if rel.Kind == orm.HasMany {
		link := owner.Get(rel.OwnerKey)
		prepare = func(r *orm.Record) { r.Set(rel.ForeignKey, link) }
	}

	for _, item := range asList(value) {
		input, ok := item.(map[string]interface{})
		if !ok {
			return &InputError{Field: rel.Name, Reason: "elements must be objects"}
		}
		related, err := e.findOrNew(ctx, db, relatedDef.Model, input["id"])
		if err != nil {
			return err
		}
		if err := e.persist(ctx, db, relatedDef, related, input, prepare); err != nil {
			return err
		}
	}
	return nil
}

// findOrNew returns the record with the id, or a new record when the id is
// empty or matches nothing
func (e *Engine) findOrNew(ctx context.Context, db *orm.DB, m *orm.Model, id interface{}) (*orm.Record, error) {
	if zeroID(id) {
		return orm.NewRecord(m), nil
	}
	rec, err := db.Query(m).Find(ctx, id)
	if errors.Is(err, orm.ErrRecordNotFound) {
		return orm.NewRecord(m), nil
	}
	return rec, err
}

func (e *Engine) relatedDefinition(name string) (*definition.Definition, error) {
	m, ok := e.db.Models().Model(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", orm.ErrUnknownRelation, name)
	}
	return e.defs.ForModel(m), nil
}

func allowedMorphType(rel orm.Relation, model string) bool {
	if len(rel.MorphTypes) == 0 {
		return true
	}
	for _, t := range rel.MorphTypes {
		if t == model {
			return true
		}
	}
	return false
}

func asList(value interface{}) []interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case []interface{}:
		return v
	}
	return []interface{}{value}
}

func zeroID(id interface{}) bool {
	switch v := id.(type) {
	case nil:
		return true
	case string:
		return v == "" || v == "0"
	case int:
		return v == 0
	case int64:
		return v == 0
	case float64:
		return v == 0
	}
	return false
}
