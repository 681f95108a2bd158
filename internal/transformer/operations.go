package transformer

import (
	"context"
	"errors"

	"github.com/graphql-go/graphql"
	"github.com/sirupsen/logrus"

	"github.com/devplatform/modelgraph/internal/definition"
	"github.com/devplatform/modelgraph/internal/orm"
	"github.com/devplatform/modelgraph/internal/pipeline"
	"github.com/devplatform/modelgraph/internal/projection"
	"github.com/devplatform/modelgraph/internal/types"
)

// ============================================================================
// LIST
// ============================================================================

// List returns every record matching the pipeline arguments
type List struct{ *Engine }

func (*List) Operation() definition.Operation { return definition.OpList }
func (*List) Mutation() bool                  { return false }

func (*List) Name(def *definition.Definition) string { return pluralName(def) }

func (t *List) Type(def *definition.Definition) graphql.Output {
	return graphql.NewList(t.types.ResolveType(def))
}

func (t *List) Arguments(def *definition.Definition) graphql.FieldConfigArgument {
	args := pipeline.For(def).Arguments(def)
	if def.Restoreable() {
		args["trashed"] = &graphql.ArgumentConfig{
			Type:        graphql.Boolean,
			Description: "Include soft deleted records",
		}
		args["only_trashed"] = &graphql.ArgumentConfig{
			Type:        graphql.Boolean,
			Description: "Return only soft deleted records",
		}
	}
	return args
}

func (t *List) Resolve(def *definition.Definition) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		ctx := p.Context
		db := t.db.Use(ctx)
		cfg := t.types.Config()

		q := db.Query(def.Model)
		if def.Restoreable() {
			if only, _ := p.Args["only_trashed"].(bool); only {
				q = q.OnlyTrashed()
			} else if trashed, _ := p.Args["trashed"].(bool); trashed {
				q = q.WithTrashed()
			}
		}

		cols, err := t.intro.Columns(ctx, def.Model)
		if err != nil {
			return nil, err
		}
		tree := projection.FromInfo(p.Info, cfg.SelectionDepth)
		q, err = pipeline.For(def).Run(&pipeline.Options{
			Context:    ctx,
			Query:      q,
			Args:       p.Args,
			Fields:     tree,
			Filterable: def.Filterable,
			Grammar:    t.grammar,
			Columns:    cols,
			Depth:      types.Depth(p.Info.Path),
			MaxDepth:   cfg.MaxQueryDepth,
		})
		if err != nil {
			return nil, err
		}

		records, err := q.With(t.types.Planner().With(def.Model, tree)...).Get(ctx)
		if err != nil {
			return nil, err
		}

		if collector, ok := types.CollectorFrom(ctx); ok {
			total, err := q.Count(ctx)
			if err != nil {
				return nil, err
			}
			skip, _ := pipeline.IntArg(p.Args, "skip")
			take, _ := pipeline.IntArg(p.Args, "take")
			collector.Record(types.PathString(p.Info.Path), types.Paginate(total, skip, take))
		}
		return records, nil
	}
}

// ============================================================================
// VIEW
// ============================================================================

// View returns one record by id, soft deleted records included
type View struct{ *Engine }

func (*View) Operation() definition.Operation { return definition.OpView }
func (*View) Mutation() bool                  { return false }

func (*View) Name(def *definition.Definition) string { return singularName(def) }

func (t *View) Type(def *definition.Definition) graphql.Output {
	return t.types.ResolveType(def)
}

func (*View) Arguments(*definition.Definition) graphql.FieldConfigArgument {
	return idArgument()
}

func (t *View) Resolve(def *definition.Definition) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		tree := projection.FromInfo(p.Info, t.types.Config().SelectionDepth)
		q := t.db.Use(p.Context).Query(def.Model).With(t.types.Planner().With(def.Model, tree)...)
		if def.Restoreable() {
			q = q.WithTrashed()
		}
		return t.find(p.Context, def, q, p.Args["id"])
	}
}

// ============================================================================
// STORE
// ============================================================================

// Store creates or updates one record and hydrates its relations
type Store struct{ *Engine }

func (*Store) Operation() definition.Operation { return definition.OpStore }
func (*Store) Mutation() bool                  { return true }

func (*Store) Name(def *definition.Definition) string { return singularName(def) }

func (t *Store) Type(def *definition.Definition) graphql.Output {
	return t.types.ResolveType(def)
}

func (t *Store) Arguments(def *definition.Definition) graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		"id": &graphql.ArgumentConfig{
			Type:        graphql.ID,
			Description: "Record to update; omit to create",
		},
		"with": &graphql.ArgumentConfig{
			Type: graphql.NewNonNull(t.types.ResolveInputType(def)),
		},
	}
}

func (t *Store) Resolve(def *definition.Definition) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		input, _ := p.Args["with"].(map[string]interface{})
		return t.store(p.Context, def, p.Args["id"], input)
	}
}

// ============================================================================
// BATCH
// ============================================================================

// Batch stores every element of objects in order
type Batch struct{ *Engine }

func (*Batch) Operation() definition.Operation { return definition.OpBatch }
func (*Batch) Mutation() bool                  { return true }

func (*Batch) Name(def *definition.Definition) string { return pluralName(def) }

func (t *Batch) Type(def *definition.Definition) graphql.Output {
	return graphql.NewList(t.types.ResolveType(def))
}

func (t *Batch) Arguments(def *definition.Definition) graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		"objects": &graphql.ArgumentConfig{
			Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(t.batchItem(def)))),
		},
	}
}

func (t *Batch) Resolve(def *definition.Definition) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		objects, _ := p.Args["objects"].([]interface{})
		out := make([]*orm.Record, 0, len(objects))
		for _, obj := range objects {
			item, _ := obj.(map[string]interface{})
			input, _ := item["with"].(map[string]interface{})
			rec, err := t.store(p.Context, def, item["id"], input)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		return out, nil
	}
}

// ============================================================================
// DROP
// ============================================================================

// Drop deletes one record and returns it as it was before deletion
type Drop struct{ *Engine }

func (*Drop) Operation() definition.Operation { return definition.OpDrop }
func (*Drop) Mutation() bool                  { return true }

func (*Drop) Name(def *definition.Definition) string { return "delete" + def.Name }

func (t *Drop) Type(def *definition.Definition) graphql.Output {
	return t.types.ResolveType(def)
}

func (*Drop) Arguments(*definition.Definition) graphql.FieldConfigArgument {
	return idArgument()
}

func (t *Drop) Resolve(def *definition.Definition) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		db := t.db.Use(p.Context)
		rec, err := t.find(p.Context, def, db.Query(def.Model), p.Args["id"])
		if err != nil {
			return nil, err
		}
		snapshot := rec.Clone()
		if err := db.Delete(p.Context, rec); err != nil {
			return nil, writeError(def.Name, err)
		}
		t.logger.WithFields(logrus.Fields{
			"definition": def.Name,
			"id":         rec.Key(),
		}).Debug("Deleted record")
		return snapshot, nil
	}
}

// ============================================================================
// RESTORE
// ============================================================================

// Restore undoes a soft delete
type Restore struct{ *Engine }

func (*Restore) Operation() definition.Operation { return definition.OpRestore }
func (*Restore) Mutation() bool                  { return true }

func (*Restore) Name(def *definition.Definition) string { return "restore" + def.Name }

func (t *Restore) Type(def *definition.Definition) graphql.Output {
	return t.types.ResolveType(def)
}

func (*Restore) Arguments(*definition.Definition) graphql.FieldConfigArgument {
	return idArgument()
}

func (t *Restore) Resolve(def *definition.Definition) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		db := t.db.Use(p.Context)
		rec, err := t.find(p.Context, def, db.Query(def.Model).WithTrashed(), p.Args["id"])
		if err != nil {
			return nil, err
		}
		if err := db.Restore(p.Context, rec); err != nil {
			return nil, err
		}
		return rec, nil
	}
}

func idArgument() graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
	}
}

// find looks a record up by id, mapping a miss to NotFoundError
func (e *Engine) find(ctx context.Context, def *definition.Definition, q *orm.Query, id interface{}) (*orm.Record, error) {
	rec, err := q.Find(ctx, id)
	if errors.Is(err, orm.ErrRecordNotFound) {
		return nil, &NotFoundError{Definition: def.Name, ID: id}
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}
