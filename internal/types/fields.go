package types

import (
	"github.com/graphql-go/graphql"

	"github.com/devplatform/modelgraph/internal/definition"
	"github.com/devplatform/modelgraph/internal/introspect"
	"github.com/devplatform/modelgraph/internal/orm"
	"github.com/devplatform/modelgraph/internal/pipeline"
	"github.com/devplatform/modelgraph/internal/projection"
	"github.com/devplatform/modelgraph/internal/scalar"
)

// fields is the phase two thunk of a definition's object type
func (r *Resolver) fields(def *definition.Definition) graphql.Fields {
	cols := r.columns(def)
	rels := r.intro.Relations(def.Model)
	allowed := r.allowed(def)

	names := sortedKeys(cols)
	if def.Fetchable != nil {
		names = sortedKeys(def.Fetchable)
	}

	fields := graphql.Fields{}
	for _, name := range names {
		override := def.Fetchable[name]

		if rel, isRel := rels[name]; isRel && override.Type == nil {
			if !allowed[name] {
				continue
			}
			if field := r.relationField(def, rel); field != nil {
				if override.Description != "" {
					field.Description = override.Description
				}
				fields[name] = field
			}
			continue
		}

		typ := override.Type
		if typ == nil {
			kind, known := cols[name]
			_, appended := def.Model.Appends[name]
			switch {
			case appended:
				typ = scalar.JSON
			case known && kind != introspect.KindUnknown:
				typ = ScalarFor(kind)
			default:
				r.logger.WithField("definition", def.Name).WithField("field", name).Debug("Skipping field without a known type")
				continue
			}
		}

		resolve := override.Resolve
		if resolve == nil {
			resolve = def.FieldResolvers[name]
		}
		if resolve == nil {
			resolve = attribute(name)
		}
		fields[name] = &graphql.Field{
			Type:        typ,
			Description: override.Description,
			Args:        override.Args,
			Resolve:     resolve,
		}
	}

	if def.Restoreable() {
		fields["trashed"] = &graphql.Field{
			Type:        graphql.Boolean,
			Description: "Whether the record is soft deleted",
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if rec, ok := p.Source.(*orm.Record); ok {
					return rec.Trashed(), nil
				}
				return false, nil
			},
		}
		fields[orm.DeletedAt] = &graphql.Field{
			Type:        scalar.Timestamp,
			Description: "When the record was soft deleted",
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if rec, ok := p.Source.(*orm.Record); ok {
					return rec.Get(orm.DeletedAt), nil
				}
				return nil, nil
			},
		}
	}
	return fields
}

// attribute resolves a field from the record attribute of the same name
func attribute(name string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		switch src := p.Source.(type) {
		case *orm.Record:
			return src.Get(name), nil
		case map[string]interface{}:
			return src[name], nil
		}
		return nil, nil
	}
}

// relationField builds the output field of a relation, or nil when none of
// its targets has a type
func (r *Resolver) relationField(def *definition.Definition, rel orm.Relation) *graphql.Field {
	if rel.Kind == orm.MorphTo {
		u := r.union(def, rel)
		if u == nil {
			return nil
		}
		return &graphql.Field{
			Type:    u,
			Resolve: r.resolveRelation(rel, nil),
		}
	}

	targets := r.targets(rel)
	if len(targets) == 0 {
		return nil
	}
	target := targets[0]
	obj := r.ResolveType(target)

	if !rel.Kind.Many() {
		return &graphql.Field{
			Type:    obj,
			Resolve: r.resolveRelation(rel, target),
		}
	}
	return &graphql.Field{
		Type:    graphql.NewList(obj),
		Args:    pipeline.For(target).Arguments(target),
		Resolve: r.resolveRelation(rel, target),
	}
}

// resolveRelation reads eager loaded data when the field has no arguments
// and queries the relation otherwise, eager loading the nested selection
func (r *Resolver) resolveRelation(rel orm.Relation, target *definition.Definition) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		rec, ok := p.Source.(*orm.Record)
		if !ok || rec == nil {
			return nil, nil
		}

		depth := Depth(p.Info.Path)
		if max := r.cfg.MaxQueryDepth; max > 0 && depth > max {
			return nil, &pipeline.DepthError{Depth: depth, MaxDepth: max}
		}

		if len(p.Args) == 0 {
			if loaded, ok := rec.Relation(rel.Name); ok {
				return relationValue(loaded), nil
			}
		}

		db := r.db.Use(p.Context)
		tree := projection.FromInfo(p.Info, r.cfg.SelectionDepth)

		if !rel.Kind.Many() {
			paths := []string{rel.Name}
			if target != nil {
				for _, nested := range r.planner.With(target.Model, tree) {
					paths = append(paths, rel.Name+"."+nested)
				}
			}
			if err := db.Load(p.Context, []*orm.Record{rec}, paths...); err != nil {
				return nil, err
			}
			loaded, _ := rec.Relation(rel.Name)
			return relationValue(loaded), nil
		}

		q, err := db.Related(p.Context, rec, rel.Name)
		if err != nil {
			return nil, err
		}
		q, err = pipeline.For(target).Run(&pipeline.Options{
			Context:    p.Context,
			Query:      q,
			Args:       p.Args,
			Source:     rec,
			Fields:     tree,
			Filterable: target.Filterable,
			Grammar:    r.grammar,
			Columns:    r.columns(target),
		})
		if err != nil {
			return nil, err
		}
		return q.With(r.planner.With(target.Model, tree)...).Get(p.Context)
	}
}

// relationValue unwraps typed nil records so GraphQL sees null
func relationValue(v interface{}) interface{} {
	if rec, ok := v.(*orm.Record); ok && rec == nil {
		return nil
	}
	return v
}
