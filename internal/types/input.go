package types

import (
	"github.com/graphql-go/graphql"

	"github.com/devplatform/modelgraph/internal/definition"
	"github.com/devplatform/modelgraph/internal/introspect"
	"github.com/devplatform/modelgraph/internal/orm"
	"github.com/devplatform/modelgraph/internal/scalar"
)

// ResolveInputType returns the cached {Name}Input type of a definition
func (r *Resolver) ResolveInputType(def *definition.Definition) *graphql.InputObject {
	r.mu.Lock()
	defer r.mu.Unlock()

	if in, ok := r.inputs[def.Name]; ok {
		return in
	}
	in := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: def.Name + "Input",
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
			return r.inputFields(def)
		}),
	})
	r.inputs[def.Name] = in
	return in
}

// MutableFields returns the input field names of a definition, defaulting to
// every fillable stored column and every relation
func (r *Resolver) MutableFields(def *definition.Definition) []string {
	if def.Mutable != nil {
		return sortedKeys(def.Mutable)
	}

	cols := r.columns(def)
	rels := r.intro.Relations(def.Model)
	var out []string
	for _, name := range sortedKeys(cols) {
		if _, isRel := rels[name]; isRel {
			out = append(out, name)
			continue
		}
		if cols[name] == introspect.KindUnknown || managedColumn(def.Model, name) || !def.Model.IsFillable(name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (r *Resolver) inputFields(def *definition.Definition) graphql.InputObjectConfigFieldMap {
	cols := r.columns(def)
	rels := r.intro.Relations(def.Model)

	fields := graphql.InputObjectConfigFieldMap{
		"id": &graphql.InputObjectFieldConfig{Type: graphql.ID},
	}
	for _, name := range r.MutableFields(def) {
		if name == "id" {
			continue
		}
		typ := def.Mutable[name]
		if typ == nil {
			if rel, isRel := rels[name]; isRel {
				typ = r.relationInput(rel)
			} else if kind, ok := cols[name]; ok && kind != introspect.KindUnknown {
				typ = ScalarFor(kind)
			} else {
				typ = scalar.JSON
			}
		}
		if typ == nil {
			continue
		}
		fields[name] = &graphql.InputObjectFieldConfig{Type: typ}
	}
	return fields
}

// relationInput nests the related input type. Morph-to relations take JSON
// because their __typename discriminator is not a legal input field name.
func (r *Resolver) relationInput(rel orm.Relation) graphql.Input {
	if rel.Kind == orm.MorphTo {
		return scalar.JSON
	}
	targets := r.targets(rel)
	if len(targets) == 0 {
		return nil
	}
	in := r.ResolveInputType(targets[0])
	if rel.Kind.Many() {
		return graphql.NewList(in)
	}
	return in
}

// managedColumn reports columns the data layer maintains itself
func managedColumn(m *orm.Model, name string) bool {
	if name == m.Key() {
		return true
	}
	if m.Timestamps && (name == orm.CreatedAt || name == orm.UpdatedAt) {
		return true
	}
	return m.SoftDeletes && name == orm.DeletedAt
}
