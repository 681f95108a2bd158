// Package projection reads the requested selection of a GraphQL field and
// decides which relations to eager load for it.
package projection

import (
	"sort"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/devplatform/modelgraph/internal/orm"
)

// DefaultDepth bounds how deep selection trees are read
const DefaultDepth = 4

// Tree maps selected field names to their own selections
type Tree map[string]Tree

// Has reports whether the field is selected
func (t Tree) Has(name string) bool {
	_, ok := t[name]
	return ok
}

// Keys returns the selected field names in sorted order
func (t Tree) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromInfo builds the selection tree of the field being resolved
func FromInfo(info graphql.ResolveInfo, depth int) Tree {
	if depth <= 0 {
		depth = DefaultDepth
	}
	tree := Tree{}
	for _, field := range info.FieldASTs {
		if field.SelectionSet != nil {
			collect(tree, field.SelectionSet, info.Fragments, depth, map[string]bool{})
		}
	}
	return tree
}

// FromSelectionSet builds a tree from a parsed selection set
func FromSelectionSet(set *ast.SelectionSet, fragments map[string]ast.Definition, depth int) Tree {
	if depth <= 0 {
		depth = DefaultDepth
	}
	tree := Tree{}
	if set != nil {
		collect(tree, set, fragments, depth, map[string]bool{})
	}
	return tree
}

func collect(tree Tree, set *ast.SelectionSet, fragments map[string]ast.Definition, depth int, spreading map[string]bool) {
	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			name := s.Name.Value
			if name == "__typename" {
				continue
			}
			child, ok := tree[name]
			if !ok {
				child = Tree{}
				tree[name] = child
			}
			if s.SelectionSet != nil && depth > 1 {
				collect(child, s.SelectionSet, fragments, depth-1, map[string]bool{})
			}
		case *ast.InlineFragment:
			if s.SelectionSet != nil {
				collect(tree, s.SelectionSet, fragments, depth, spreading)
			}
		case *ast.FragmentSpread:
			name := s.Name.Value
			if spreading[name] {
				continue
			}
			frag, ok := fragments[name].(*ast.FragmentDefinition)
			if !ok || frag.SelectionSet == nil {
				continue
			}
			spreading[name] = true
			collect(tree, frag.SelectionSet, fragments, depth, spreading)
			delete(spreading, name)
		}
	}
}

// GuessWithRelations returns the top level selected fields that name a
// relation, sorted
func GuessWithRelations(relations map[string]orm.Relation, tree Tree) []string {
	var out []string
	for name := range tree {
		if _, ok := relations[name]; ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Planner expands selections into dotted eager load paths across models
type Planner struct {
	models    *orm.Registry
	relations func(*orm.Model) map[string]orm.Relation
}

// NewPlanner creates a planner reading relations through the given lookup
func NewPlanner(models *orm.Registry, relations func(*orm.Model) map[string]orm.Relation) *Planner {
	return &Planner{models: models, relations: relations}
}

// With returns the eager load paths for a selection over the model. Morph-to
// relations are loaded but not descended into, their target varies per row.
func (p *Planner) With(m *orm.Model, tree Tree) []string {
	var out []string
	rels := p.relations(m)
	for _, name := range GuessWithRelations(rels, tree) {
		out = append(out, name)

		rel := rels[name]
		if rel.Kind == orm.MorphTo {
			continue
		}
		related, ok := p.models.Model(rel.Related)
		if !ok {
			continue
		}
		for _, nested := range p.With(related, tree[name]) {
			out = append(out, name+"."+nested)
		}
	}
	return out
}
