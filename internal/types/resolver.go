// Package types builds GraphQL object and input types from definitions.
//
// Types are built in two phases. Prepare walks the relation graph from every
// definition and registers an object shell per reachable definition, recording
// which relation edges may become fields. Field thunks are evaluated later,
// when the schema is assembled, against the complete shell registry.
package types

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-openapi/inflect"
	"github.com/graphql-go/graphql"
	"github.com/sirupsen/logrus"

	"github.com/devplatform/modelgraph/internal/definition"
	"github.com/devplatform/modelgraph/internal/filter"
	"github.com/devplatform/modelgraph/internal/introspect"
	"github.com/devplatform/modelgraph/internal/orm"
	"github.com/devplatform/modelgraph/internal/projection"
	"github.com/devplatform/modelgraph/internal/scalar"
)

// Config bounds type construction and query nesting
type Config struct {
	// TypeDepth bounds the relation walk of phase one
	TypeDepth int
	// SelectionDepth bounds how deep requested selections are read
	SelectionDepth int
	// MaxQueryDepth rejects relation fields nested deeper than this, zero disables
	MaxQueryDepth int
}

// DefaultTypeDepth is used when Config.TypeDepth is not set
const DefaultTypeDepth = 8

// Resolver builds and caches the GraphQL types of definitions
type Resolver struct {
	db      *orm.DB
	defs    *definition.Registry
	intro   *introspect.Introspector
	planner *projection.Planner
	grammar filter.Grammar
	cfg     Config
	logger  *logrus.Logger

	mu      sync.Mutex
	objects map[string]*graphql.Object
	inputs  map[string]*graphql.InputObject
	unions  map[string]*graphql.Union
	edges   map[string]map[string]bool
	walked  map[string]bool

	prepared bool
}

// New creates a type resolver
func New(db *orm.DB, defs *definition.Registry, intro *introspect.Introspector, grammar filter.Grammar, cfg Config, logger *logrus.Logger) *Resolver {
	if cfg.TypeDepth <= 0 {
		cfg.TypeDepth = DefaultTypeDepth
	}
	if cfg.SelectionDepth <= 0 {
		cfg.SelectionDepth = projection.DefaultDepth
	}
	return &Resolver{
		db:      db,
		defs:    defs,
		intro:   intro,
		planner: projection.NewPlanner(db.Models(), intro.Relations),
		grammar: grammar,
		cfg:     cfg,
		logger:  logger,
		objects: make(map[string]*graphql.Object),
		inputs:  make(map[string]*graphql.InputObject),
		unions:  make(map[string]*graphql.Union),
		edges:   make(map[string]map[string]bool),
		walked:  make(map[string]bool),
	}
}

// Config returns the effective configuration
func (r *Resolver) Config() Config {
	return r.cfg
}

// Planner returns the eager load planner
func (r *Resolver) Planner() *projection.Planner {
	return r.planner
}

// Prepare runs phase one for every registered definition
func (r *Resolver) Prepare(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, def := range r.defs.All() {
		if err := r.walk(ctx, def, 0); err != nil {
			return err
		}
	}
	r.prepared = true
	return nil
}

// walk registers the shell of def and expands its relations once, at the
// first visit within the type depth. A definition first reached at the depth
// bound keeps its shell but gets no relation fields.
func (r *Resolver) walk(ctx context.Context, def *definition.Definition, depth int) error {
	r.shell(def)
	if r.walked[def.Name] || depth >= r.cfg.TypeDepth {
		return nil
	}
	if _, err := r.intro.Columns(ctx, def.Model); err != nil {
		return fmt.Errorf("failed to introspect %s: %w", def.Name, err)
	}
	r.walked[def.Name] = true

	rels := r.intro.Relations(def.Model)
	edges := make(map[string]bool, len(rels))
	r.edges[def.Name] = edges
	for _, name := range sortedKeys(rels) {
		targets := r.targets(rels[name])
		if len(targets) == 0 {
			continue
		}
		edges[name] = true
		for _, target := range targets {
			if err := r.walk(ctx, target, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// targets returns the definitions a relation points at
func (r *Resolver) targets(rel orm.Relation) []*definition.Definition {
	models := r.db.Models()
	names := []string{rel.Related}
	if rel.Kind == orm.MorphTo {
		names = rel.MorphTypes
	}

	var out []*definition.Definition
	for _, name := range names {
		if m, ok := models.Model(name); ok {
			out = append(out, r.defs.ForModel(m))
		}
	}
	return out
}

// shell returns the object type of def, creating it with a lazy field thunk.
// The caller holds r.mu.
func (r *Resolver) shell(def *definition.Definition) *graphql.Object {
	if obj, ok := r.objects[def.Name]; ok {
		return obj
	}
	obj := graphql.NewObject(graphql.ObjectConfig{
		Name:        def.Name,
		Description: def.Description,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return r.fields(def)
		}),
	})
	r.objects[def.Name] = obj
	return obj
}

// ResolveType returns the cached object type of a definition
func (r *Resolver) ResolveType(def *definition.Definition) *graphql.Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shell(def)
}

// allowed returns the relation fields phase one admitted for def. Without a
// prior Prepare the definition is walked on demand.
func (r *Resolver) allowed(def *definition.Definition) map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.prepared && !r.walked[def.Name] {
		if err := r.walk(context.Background(), def, 0); err != nil {
			r.logger.WithError(err).WithField("definition", def.Name).Warn("Failed to walk definition relations")
		}
	}
	out := make(map[string]bool, len(r.edges[def.Name]))
	for name := range r.edges[def.Name] {
		out[name] = true
	}
	return out
}

// union returns the union over the candidate types of a morph-to relation
func (r *Resolver) union(def *definition.Definition, rel orm.Relation) *graphql.Union {
	name := def.Name + inflect.Camelize(rel.Name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.unions[name]; ok {
		return u
	}

	var members []*graphql.Object
	for _, target := range r.targets(rel) {
		members = append(members, r.shell(target))
	}
	if len(members) == 0 {
		return nil
	}

	u := graphql.NewUnion(graphql.UnionConfig{
		Name:  name,
		Types: members,
		ResolveType: func(p graphql.ResolveTypeParams) *graphql.Object {
			rec, ok := p.Value.(*orm.Record)
			if !ok {
				return nil
			}
			return r.ResolveType(r.defs.ForModel(rec.Model()))
		},
	})
	r.unions[name] = u
	return u
}

// columns returns the cached introspected columns of def
func (r *Resolver) columns(def *definition.Definition) map[string]introspect.Kind {
	cols, err := r.intro.Columns(context.Background(), def.Model)
	if err != nil {
		r.logger.WithError(err).WithField("definition", def.Name).Error("Failed to introspect columns")
		return map[string]introspect.Kind{}
	}
	return cols
}

// ScalarFor returns the GraphQL scalar of a column kind
func ScalarFor(kind introspect.Kind) *graphql.Scalar {
	switch kind {
	case introspect.KindID:
		return graphql.ID
	case introspect.KindInt:
		return graphql.Int
	case introspect.KindFloat:
		return graphql.Float
	case introspect.KindBoolean:
		return graphql.Boolean
	case introspect.KindTimestamp:
		return scalar.Timestamp
	case introspect.KindJSON:
		return scalar.JSON
	}
	return graphql.String
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
