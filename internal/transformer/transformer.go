// Package transformer turns definitions into root query and mutation fields.
//
// Each enabled operation of a definition becomes one field:
//
//	list     users(after, before, skip, take, order_by, filter, trashed, only_trashed)
//	view     user(id)
//	store    user(id, with)                  on Mutation
//	batch    users(objects: [{id, with}])    on Mutation
//	drop     deleteUser(id)                  on Mutation
//	restore  restoreUser(id)                 on Mutation
package transformer

import (
	"sort"
	"sync"

	"github.com/go-openapi/inflect"
	"github.com/graphql-go/graphql"
	"github.com/sirupsen/logrus"

	"github.com/devplatform/modelgraph/internal/definition"
	"github.com/devplatform/modelgraph/internal/filter"
	"github.com/devplatform/modelgraph/internal/introspect"
	"github.com/devplatform/modelgraph/internal/orm"
	"github.com/devplatform/modelgraph/internal/types"
	"github.com/devplatform/modelgraph/internal/validation"
)

// Transformer converts a definition into one root field
type Transformer interface {
	Operation() definition.Operation
	Mutation() bool
	Name(def *definition.Definition) string
	Type(def *definition.Definition) graphql.Output
	Arguments(def *definition.Definition) graphql.FieldConfigArgument
	Resolve(def *definition.Definition) graphql.FieldResolveFn
}

// Engine holds what every transformer needs to resolve
type Engine struct {
	db        *orm.DB
	defs      *definition.Registry
	types     *types.Resolver
	intro     *introspect.Introspector
	grammar   filter.Grammar
	validator *validation.Validator
	logger    *logrus.Logger

	mu    sync.Mutex
	items map[string]*graphql.InputObject
}

// New creates a transformer engine
func New(db *orm.DB, defs *definition.Registry, resolver *types.Resolver, intro *introspect.Introspector, grammar filter.Grammar, validator *validation.Validator, logger *logrus.Logger) *Engine {
	return &Engine{
		db:        db,
		defs:      defs,
		types:     resolver,
		intro:     intro,
		grammar:   grammar,
		validator: validator,
		logger:    logger,
		items:     make(map[string]*graphql.InputObject),
	}
}

// Transformers returns every transformer in operation order
func (e *Engine) Transformers() []Transformer {
	return []Transformer{
		&List{e}, &View{e}, &Store{e}, &Batch{e}, &Drop{e}, &Restore{e},
	}
}

// Fields returns the query and mutation fields of a definition's enabled
// operations, each resolver passed through wrap when it is not nil
func (e *Engine) Fields(def *definition.Definition, wrap func(def *definition.Definition, op definition.Operation, fn graphql.FieldResolveFn) graphql.FieldResolveFn) (query, mutation graphql.Fields) {
	query, mutation = graphql.Fields{}, graphql.Fields{}
	enabled := def.Enabled()

	for _, t := range e.Transformers() {
		if !enabled.Has(t.Operation()) {
			continue
		}
		resolve := t.Resolve(def)
		if wrap != nil {
			resolve = wrap(def, t.Operation(), resolve)
		}
		field := &graphql.Field{
			Type:        t.Type(def),
			Args:        t.Arguments(def),
			Description: def.Description,
			Resolve:     resolve,
		}
		if t.Mutation() {
			mutation[t.Name(def)] = field
		} else {
			query[t.Name(def)] = field
		}
	}
	return query, mutation
}

// batchItem returns the {Name}BatchItem input type of a definition
func (e *Engine) batchItem(def *definition.Definition) *graphql.InputObject {
	e.mu.Lock()
	defer e.mu.Unlock()

	if in, ok := e.items[def.Name]; ok {
		return in
	}
	in := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: def.Name + "BatchItem",
		Fields: graphql.InputObjectConfigFieldMap{
			"id":   &graphql.InputObjectFieldConfig{Type: graphql.ID},
			"with": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(e.types.ResolveInputType(def))},
		},
	})
	e.items[def.Name] = in
	return in
}

func singularName(def *definition.Definition) string {
	return inflect.CamelizeDownFirst(def.Name)
}

func pluralName(def *definition.Definition) string {
	return inflect.CamelizeDownFirst(inflect.Pluralize(def.Name))
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
