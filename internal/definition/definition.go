// Package definition binds models to their GraphQL representation
package definition

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/graphql-go/graphql"

	"github.com/devplatform/modelgraph/internal/filter"
	"github.com/devplatform/modelgraph/internal/orm"
)

var (
	// ErrMissingModel is returned when a definition has no source model
	ErrMissingModel = errors.New("definition has no model")
	// ErrDuplicate is returned when a definition name is registered twice
	ErrDuplicate = errors.New("definition already registered")
)

// Operation is a set of generated root fields
type Operation uint8

const (
	OpList Operation = 1 << iota
	OpView
	OpStore
	OpBatch
	OpDrop
	OpRestore
)

// defaultOperations are enabled when a definition leaves Operations empty
const defaultOperations = OpList | OpView | OpStore | OpBatch | OpDrop

var operationNames = []struct {
	op   Operation
	name string
}{
	{OpList, "list"},
	{OpView, "view"},
	{OpStore, "store"},
	{OpBatch, "batch"},
	{OpDrop, "drop"},
	{OpRestore, "restore"},
}

// Has reports whether every operation in o is set
func (o Operation) Has(op Operation) bool {
	return o&op == op
}

// String returns the operation names joined with |
func (o Operation) String() string {
	s := ""
	for _, n := range operationNames {
		if o.Has(n.op) {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	return s
}

// Field is a fetchable field with an explicit type and optional resolver
type Field struct {
	Type        graphql.Output
	Description string
	Args        graphql.FieldConfigArgument
	Resolve     graphql.FieldResolveFn
}

// Definition describes how one model is exposed over GraphQL
type Definition struct {
	Name        string
	Description string
	Model       *orm.Model

	// Fetchable overrides output fields; nil exposes every introspected column.
	// A field with a nil Type keeps the introspected type.
	Fetchable map[string]Field

	// Mutable lists input fields; a nil type is inferred from the column or relation.
	// A nil map accepts every fillable column and every relation.
	Mutable map[string]graphql.Input

	Filterable map[string]filter.Strategy

	// Rules are validator tags keyed by input field
	Rules map[string]string

	Operations Operation

	// FieldResolvers resolve fields by name when Fetchable gives none
	FieldResolvers map[string]graphql.FieldResolveFn
}

// Enabled returns the effective operation set
func (d *Definition) Enabled() Operation {
	ops := d.Operations
	if ops == 0 {
		ops = defaultOperations
		if d.Model != nil && d.Model.SoftDeletes {
			ops |= OpRestore
		}
	}
	if d.Model == nil || !d.Model.SoftDeletes {
		ops &^= OpRestore
	}
	return ops
}

// Restoreable reports whether records of the definition can be soft deleted
func (d *Definition) Restoreable() bool {
	return d.Model != nil && d.Model.SoftDeletes
}

// Registry holds definitions by name and by model
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Definition
	byModel map[string]*Definition
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]*Definition),
		byModel: make(map[string]*Definition),
	}
}

// Register adds a definition. The name defaults to the model name.
func (r *Registry) Register(def *Definition) error {
	if def.Model == nil {
		return fmt.Errorf("%w: %s", ErrMissingModel, def.Name)
	}
	if def.Name == "" {
		def.Name = def.Model.Name
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, def.Name)
	}
	r.byName[def.Name] = def
	if _, exists := r.byModel[def.Model.Name]; !exists {
		r.byModel[def.Model.Name] = def
	}
	return nil
}

// Get returns a definition by name
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byName[name]
	return def, ok
}

// ForModel returns the definition of a model, creating an implicit one that
// exposes every column when the model was never registered explicitly
func (r *Registry) ForModel(m *orm.Model) *Definition {
	r.mu.RLock()
	def, ok := r.byModel[m.Name]
	r.mu.RUnlock()
	if ok {
		return def
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if def, ok := r.byModel[m.Name]; ok {
		return def
	}

	name := m.Name
	if _, taken := r.byName[name]; taken {
		name = m.Name + "Model"
	}
	def = &Definition{Name: name, Model: m}
	r.byName[name] = def
	r.byModel[m.Name] = def
	return def
}

// All returns every definition sorted by name
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Definition, 0, len(r.byName))
	for _, def := range r.byName {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
