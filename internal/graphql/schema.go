// Package graphql assembles named schemas from definitions and custom fields
// and executes requests against them.
package graphql

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/sirupsen/logrus"

	"github.com/devplatform/modelgraph/internal/config"
	"github.com/devplatform/modelgraph/internal/definition"
	"github.com/devplatform/modelgraph/internal/prometheus"
	"github.com/devplatform/modelgraph/internal/transformer"
	"github.com/devplatform/modelgraph/internal/types"
)

var (
	// ErrUnknownSchema is returned for a schema name that was never registered
	ErrUnknownSchema = errors.New("unknown schema")
	// ErrUnknownEntry is returned when a schema lists a name that is neither a
	// definition nor a custom field
	ErrUnknownEntry = errors.New("unknown schema entry")
	// ErrDuplicateField is returned when two entries produce the same root field
	ErrDuplicateField = errors.New("duplicate root field")
)

// Attributes name and describe a custom root field
type Attributes struct {
	Name        string
	Description string
}

// Field is a hand-written root field
type Field interface {
	RelatedType(m *Manager) (graphql.Output, error)
	Arguments(m *Manager) graphql.FieldConfigArgument
	Attributes() Attributes
}

// Resolver is implemented by custom fields that resolve themselves. Fields
// without it resolve through the default property lookup.
type Resolver interface {
	Resolve(p graphql.ResolveParams) (interface{}, error)
}

// Manager holds registered definitions, types, custom fields and schemas
type Manager struct {
	defs     *definition.Registry
	types    *types.Resolver
	engine   *transformer.Engine
	database prometheus.Database
	logger   *logrus.Logger

	mu       sync.RWMutex
	named    map[string]graphql.Type
	fields   map[string]Field
	mutating map[string]bool
	configs  map[string]config.SchemaConfig

	buildMu sync.Mutex
	schemas map[string]*graphql.Schema
}

// NewManager creates a manager with the built-in health and stats fields
func NewManager(defs *definition.Registry, resolver *types.Resolver, engine *transformer.Engine, database prometheus.Database, logger *logrus.Logger) *Manager {
	m := &Manager{
		defs:     defs,
		types:    resolver,
		engine:   engine,
		database: database,
		logger:   logger,
		named:    make(map[string]graphql.Type),
		fields:   make(map[string]Field),
		mutating: make(map[string]bool),
		configs:  make(map[string]config.SchemaConfig),
		schemas:  make(map[string]*graphql.Schema),
	}
	m.RegisterField(&healthField{m: m}, false)
	m.RegisterField(&statsField{m: m}, false)
	return m
}

// RegisterDefinition adds a definition. Schemas built earlier are not
// rebuilt.
func (m *Manager) RegisterDefinition(def *definition.Definition) error {
	if err := m.defs.Register(def); err != nil {
		return fmt.Errorf("failed to register definition: %w", err)
	}
	m.logger.WithFields(logrus.Fields{
		"definition": def.Name,
		"operations": def.Enabled().String(),
	}).Debug("Registered definition")
	return nil
}

// RegisterType adds a named type that custom fields can look up and that is
// included in every schema built afterwards
func (m *Manager) RegisterType(name string, typ graphql.Type) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.named[name] = typ
}

// Type returns a registered type, or the object type of a definition
func (m *Manager) Type(name string) (graphql.Type, bool) {
	m.mu.RLock()
	typ, ok := m.named[name]
	m.mu.RUnlock()
	if ok {
		return typ, true
	}
	if def, ok := m.defs.Get(name); ok {
		return m.types.ResolveType(def), true
	}
	return nil, false
}

// RegisterField adds a custom root field. Mutation fields may only be
// listed under a schema's mutation entries.
func (m *Manager) RegisterField(field Field, mutation bool) {
	name := field.Attributes().Name
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields[name] = field
	m.mutating[name] = mutation
}

// RegisterSchema adds or replaces a named schema configuration
func (m *Manager) RegisterSchema(name string, cfg config.SchemaConfig) {
	m.mu.Lock()
	m.configs[name] = cfg
	m.mu.Unlock()

	m.buildMu.Lock()
	delete(m.schemas, name)
	m.buildMu.Unlock()
}

// SchemaNames returns the registered schema names, sorted
func (m *Manager) SchemaNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.configs))
	for name := range m.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema returns the named schema, building it on first use
func (m *Manager) Schema(ctx context.Context, name string) (*graphql.Schema, error) {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	if s, ok := m.schemas[name]; ok {
		return s, nil
	}
	m.mu.RLock()
	cfg, ok := m.configs[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, name)
	}

	start := time.Now()
	s, err := m.build(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build schema %q: %w", name, err)
	}
	prometheus.ObserveSchemaBuild(name, start)
	m.logger.WithFields(logrus.Fields{
		"schema":   name,
		"duration": time.Since(start).String(),
	}).Info("Built GraphQL schema")

	m.schemas[name] = s
	return s, nil
}

// build assembles the root types of one schema. The caller holds m.buildMu.
func (m *Manager) build(ctx context.Context, cfg config.SchemaConfig) (*graphql.Schema, error) {
	if err := m.types.Prepare(ctx); err != nil {
		return nil, err
	}

	query, err := m.rootFields(cfg.Query, false)
	if err != nil {
		return nil, err
	}
	mutation, err := m.rootFields(cfg.Mutation, true)
	if err != nil {
		return nil, err
	}

	schemaConfig := graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{Name: "Query", Fields: query}),
	}
	if len(mutation) > 0 {
		schemaConfig.Mutation = graphql.NewObject(graphql.ObjectConfig{Name: "Mutation", Fields: mutation})
	}
	m.mu.RLock()
	for _, name := range sortedKeys(m.named) {
		schemaConfig.Types = append(schemaConfig.Types, m.named[name])
	}
	m.mu.RUnlock()

	schema, err := graphql.NewSchema(schemaConfig)
	if err != nil {
		return nil, err
	}
	return &schema, nil
}

// rootFields expands schema entries into the fields of one root type
func (m *Manager) rootFields(entries []string, mutation bool) (graphql.Fields, error) {
	out := graphql.Fields{}
	add := func(name string, field *graphql.Field) error {
		if _, exists := out[name]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateField, name)
		}
		out[name] = field
		return nil
	}
	addDefinition := func(def *definition.Definition) error {
		query, mut := m.engine.Fields(def, prometheus.Instrument)
		fields := query
		if mutation {
			fields = mut
		}
		for _, name := range sortedKeys(fields) {
			if err := add(name, fields[name]); err != nil {
				return err
			}
		}
		return nil
	}

	for _, entry := range entries {
		if entry == config.Wildcard {
			for _, def := range m.defs.All() {
				if err := addDefinition(def); err != nil {
					return nil, err
				}
			}
			continue
		}
		if def, ok := m.defs.Get(entry); ok {
			if err := addDefinition(def); err != nil {
				return nil, err
			}
			continue
		}
		custom, ok := m.customFor(entry, mutation)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEntry, entry)
		}
		field, err := m.customField(custom)
		if err != nil {
			return nil, err
		}
		if err := add(entry, field); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// customFor returns the custom field registered under name for the root type
func (m *Manager) customFor(name string, mutation bool) (Field, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.fields[name]
	if !ok || m.mutating[name] != mutation {
		return nil, false
	}
	return f, true
}

// customField turns the custom field contract into a graphql field
func (m *Manager) customField(f Field) (*graphql.Field, error) {
	attrs := f.Attributes()
	typ, err := f.RelatedType(m)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve type of %s: %w", attrs.Name, err)
	}
	field := &graphql.Field{
		Name:        attrs.Name,
		Type:        typ,
		Args:        f.Arguments(m),
		Description: attrs.Description,
	}
	if r, ok := f.(Resolver); ok {
		field.Resolve = r.Resolve
	}
	return field, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
