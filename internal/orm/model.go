package orm

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-openapi/inflect"
)

// Conventional column names
const (
	CreatedAt = "created_at"
	UpdatedAt = "updated_at"
	DeletedAt = "deleted_at"
)

// Cast names an attribute conversion applied when records are read and written
type Cast string

const (
	CastBoolean    Cast = "boolean"
	CastInteger    Cast = "integer"
	CastFloat      Cast = "float"
	CastString     Cast = "string"
	CastArray      Cast = "array"
	CastJSON       Cast = "json"
	CastObject     Cast = "object"
	CastCollection Cast = "collection"
	CastDate       Cast = "date"
	CastDateTime   Cast = "datetime"
	CastTimestamp  Cast = "timestamp"
)

// IsJSON reports whether the cast stores structured data as JSON text
func (c Cast) IsJSON() bool {
	switch c {
	case CastArray, CastJSON, CastObject, CastCollection:
		return true
	}
	return false
}

// IsTime reports whether the cast is a date or time cast
func (c Cast) IsTime() bool {
	switch c {
	case CastDate, CastDateTime, CastTimestamp:
		return true
	}
	return false
}

// Model describes one table and how its rows map to records
type Model struct {
	Name        string
	Table       string
	PrimaryKey  string
	Timestamps  bool
	SoftDeletes bool

	// Hidden columns are never exposed through introspection
	Hidden []string

	// Fillable restricts mass assignment; empty means every column but the key
	Fillable []string

	Casts map[string]Cast
	Dates []string

	// Appends are computed attributes that have no storage column
	Appends map[string]func(*Record) interface{}

	Relations []Relation
}

// Key returns the primary key column
func (m *Model) Key() string {
	if m.PrimaryKey == "" {
		return "id"
	}
	return m.PrimaryKey
}

// Column qualifies a column with the model table
func (m *Model) Column(name string) string {
	return m.Table + "." + name
}

// Relation looks up a relation by name
func (m *Model) Relation(name string) (Relation, bool) {
	for _, rel := range m.Relations {
		if rel.Name == name {
			return rel, true
		}
	}
	return Relation{}, false
}

// IsHidden reports whether a column is hidden
func (m *Model) IsHidden(column string) bool {
	return contains(m.Hidden, column)
}

// IsFillable reports whether a column accepts mass assignment
func (m *Model) IsFillable(column string) bool {
	if column == m.Key() {
		return false
	}
	if _, ok := m.Relation(column); ok {
		return false
	}
	if len(m.Fillable) == 0 {
		return true
	}
	return contains(m.Fillable, column)
}

// CastOf returns the cast of a column, treating timestamp columns as datetimes
func (m *Model) CastOf(column string) (Cast, bool) {
	if c, ok := m.Casts[column]; ok {
		return c, true
	}
	if contains(m.Dates, column) {
		return CastDateTime, true
	}
	if m.Timestamps && (column == CreatedAt || column == UpdatedAt) {
		return CastDateTime, true
	}
	if m.SoftDeletes && column == DeletedAt {
		return CastDateTime, true
	}
	return "", false
}

// Registry holds every model known to a DB
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Model
}

// NewRegistry creates a registry and registers the given models
func NewRegistry(models ...*Model) (*Registry, error) {
	r := &Registry{models: make(map[string]*Model)}
	for _, m := range models {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a model and fills conventional relation keys
func (r *Registry) Register(m *Model) error {
	if m == nil || m.Name == "" {
		return fmt.Errorf("model must have a name")
	}
	if m.Table == "" {
		m.Table = inflect.Pluralize(inflect.Underscore(m.Name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[m.Name]; exists {
		return fmt.Errorf("model %s already registered", m.Name)
	}
	for i := range m.Relations {
		m.Relations[i] = m.Relations[i].withDefaults(m)
	}
	r.models[m.Name] = m
	return nil
}

// Model returns a registered model by name
func (r *Registry) Model(name string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// Models returns all models sorted by name
func (r *Registry) Models() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func snake(name string) string {
	return strings.ToLower(inflect.Underscore(name))
}
