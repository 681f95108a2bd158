package orm

import (
	"sort"
)

// Record is one row of a model together with its loaded relations
type Record struct {
	model     *Model
	attrs     map[string]interface{}
	relations map[string]interface{}
	exists    bool
}

// NewRecord creates an unsaved record of the model
func NewRecord(m *Model) *Record {
	return &Record{
		model:     m,
		attrs:     make(map[string]interface{}),
		relations: make(map[string]interface{}),
	}
}

// Model returns the record's model
func (r *Record) Model() *Model {
	return r.model
}

// Exists reports whether the record was loaded from or saved to the database
func (r *Record) Exists() bool {
	return r.exists
}

// Key returns the primary key value
func (r *Record) Key() interface{} {
	return r.attrs[r.model.Key()]
}

// Get returns an attribute, computing appended attributes on the fly
func (r *Record) Get(name string) interface{} {
	if fn, ok := r.model.Appends[name]; ok {
		return fn(r)
	}
	return r.attrs[name]
}

// Has reports whether the attribute is set
func (r *Record) Has(name string) bool {
	_, ok := r.attrs[name]
	return ok
}

// Set assigns an attribute
func (r *Record) Set(name string, value interface{}) {
	r.attrs[name] = value
}

// Fill mass-assigns attributes, skipping the primary key, relation names and
// columns the model does not allow to be filled
func (r *Record) Fill(values map[string]interface{}) *Record {
	for key, value := range values {
		if !r.model.IsFillable(key) {
			continue
		}
		if _, computed := r.model.Appends[key]; computed {
			continue
		}
		r.attrs[key] = castIn(r.model, key, value)
	}
	return r
}

// Attributes returns a copy of the stored attributes
func (r *Record) Attributes() map[string]interface{} {
	out := make(map[string]interface{}, len(r.attrs))
	for k, v := range r.attrs {
		out[k] = v
	}
	return out
}

// Keys returns the attribute names in sorted order
func (r *Record) Keys() []string {
	keys := make([]string, 0, len(r.attrs))
	for k := range r.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Trashed reports whether a soft-deleting record is deleted
func (r *Record) Trashed() bool {
	if !r.model.SoftDeletes {
		return false
	}
	return r.attrs[DeletedAt] != nil
}

// Relation returns a loaded relation: *Record (or nil) for single relations,
// []*Record for many relations
func (r *Record) Relation(name string) (interface{}, bool) {
	v, ok := r.relations[name]
	return v, ok
}

// SetRelation stores a loaded relation
func (r *Record) SetRelation(name string, value interface{}) {
	r.relations[name] = value
}

// Associate points a belongs-to relation at the related record
func (r *Record) Associate(rel Relation, related *Record) {
	if related == nil {
		r.attrs[rel.ForeignKey] = nil
		return
	}
	r.attrs[rel.ForeignKey] = related.Get(rel.OwnerKey)
	r.relations[rel.Name] = related
}

// AssociateMorph points a morph-to relation at the related record
func (r *Record) AssociateMorph(rel Relation, related *Record) {
	if related == nil {
		r.attrs[rel.ForeignKey] = nil
		r.attrs[rel.MorphTypeColumn()] = nil
		return
	}
	r.attrs[rel.ForeignKey] = related.Key()
	r.attrs[rel.MorphTypeColumn()] = related.model.Name
	r.relations[rel.Name] = related
}

// Clone returns a shallow copy of the record, attributes and relations included
func (r *Record) Clone() *Record {
	c := &Record{
		model:     r.model,
		attrs:     r.Attributes(),
		relations: make(map[string]interface{}, len(r.relations)),
		exists:    r.exists,
	}
	for k, v := range r.relations {
		c.relations[k] = v
	}
	return c
}

// hydrate builds a persisted record from a scanned row
func hydrate(m *Model, row map[string]interface{}) *Record {
	r := NewRecord(m)
	r.exists = true
	for col, value := range row {
		r.attrs[col] = castOut(m, col, value)
	}
	return r
}
