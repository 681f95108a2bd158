package orm

import (
	"sort"
	"strings"

	"github.com/go-openapi/inflect"
)

// RelationKind tags the shape of a relation between two models
type RelationKind int

const (
	BelongsTo RelationKind = iota + 1
	HasOne
	HasMany
	HasManyThrough
	BelongsToMany
	MorphToMany
	MorphTo
)

var relationKindNames = map[RelationKind]string{
	BelongsTo:      "belongs-to",
	HasOne:         "has-one",
	HasMany:        "has-many",
	HasManyThrough: "has-many-through",
	BelongsToMany:  "belongs-to-many",
	MorphToMany:    "morph-to-many",
	MorphTo:        "morph-to",
}

// String returns the kind tag
func (k RelationKind) String() string {
	if name, ok := relationKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether the kind is one of the known relation kinds
func (k RelationKind) Valid() bool {
	_, ok := relationKindNames[k]
	return ok
}

// Many reports whether the relation resolves to a list of records
func (k RelationKind) Many() bool {
	switch k {
	case HasMany, HasManyThrough, BelongsToMany, MorphToMany:
		return true
	}
	return false
}

// Relation describes one model-to-model relationship
//
// Key columns that are left empty are filled by naming convention when the
// owning model is registered:
//
//	BelongsTo       ForeignKey=<relation>_id on the owner, OwnerKey=id on the related model
//	HasOne/HasMany  ForeignKey=<owner>_id on the related model, OwnerKey=owner primary key
//	BelongsToMany   Pivot=<a>_<b> (alphabetical), PivotForeignKey=<owner>_id, PivotRelatedKey=<related>_id
//	MorphToMany     Pivot=<morph name plural>, PivotForeignKey=<morph>_id, PivotRelatedKey=<related>_id
//	MorphTo         ForeignKey=<morph>_id, type column <morph>_type
//	HasManyThrough  ThroughKey=<owner>_id on the through model, ForeignKey=<through>_id on the related model
type Relation struct {
	Name    string
	Kind    RelationKind
	Related string

	ForeignKey string
	OwnerKey   string

	Pivot           string
	PivotForeignKey string
	PivotRelatedKey string

	Through    string
	ThroughKey string

	MorphName  string
	MorphTypes []string
}

// MorphTypeColumn is the discriminator column of a polymorphic relation
func (r Relation) MorphTypeColumn() string {
	return r.MorphName + "_type"
}

func (r Relation) withDefaults(owner *Model) Relation {
	ownerSnake := snake(owner.Name)
	relatedSnake := snake(r.Related)

	switch r.Kind {
	case BelongsTo:
		if r.ForeignKey == "" {
			r.ForeignKey = snake(r.Name) + "_id"
		}
		if r.OwnerKey == "" {
			r.OwnerKey = "id"
		}
	case HasOne, HasMany:
		if r.ForeignKey == "" {
			r.ForeignKey = ownerSnake + "_id"
		}
		if r.OwnerKey == "" {
			r.OwnerKey = owner.Key()
		}
	case BelongsToMany:
		if r.Pivot == "" {
			names := []string{ownerSnake, relatedSnake}
			sort.Strings(names)
			r.Pivot = strings.Join(names, "_")
		}
		if r.PivotForeignKey == "" {
			r.PivotForeignKey = ownerSnake + "_id"
		}
		if r.PivotRelatedKey == "" {
			r.PivotRelatedKey = relatedSnake + "_id"
		}
		if r.OwnerKey == "" {
			r.OwnerKey = owner.Key()
		}
	case MorphToMany:
		if r.MorphName == "" {
			r.MorphName = ownerSnake + "able"
		}
		if r.Pivot == "" {
			r.Pivot = inflect.Pluralize(r.MorphName)
		}
		if r.PivotForeignKey == "" {
			r.PivotForeignKey = r.MorphName + "_id"
		}
		if r.PivotRelatedKey == "" {
			r.PivotRelatedKey = relatedSnake + "_id"
		}
		if r.OwnerKey == "" {
			r.OwnerKey = owner.Key()
		}
	case MorphTo:
		if r.MorphName == "" {
			r.MorphName = r.Name
		}
		if r.ForeignKey == "" {
			r.ForeignKey = r.MorphName + "_id"
		}
	case HasManyThrough:
		if r.ThroughKey == "" {
			r.ThroughKey = ownerSnake + "_id"
		}
		if r.ForeignKey == "" {
			r.ForeignKey = snake(r.Through) + "_id"
		}
		if r.OwnerKey == "" {
			r.OwnerKey = owner.Key()
		}
	}
	return r
}
