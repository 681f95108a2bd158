// Package introspect discovers the columns and relations of models and maps
// storage types onto GraphQL scalar kinds.
package introspect

import (
	"context"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/devplatform/modelgraph/internal/orm"
)

// Kind is the GraphQL scalar a column maps to
type Kind string

const (
	KindUnknown   Kind = ""
	KindID        Kind = "ID"
	KindInt       Kind = "Int"
	KindFloat     Kind = "Float"
	KindBoolean   Kind = "Boolean"
	KindString    Kind = "String"
	KindTimestamp Kind = "Timestamp"
	KindJSON      Kind = "JSON"
)

var relationName = regexp.MustCompile(`^[a-z][A-Za-z0-9_]*$`)

var storageKinds = map[string]Kind{
	"int": KindInt, "integer": KindInt, "tinyint": KindInt, "smallint": KindInt,
	"mediumint": KindInt, "bigint": KindInt, "int2": KindInt, "int4": KindInt,
	"int8": KindInt, "serial": KindInt, "bigserial": KindInt, "smallserial": KindInt,

	"real": KindFloat, "float": KindFloat, "float4": KindFloat, "float8": KindFloat,
	"double": KindFloat, "double precision": KindFloat, "decimal": KindFloat,
	"numeric": KindFloat, "money": KindFloat,

	"date": KindTimestamp, "datetime": KindTimestamp, "time": KindTimestamp,
	"timestamp": KindTimestamp, "timestamptz": KindTimestamp,
	"timestamp without time zone": KindTimestamp, "timestamp with time zone": KindTimestamp,
	"time without time zone": KindTimestamp, "time with time zone": KindTimestamp,

	"bool": KindBoolean, "boolean": KindBoolean,

	"json": KindJSON, "jsonb": KindJSON,
}

// KindOf maps a database storage type onto a scalar kind
func KindOf(storageType string) Kind {
	t := strings.ToLower(strings.TrimSpace(storageType))
	if i := strings.Index(t, "("); i >= 0 {
		// mysql reports booleans as tinyint(1)
		if t == "tinyint(1)" {
			return KindBoolean
		}
		t = strings.TrimSpace(t[:i])
	}
	t = strings.TrimSpace(strings.TrimSuffix(t, "unsigned"))
	if k, ok := storageKinds[t]; ok {
		return k
	}
	return KindString
}

// KindOfCast maps a model cast onto a scalar kind
func KindOfCast(c orm.Cast) Kind {
	switch {
	case c == orm.CastBoolean:
		return KindBoolean
	case c == orm.CastInteger:
		return KindInt
	case c == orm.CastFloat:
		return KindFloat
	case c == orm.CastString:
		return KindString
	case c.IsJSON():
		return KindJSON
	case c.IsTime():
		return KindTimestamp
	}
	return KindString
}

// Introspector reads model metadata through a shared cache
type Introspector struct {
	db     *orm.DB
	cache  *Cache
	store  Store
	logger *logrus.Logger
}

// New creates an introspector
func New(db *orm.DB, cache *Cache, logger *logrus.Logger) *Introspector {
	if cache == nil {
		cache = NewCache()
	}
	return &Introspector{db: db, cache: cache, logger: logger}
}

// WithStore reads persisted columns through a shared store before asking
// the database. Store failures are logged and fall back to the database.
func (i *Introspector) WithStore(store Store) *Introspector {
	i.store = store
	return i
}

// Models returns the model registry
func (i *Introspector) Models() *orm.Registry {
	return i.db.Models()
}

// Relations returns the usable relations of a model keyed by field name.
// Declarations with invalid names or unknown targets are skipped.
func (i *Introspector) Relations(m *orm.Model) map[string]orm.Relation {
	v, _ := i.cache.Get("relations:"+m.Table, func() (interface{}, error) {
		return i.relations(m), nil
	})
	return v.(map[string]orm.Relation)
}

func (i *Introspector) relations(m *orm.Model) map[string]orm.Relation {
	models := i.db.Models()
	out := make(map[string]orm.Relation, len(m.Relations))

	for _, rel := range m.Relations {
		log := i.logger.WithFields(logrus.Fields{
			"model":    m.Name,
			"relation": rel.Name,
		})

		if !relationName.MatchString(rel.Name) {
			log.Debug("Skipping relation with invalid name")
			continue
		}
		if !rel.Kind.Valid() {
			log.Debug("Skipping relation of unknown kind")
			continue
		}

		if rel.Kind == orm.MorphTo {
			var types []string
			for _, t := range rel.MorphTypes {
				if _, ok := models.Model(t); ok {
					types = append(types, t)
				} else {
					log.WithField("type", t).Debug("Dropping unregistered morph type")
				}
			}
			rel.MorphTypes = types
			out[rel.Name] = rel
			continue
		}

		if _, ok := models.Model(rel.Related); !ok {
			log.WithField("related", rel.Related).Debug("Skipping relation to unregistered model")
			continue
		}
		if rel.Kind == orm.HasManyThrough {
			if _, ok := models.Model(rel.Through); !ok {
				log.WithField("through", rel.Through).Debug("Skipping relation through unregistered model")
				continue
			}
		}
		out[rel.Name] = rel
	}
	return out
}

// Columns returns the exposed columns of a model and their scalar kinds.
// Relations and appended attributes are included with KindUnknown.
func (i *Introspector) Columns(ctx context.Context, m *orm.Model) (map[string]Kind, error) {
	v, err := i.cache.Get("columns:"+m.Table, func() (interface{}, error) {
		return i.columns(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]Kind), nil
}

func (i *Introspector) columns(ctx context.Context, m *orm.Model) (map[string]Kind, error) {
	infos, err := i.storedColumns(ctx, m.Table)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Kind, len(infos))
	for _, col := range infos {
		if m.IsHidden(col.Name) {
			continue
		}
		kind := KindOf(col.Type)
		if c, ok := m.CastOf(col.Name); ok {
			kind = KindOfCast(c)
		}
		if col.Name == m.Key() {
			kind = KindID
		}
		out[col.Name] = kind
	}

	for name := range m.Appends {
		if !m.IsHidden(name) {
			out[name] = KindUnknown
		}
	}
	for name := range i.Relations(m) {
		out[name] = KindUnknown
	}

	i.logger.WithFields(logrus.Fields{
		"model":   m.Name,
		"columns": len(out),
	}).Debug("Introspected model columns")
	return out, nil
}

func (i *Introspector) storedColumns(ctx context.Context, table string) ([]orm.ColumnInfo, error) {
	if i.store == nil {
		return i.db.Use(ctx).Columns(ctx, table)
	}

	log := i.logger.WithField("table", table)
	infos, ok, err := i.store.Load(ctx, table)
	if err != nil {
		log.WithError(err).Warn("Column store unavailable, reading catalog")
	}
	if ok {
		return infos, nil
	}

	infos, err = i.db.Use(ctx).Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	if err := i.store.Save(ctx, table, infos); err != nil {
		log.WithError(err).Warn("Failed to share introspected columns")
	}
	return infos, nil
}
