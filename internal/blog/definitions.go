package blog

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/devplatform/modelgraph/internal/definition"
	"github.com/devplatform/modelgraph/internal/filter"
	"github.com/devplatform/modelgraph/internal/orm"
)

// Definitions returns the explicit definitions of the blog models. Models
// without one are exposed through implicit definitions.
func Definitions(models *orm.Registry) ([]*definition.Definition, error) {
	defs := []*definition.Definition{
		{
			Name:        "User",
			Description: "A registered author",
			Filterable: map[string]filter.Strategy{
				"name":     filter.Column("name"),
				"email":    filter.Column("email"),
				"is_admin": filter.Column("is_admin"),
				"country":  filter.Func(countryCode),
			},
			Rules: map[string]string{
				"name":  "required,min=2,max=255",
				"email": "required,email",
			},
		},
		{
			Name:        "Post",
			Description: "A published article",
			Filterable: map[string]filter.Strategy{
				"title":        filter.Column("title"),
				"views":        filter.Column("views"),
				"published_at": filter.Column("published_at"),
				"user_id":      filter.Column("user_id"),
				"search":       filter.Func(search("title", "body")),
			},
			Rules: map[string]string{
				"title": "required,max=255",
			},
		},
		{
			Name: "Comment",
			Filterable: map[string]filter.Strategy{
				"post_id": filter.Column("post_id"),
				"body":    filter.Column("body"),
			},
			Rules: map[string]string{
				"body": "required",
			},
		},
		{
			Name: "Country",
			Filterable: map[string]filter.Strategy{
				"code": filter.Column("code"),
				"name": filter.Column("name"),
			},
			Rules: map[string]string{
				"code": "required,len=2",
			},
		},
		{
			Name:       "Tag",
			Filterable: map[string]filter.Strategy{"name": filter.Column("name")},
			Rules:      map[string]string{"name": "required,max=64"},
		},
	}

	for _, def := range defs {
		m, ok := models.Model(def.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", definition.ErrMissingModel, def.Name)
		}
		def.Model = m
	}
	return defs, nil
}

// countryCode keeps users whose country has the given code
func countryCode(g filter.Grammar, key string, value interface{}) (sq.Sqlizer, error) {
	code, ok := value.(string)
	if !ok {
		return nil, &filter.Error{Field: key, Reason: "must be a country code"}
	}
	sub, args, err := sq.Select("id").From("countries").Where(g.Compare("code", "=", code)).ToSql()
	if err != nil {
		return nil, err
	}
	return sq.Expr("country_id IN ("+sub+")", args...), nil
}

// search matches a pattern against any of the columns
func search(columns ...string) filter.Func {
	return func(g filter.Grammar, key string, value interface{}) (sq.Sqlizer, error) {
		term, ok := value.(string)
		if !ok || term == "" {
			return nil, &filter.Error{Field: key, Reason: "must be a non-empty string"}
		}
		op, operand := g.Parse("%" + term + "%")
		or := make(sq.Or, 0, len(columns))
		for _, column := range columns {
			or = append(or, g.Compare(column, op, operand))
		}
		return or, nil
	}
}
