// Package blog is the sample data model served by the default schema. It
// covers every relation kind the engine supports.
package blog

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/devplatform/modelgraph/internal/orm"
)

//go:embed schema.sql
var schemaSQL string

// Models returns fresh model descriptors for the blog tables
func Models() []*orm.Model {
	return []*orm.Model{
		{
			Name: "Country",
			Relations: []orm.Relation{
				{Name: "users", Kind: orm.HasMany, Related: "User"},
				{Name: "posts", Kind: orm.HasManyThrough, Related: "Post", Through: "User"},
			},
		},
		{
			Name:        "User",
			Timestamps:  true,
			SoftDeletes: true,
			Hidden:      []string{"password"},
			Casts: map[string]orm.Cast{
				"is_admin": orm.CastBoolean,
				"settings": orm.CastJSON,
			},
			Relations: []orm.Relation{
				{Name: "country", Kind: orm.BelongsTo, Related: "Country"},
				{Name: "phone", Kind: orm.HasOne, Related: "Phone"},
				{Name: "posts", Kind: orm.HasMany, Related: "Post"},
				{Name: "roles", Kind: orm.BelongsToMany, Related: "Role"},
			},
		},
		{
			Name: "Phone",
			Relations: []orm.Relation{
				{Name: "user", Kind: orm.BelongsTo, Related: "User"},
			},
		},
		{
			Name:       "Post",
			Timestamps: true,
			Dates:      []string{"published_at"},
			Appends: map[string]func(*orm.Record) interface{}{
				"excerpt": excerpt,
			},
			Relations: []orm.Relation{
				{Name: "author", Kind: orm.BelongsTo, Related: "User", ForeignKey: "user_id"},
				{Name: "comments", Kind: orm.HasMany, Related: "Comment"},
				{Name: "tags", Kind: orm.MorphToMany, Related: "Tag", MorphName: "taggable"},
			},
		},
		{
			Name:       "Comment",
			Timestamps: true,
			Relations: []orm.Relation{
				{Name: "post", Kind: orm.BelongsTo, Related: "Post"},
				{Name: "user", Kind: orm.BelongsTo, Related: "User"},
			},
		},
		{
			Name: "Role",
			Relations: []orm.Relation{
				{Name: "users", Kind: orm.BelongsToMany, Related: "User"},
			},
		},
		{
			Name: "Tag",
		},
		{
			Name: "Image",
			Relations: []orm.Relation{
				{Name: "imageable", Kind: orm.MorphTo, MorphTypes: []string{"Post", "User"}},
			},
		},
	}
}

// Registry registers the blog models
func Registry() (*orm.Registry, error) {
	return orm.NewRegistry(Models()...)
}

// Migrate creates the blog tables on an sqlite database
func Migrate(ctx context.Context, db *orm.DB) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

func excerpt(r *orm.Record) interface{} {
	body, _ := r.Get("body").(string)
	if len(body) <= 40 {
		return body
	}
	return body[:40] + "..."
}
