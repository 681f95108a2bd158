// Package blogtest opens migrated blog databases for tests
package blogtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/devplatform/modelgraph/internal/blog"
	"github.com/devplatform/modelgraph/internal/orm"
)

// Logger returns a logger that discards output
func Logger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

// Open creates a migrated sqlite database in a temporary directory
func Open(t *testing.T) *orm.DB {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "blog.db"))
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	models, err := blog.Registry()
	require.NoError(t, err)

	db, err := orm.New(sqlDB, "sqlite", models, Logger())
	require.NoError(t, err)
	require.NoError(t, blog.Migrate(context.Background(), db))
	return db
}

// Create saves a record of the named model with the attributes
func Create(t *testing.T, db *orm.DB, model string, attrs map[string]interface{}) *orm.Record {
	t.Helper()

	m, ok := db.Models().Model(model)
	require.True(t, ok, "model %s", model)

	r := orm.NewRecord(m)
	for k, v := range attrs {
		r.Set(k, v)
	}
	require.NoError(t, db.Save(context.Background(), r))
	return r
}
