package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devplatform/modelgraph/internal/blog/blogtest"
	"github.com/devplatform/modelgraph/internal/config"
	"github.com/devplatform/modelgraph/internal/graphql"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		DBDriver:         "sqlite",
		DBDSN:            filepath.Join(t.TempDir(), "app.db"),
		DBMigrate:        true,
		BatchTransaction: config.BatchPerOperation,
	}
}

func TestNewServesBlogDefinitions(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), blogtest.Logger())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	res, err := a.Manager.Execute(context.Background(), config.DefaultSchema, graphql.Request{
		Query: `mutation { user(with: {name: "Arya", email: "not-an-email"}) { id } }`,
	})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "VALIDATION_FAILED", res.Errors[0].Extensions["code"])

	res, err = a.Manager.Execute(context.Background(), config.DefaultSchema, graphql.Request{
		Query: `mutation { post(with: {title: "Winter is coming", body: "The north remembers"}) { id } }`,
	})
	require.NoError(t, err)
	require.Empty(t, res.Errors)

	res, err = a.Manager.Execute(context.Background(), config.DefaultSchema, graphql.Request{
		Query: `{ posts(filter: {search: "north"}) { title excerpt } }`,
	})
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	assert.Equal(t, map[string]interface{}{
		"posts": []interface{}{
			map[string]interface{}{"title": "Winter is coming", "excerpt": "The north remembers"},
		},
	}, res.Data)
}

func TestWireLoadsSchemasFile(t *testing.T) {
	db := blogtest.Open(t)
	path := filepath.Join(t.TempDir(), "schemas.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schemas:\n  public:\n    query: [Post, health]\n"), 0o600))

	cfg := &config.Config{SchemasFile: path, BatchTransaction: config.BatchPerOperation}
	a, err := Wire(context.Background(), db, cfg, blogtest.Logger())
	require.NoError(t, err)
	assert.Equal(t, []string{"public"}, a.Manager.SchemaNames())

	_, err = a.Manager.Schema(context.Background(), config.DefaultSchema)
	assert.ErrorIs(t, err, graphql.ErrUnknownSchema)
}

func TestWireRejectsBadSchemas(t *testing.T) {
	db := blogtest.Open(t)
	path := filepath.Join(t.TempDir(), "schemas.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schemas:\n  public:\n    query: [Article]\n"), 0o600))

	_, err := Wire(context.Background(), db, &config.Config{SchemasFile: path}, blogtest.Logger())
	assert.ErrorIs(t, err, graphql.ErrUnknownEntry)
}

func TestWireSharesColumnsThroughRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := &config.Config{
		BatchTransaction: config.BatchPerOperation,
		RedisAddr:        mr.Addr(),
		RedisPrefix:      "test:columns:",
		RedisTTL:         time.Minute,
	}
	a, err := Wire(context.Background(), blogtest.Open(t), cfg, blogtest.Logger())
	require.NoError(t, err)
	require.NotNil(t, a.Redis)
	t.Cleanup(func() { a.Redis.Close() })

	assert.True(t, mr.Exists("test:columns:posts"))
	assert.True(t, mr.Exists("test:columns:users"))
}

func TestWireFailsWithoutRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	cfg := &config.Config{BatchTransaction: config.BatchPerOperation, RedisAddr: addr}
	_, err = Wire(context.Background(), blogtest.Open(t), cfg, blogtest.Logger())
	assert.ErrorContains(t, err, "failed to connect to redis")
}
