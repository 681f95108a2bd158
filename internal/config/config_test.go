package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessDefaults(t *testing.T) {
	cfg, err := Process()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 8, cfg.TypeDepth)
	assert.Equal(t, BatchPerOperation, cfg.BatchTransaction)
	assert.Equal(t, 30*time.Minute, cfg.DBConnMaxLifetime)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.True(t, cfg.IsDevelopment())
}

func TestProcessFromEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("GRAPHQL_MAX_QUERY_DEPTH", "4")
	t.Setenv("GRAPHQL_BATCH_TRANSACTION", "batch")
	t.Setenv("GRAPHQL_RESPONSE_HEADERS", "X-Served-By:modelgraph,Cache-Control:no-store")

	cfg, err := Process()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 4, cfg.MaxQueryDepth)
	assert.Equal(t, BatchWhole, cfg.BatchTransaction)
	assert.Equal(t, map[string]string{"X-Served-By": "modelgraph", "Cache-Control": "no-store"}, cfg.ResponseHeaders)
}

func TestProcessRejectsUnknownBatchMode(t *testing.T) {
	t.Setenv("GRAPHQL_BATCH_TRANSACTION", "sometimes")

	_, err := Process()
	assert.ErrorContains(t, err, "GRAPHQL_BATCH_TRANSACTION")
}

func TestLoadSchemas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
schemas:
  default:
    query: ["*", health, stats]
    mutation: ["*"]
  public:
    query: [Post, Comment]
`), 0o600))

	schemas, err := LoadSchemas(path)
	require.NoError(t, err)

	assert.Equal(t, map[string]SchemaConfig{
		"default": {Query: []string{"*", "health", "stats"}, Mutation: []string{"*"}},
		"public":  {Query: []string{"Post", "Comment"}},
	}, schemas)
}

func TestParseSchemasErrors(t *testing.T) {
	_, err := ParseSchemas([]byte("schemas: {}"))
	assert.ErrorContains(t, err, "no schemas defined")

	_, err = ParseSchemas([]byte("schemas:\n  admin:\n    mutation: [User]\n"))
	assert.ErrorContains(t, err, `schema "admin" has no query entries`)

	_, err = ParseSchemas([]byte("schemas: [oops"))
	assert.Error(t, err)

	_, err = LoadSchemas(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read schemas file")
}
