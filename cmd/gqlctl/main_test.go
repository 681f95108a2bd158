package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func setupEnv(t *testing.T) string {
	dir := t.TempDir()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", filepath.Join(dir, "gqlctl.db"))
	t.Setenv("DB_MIGRATE", "true")
	return dir
}

func TestSchemaNames(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "schema", "--names")
	require.NoError(t, err)
	assert.Equal(t, "default\n", out)
}

func TestSchemaIntrospection(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, `"queryType"`)
	assert.Contains(t, out, `"name": "Post"`)

	out, err = run(t, "schema", "--sdl")
	require.NoError(t, err)
	assert.Contains(t, out, "type Post")
	assert.Contains(t, out, "scalar Timestamp")

	_, err = run(t, "schema", "missing")
	assert.Error(t, err)
}

func TestExec(t *testing.T) {
	dir := setupEnv(t)

	query := filepath.Join(dir, "create.graphql")
	require.NoError(t, os.WriteFile(query, []byte(`mutation($name: String!) { tag(with: {name: $name}) { name } }`), 0o600))
	vars := filepath.Join(dir, "vars.json")
	require.NoError(t, os.WriteFile(vars, []byte(`{"name": "go"}`), 0o600))

	out, err := run(t, "exec", "--vars", vars, query)
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "go"`)

	bad := filepath.Join(dir, "bad.graphql")
	require.NoError(t, os.WriteFile(bad, []byte(`{ nothing }`), 0o600))
	out, err = run(t, "exec", bad)
	assert.EqualError(t, err, "operation returned 1 error(s)")
	assert.Contains(t, out, `"errors"`)
}
