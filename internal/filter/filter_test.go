package filter_test

import (
	"context"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devplatform/modelgraph/internal/blog/blogtest"
	"github.com/devplatform/modelgraph/internal/filter"
)

func compile(t *testing.T, g filter.Grammar, expr map[string]interface{}) (string, []interface{}) {
	t.Helper()
	filterables := map[string]filter.Strategy{
		"id":    filter.Column("id"),
		"name":  filter.Column("name"),
		"email": filter.Column("email"),
	}
	pred, err := filter.Compile(expr, filterables, g)
	require.NoError(t, err)
	query, args, err := pred.ToSql()
	require.NoError(t, err)
	return query, args
}

func TestLeafOperators(t *testing.T) {
	cases := []struct {
		value   string
		query   string
		operand interface{}
	}{
		{"(gt) 5", "(id > ?)", "5"},
		{"(gte)5", "(id >= ?)", "5"},
		{"(lt) 5", "(id < ?)", "5"},
		{"(lte) 5", "(id <= ?)", "5"},
		{"5", "(id = ?)", "5"},
		{"(ne) 5", "(id = ?)", "(ne) 5"},
	}
	for _, tc := range cases {
		t.Run(tc.value, func(t *testing.T) {
			query, args := compile(t, filter.Postgres{}, map[string]interface{}{"id": tc.value})
			assert.Equal(t, tc.query, query)
			assert.Equal(t, []interface{}{tc.operand}, args)
		})
	}
}

func TestDefaultGrammarLowersText(t *testing.T) {
	query, args := compile(t, filter.Default{}, map[string]interface{}{"name": "Daenerys"})
	assert.Equal(t, "(LOWER(name) = ?)", query)
	assert.Equal(t, []interface{}{"daenerys"}, args)

	query, args = compile(t, filter.Default{}, map[string]interface{}{"name": "Dae%"})
	assert.Equal(t, "(LOWER(name) LIKE ?)", query)
	assert.Equal(t, []interface{}{"dae%"}, args)

	query, _ = compile(t, filter.Default{}, map[string]interface{}{"id": "(gt) 5"})
	assert.Equal(t, "(id > ?)", query)

	query, args = compile(t, filter.Default{}, map[string]interface{}{"id": float64(3)})
	assert.Equal(t, "(id = ?)", query)
	assert.Equal(t, []interface{}{float64(3)}, args)
}

func TestPostgresGrammarUsesILike(t *testing.T) {
	query, args := compile(t, filter.Postgres{}, map[string]interface{}{"name": "Dae%"})
	assert.Equal(t, "(name ILIKE ?)", query)
	assert.Equal(t, []interface{}{"Dae%"}, args)

	query, _ = compile(t, filter.Postgres{}, map[string]interface{}{"name": "Daenerys"})
	assert.Equal(t, "(name = ?)", query)
}

func TestNestedGroups(t *testing.T) {
	query, args := compile(t, filter.Postgres{}, map[string]interface{}{
		"name":  map[string]interface{}{"or": []interface{}{"Arya", "Sansa"}},
		"email": "contact@x",
	})
	assert.Equal(t, "(email = ? AND (name = ? OR name = ?))", query)
	assert.Equal(t, []interface{}{"contact@x", "Arya", "Sansa"}, args)

	query, _ = compile(t, filter.Postgres{}, map[string]interface{}{
		"id": map[string]interface{}{"and": []interface{}{"(gt) 1", "(lt) 9"}},
	})
	assert.Equal(t, "((id > ? AND id < ?))", query)

	query, _ = compile(t, filter.Postgres{}, map[string]interface{}{
		"id": map[string]interface{}{"or": []interface{}{
			"(lt) 2",
			map[string]interface{}{"and": []interface{}{"(gt) 5", "(lt) 9"}},
		}},
	})
	assert.Equal(t, "((id < ? OR (id > ? AND id < ?)))", query)
}

func TestListFilterIsIn(t *testing.T) {
	query, args := compile(t, filter.Default{}, map[string]interface{}{"id": []interface{}{1, 2, 3}})
	assert.Equal(t, "(id IN (?,?,?))", query)
	assert.Equal(t, []interface{}{1, 2, 3}, args)
}

func TestClientErrors(t *testing.T) {
	filterables := map[string]filter.Strategy{"id": filter.Column("id")}

	_, err := filter.Compile(map[string]interface{}{"password": "x"}, filterables, filter.Default{})
	var ferr *filter.Error
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "password", ferr.Field)
	assert.Equal(t, "BAD_FILTER", ferr.Extensions()["code"])

	_, err = filter.Compile(map[string]interface{}{"id": []interface{}{}}, filterables, filter.Default{})
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "id", ferr.Field)

	_, err = filter.Compile(map[string]interface{}{"id": map[string]interface{}{"or": []interface{}{}}}, filterables, filter.Default{})
	assert.ErrorAs(t, err, &ferr)
}

func TestFuncStrategy(t *testing.T) {
	search := filter.Func(func(g filter.Grammar, key string, value interface{}) (sq.Sqlizer, error) {
		term := "%" + value.(string) + "%"
		return sq.Or{
			g.Compare("title", "LIKE", term),
			g.Compare("body", "LIKE", term),
		}, nil
	})

	pred, err := filter.Compile(map[string]interface{}{"q": "winter"}, map[string]filter.Strategy{"q": search}, filter.Postgres{})
	require.NoError(t, err)
	query, args, err := pred.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "((title LIKE ? OR body LIKE ?))", query)
	assert.Equal(t, []interface{}{"%winter%", "%winter%"}, args)
}

func TestForDriver(t *testing.T) {
	for _, driver := range []string{"postgres", "pgsql", "pgx"} {
		g, err := filter.ForDriver(driver)
		require.NoError(t, err)
		assert.IsType(t, filter.Postgres{}, g)
	}
	for _, driver := range []string{"mysql", "sqlite", "sqlite3"} {
		g, err := filter.ForDriver(driver)
		require.NoError(t, err)
		assert.IsType(t, filter.Default{}, g)
	}

	_, err := filter.ForDriver("mssql")
	assert.ErrorIs(t, err, filter.ErrUnknownDialect)
}

func TestApplyAgainstSqlite(t *testing.T) {
	ctx := context.Background()
	db := blogtest.Open(t)
	for _, name := range []string{"Arya", "Sansa", "Bran"} {
		blogtest.Create(t, db, "User", map[string]interface{}{"name": name, "email": name + "@winterfell"})
	}
	users, _ := db.Models().Model("User")

	q, err := filter.Apply(db.Query(users), map[string]interface{}{
		"name": map[string]interface{}{"or": []interface{}{"arya", "SANSA"}},
	}, map[string]filter.Strategy{"name": filter.Column("name")}, filter.Default{})
	require.NoError(t, err)

	found, err := q.OrderBy("id", false).Get(ctx)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "Arya", found[0].Get("name"))
	assert.Equal(t, "Sansa", found[1].Get("name"))

	q, err = filter.Apply(db.Query(users), map[string]interface{}{"id": "(gt) 2"},
		map[string]filter.Strategy{"id": filter.Column("id")}, filter.Default{})
	require.NoError(t, err)
	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
