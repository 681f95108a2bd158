package orm_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devplatform/modelgraph/internal/blog"
	"github.com/devplatform/modelgraph/internal/blog/blogtest"
	"github.com/devplatform/modelgraph/internal/orm"
)

func mockDB(t *testing.T, driver string) (*orm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	models, err := blog.Registry()
	require.NoError(t, err)
	db, err := orm.New(sqlDB, driver, models, blogtest.Logger())
	require.NoError(t, err)
	return db, mock
}

func TestDialectFor(t *testing.T) {
	cases := map[string]orm.Dialect{
		"postgres": orm.Postgres,
		"pgsql":    orm.Postgres,
		"pgx":      orm.Postgres,
		"mysql":    orm.MySQL,
		"sqlite":   orm.SQLite,
		"sqlite3":  orm.SQLite,
	}
	for driver, want := range cases {
		got, err := orm.DialectFor(driver)
		require.NoError(t, err, driver)
		assert.Equal(t, want, got, driver)
	}

	_, err := orm.DialectFor("oracle")
	assert.ErrorIs(t, err, orm.ErrUnknownDialect)
}

func TestPostgresColumns(t *testing.T) {
	db, mock := mockDB(t, "postgres")

	mock.ExpectQuery("SELECT column_name, data_type FROM information_schema.columns WHERE table_name = $1 AND table_schema = current_schema() ORDER BY ordinal_position").
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("id", "bigint").
			AddRow("name", "character varying").
			AddRow("created_at", "TIMESTAMP WITHOUT TIME ZONE"))

	cols, err := db.Columns(context.Background(), "users")
	require.NoError(t, err)
	assert.Equal(t, []orm.ColumnInfo{
		{Name: "id", Type: "bigint"},
		{Name: "name", Type: "character varying"},
		{Name: "created_at", Type: "timestamp without time zone"},
	}, cols)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSqliteColumns(t *testing.T) {
	db := blogtest.Open(t)

	cols, err := db.Columns(context.Background(), "phones")
	require.NoError(t, err)
	assert.Equal(t, []orm.ColumnInfo{
		{Name: "id", Type: "integer"},
		{Name: "user_id", Type: "integer"},
		{Name: "number", Type: "varchar(32)"},
	}, cols)
}

func TestQueryToSql(t *testing.T) {
	db, _ := mockDB(t, "sqlite")
	users, _ := db.Models().Model("User")

	query, args, err := db.Query(users).
		Where(sq.Eq{"name": "Arya"}).
		OrderBy("users.id", false).
		Limit(10).
		Offset(5).
		ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT users.* FROM users WHERE name = ? AND users.deleted_at IS NULL ORDER BY users.id ASC LIMIT 10 OFFSET 5", query)
	assert.Equal(t, []interface{}{"Arya"}, args)

	query, _, err = db.Query(users).OnlyTrashed().ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT users.* FROM users WHERE users.deleted_at IS NOT NULL", query)

	query, _, err = db.Query(users).WithTrashed().ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT users.* FROM users", query)
}

func TestPostgresPlaceholders(t *testing.T) {
	db, _ := mockDB(t, "pgx")
	posts, _ := db.Models().Model("Post")

	query, args, err := db.Query(posts).WhereKey("3").Where(sq.Gt{"views": 10}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT posts.* FROM posts WHERE posts.id = $1 AND views > $2", query)
	assert.Equal(t, []interface{}{"3", 10}, args)
}

func TestPostgresInsertReturning(t *testing.T) {
	db, mock := mockDB(t, "postgres")
	tags, _ := db.Models().Model("Tag")

	mock.ExpectQuery("INSERT INTO tags (name) VALUES ($1) RETURNING id").
		WithArgs("go").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	r := orm.NewRecord(tags).Fill(map[string]interface{}{"name": "go"})
	require.NoError(t, db.Save(context.Background(), r))
	assert.Equal(t, int64(42), r.Key())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverErrorsMapToSentinels(t *testing.T) {
	db, mock := mockDB(t, "mysql")
	tags, _ := db.Models().Model("Tag")

	cases := []struct {
		name string
		err  error
		want error
	}{
		{"pgx unique", &pgconn.PgError{Code: "23505", Detail: "Key (name)=(go) already exists."}, orm.ErrUniqueViolation},
		{"pq foreign key", &pq.Error{Code: "23503"}, orm.ErrForeignKeyViolation},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, orm.ErrUniqueViolation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock.ExpectExec("INSERT INTO tags (name) VALUES (?)").WithArgs("go").WillReturnError(tc.err)

			r := orm.NewRecord(tags).Fill(map[string]interface{}{"name": "go"})
			err := db.Save(context.Background(), r)
			assert.ErrorIs(t, err, tc.want)
			assert.False(t, r.Exists())
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "7", orm.KeyString(int64(7)))
	assert.Equal(t, "7", orm.KeyString("7"))
	assert.Equal(t, "7", orm.KeyString([]byte("7")))
	assert.Equal(t, "7", orm.KeyString(float64(7)))
	assert.Equal(t, "", orm.KeyString(nil))
}
