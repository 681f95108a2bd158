package transformer_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devplatform/modelgraph/internal/blog/blogtest"
	"github.com/devplatform/modelgraph/internal/definition"
	"github.com/devplatform/modelgraph/internal/filter"
	"github.com/devplatform/modelgraph/internal/introspect"
	"github.com/devplatform/modelgraph/internal/orm"
	"github.com/devplatform/modelgraph/internal/transformer"
	"github.com/devplatform/modelgraph/internal/types"
	"github.com/devplatform/modelgraph/internal/validation"
)

type fixture struct {
	db     *orm.DB
	defs   *definition.Registry
	schema graphql.Schema
}

// setup registers the given definitions, then implicit ones for every
// remaining blog model, and builds a schema over all of them
func setup(t *testing.T, custom ...*definition.Definition) *fixture {
	t.Helper()
	db := blogtest.Open(t)
	logger := blogtest.Logger()

	defs := definition.NewRegistry()
	for _, def := range custom {
		if def.Model == nil {
			m, ok := db.Models().Model(def.Name)
			require.True(t, ok)
			def.Model = m
		}
		require.NoError(t, defs.Register(def))
	}
	for _, m := range db.Models().Models() {
		defs.ForModel(m)
	}

	intro := introspect.New(db, introspect.NewCache(), logger)
	resolver := types.New(db, defs, intro, filter.Default{}, types.Config{}, logger)
	require.NoError(t, resolver.Prepare(context.Background()))
	engine := transformer.New(db, defs, resolver, intro, filter.Default{}, validation.New(), logger)

	query, mutation := graphql.Fields{}, graphql.Fields{}
	for _, def := range defs.All() {
		q, m := engine.Fields(def, nil)
		for name, field := range q {
			query[name] = field
		}
		for name, field := range m {
			mutation[name] = field
		}
	}
	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query:    graphql.NewObject(graphql.ObjectConfig{Name: "Query", Fields: query}),
		Mutation: graphql.NewObject(graphql.ObjectConfig{Name: "Mutation", Fields: mutation}),
	})
	require.NoError(t, err)
	return &fixture{db: db, defs: defs, schema: schema}
}

func (f *fixture) do(ctx context.Context, query string) *graphql.Result {
	return graphql.Do(graphql.Params{Schema: f.schema, RequestString: query, Context: ctx})
}

func (f *fixture) ok(t *testing.T, query string) map[string]interface{} {
	t.Helper()
	res := f.do(context.Background(), query)
	require.Empty(t, res.Errors, "%v", res.Errors)
	return res.Data.(map[string]interface{})
}

func code(t *testing.T, res *graphql.Result) interface{} {
	t.Helper()
	require.NotEmpty(t, res.Errors)
	return res.Errors[0].Extensions["code"]
}

func TestFieldNames(t *testing.T) {
	f := setup(t)

	query := f.schema.QueryType().Fields()
	for _, name := range []string{"users", "user", "countries", "country", "posts", "post"} {
		assert.Contains(t, query, name)
	}

	mutation := f.schema.MutationType().Fields()
	for _, name := range []string{"user", "users", "deleteUser", "restoreUser", "post", "deletePost"} {
		assert.Contains(t, mutation, name)
	}
	assert.NotContains(t, mutation, "restorePost")

	args := map[string]bool{}
	for _, arg := range query["users"].Args {
		args[arg.Name()] = true
	}
	assert.True(t, args["trashed"])
	assert.True(t, args["only_trashed"])
}

func TestOperationsCanBeDisabled(t *testing.T) {
	f := setup(t, &definition.Definition{Name: "Tag", Operations: definition.OpList | definition.OpView})

	assert.Contains(t, f.schema.QueryType().Fields(), "tags")
	assert.NotContains(t, f.schema.MutationType().Fields(), "tag")
	assert.NotContains(t, f.schema.MutationType().Fields(), "deleteTag")
}

func TestStoreRoundTrip(t *testing.T) {
	f := setup(t)

	created := f.ok(t, `mutation {
		user(with: {name: "Arya", email: "arya@example.com", is_admin: true, settings: {theme: "dark"}}) { id }
	}`)
	id := created["user"].(map[string]interface{})["id"]
	assert.Equal(t, "1", id)

	viewed := f.ok(t, fmt.Sprintf(`{ user(id: "%s") { id name email is_admin settings trashed } }`, id))
	assert.Equal(t, map[string]interface{}{
		"id":       "1",
		"name":     "Arya",
		"email":    "arya@example.com",
		"is_admin": true,
		"settings": map[string]interface{}{"theme": "dark"},
		"trashed":  false,
	}, viewed["user"])

	updated := f.ok(t, `mutation { user(id: "1", with: {name: "Arya Stark"}) { name email } }`)
	assert.Equal(t, map[string]interface{}{"name": "Arya Stark", "email": "arya@example.com"}, updated["user"])
}

func TestBatchKeepsInputOrder(t *testing.T) {
	f := setup(t)

	data := f.ok(t, `mutation {
		countries(objects: [
			{with: {name: "Norway", code: "NO"}},
			{with: {name: "Chile", code: "CL"}},
			{with: {name: "Kenya", code: "KE"}}
		]) { id name }
	}`)
	assert.Equal(t, []interface{}{
		map[string]interface{}{"id": "1", "name": "Norway"},
		map[string]interface{}{"id": "2", "name": "Chile"},
		map[string]interface{}{"id": "3", "name": "Kenya"},
	}, data["countries"])

	data = f.ok(t, `mutation {
		countries(objects: [{id: "3", with: {code: "ke"}}, {with: {name: "Peru", code: "PE"}}]) { name code }
	}`)
	assert.Equal(t, []interface{}{
		map[string]interface{}{"name": "Kenya", "code": "ke"},
		map[string]interface{}{"name": "Peru", "code": "PE"},
	}, data["countries"])
}

func TestBelongsToManyIsFullReplace(t *testing.T) {
	f := setup(t)
	blogtest.Create(t, f.db, "Role", map[string]interface{}{"name": "admin"})
	blogtest.Create(t, f.db, "Role", map[string]interface{}{"name": "editor"})

	data := f.ok(t, `mutation {
		user(with: {name: "Arya", email: "arya@example.com", roles: [{id: "1"}, {id: "2"}]}) { roles(order_by: ["id"]) { name } }
	}`)
	assert.Equal(t, []interface{}{
		map[string]interface{}{"name": "admin"},
		map[string]interface{}{"name": "editor"},
	}, data["user"].(map[string]interface{})["roles"])

	data = f.ok(t, `mutation { user(id: "1", with: {roles: [{id: "1"}, {}]}) { roles(order_by: ["id"]) { name } } }`)
	assert.Equal(t, []interface{}{
		map[string]interface{}{"name": "admin"},
	}, data["user"].(map[string]interface{})["roles"])
}

func TestHasManyLeavesOmittedRecords(t *testing.T) {
	f := setup(t)

	f.ok(t, `mutation {
		user(with: {name: "Arya", email: "arya@example.com", posts: [{title: "a"}, {title: "b"}]}) { id }
	}`)
	f.ok(t, `mutation { user(id: "1", with: {posts: [{id: "2", title: "b2"}, {title: "c"}]}) { id } }`)

	data := f.ok(t, `{ user(id: "1") { posts(order_by: ["id"]) { title } } }`)
	assert.Equal(t, []interface{}{
		map[string]interface{}{"title": "a"},
		map[string]interface{}{"title": "b2"},
		map[string]interface{}{"title": "c"},
	}, data["user"].(map[string]interface{})["posts"])
}

func TestSingleRelations(t *testing.T) {
	f := setup(t)

	data := f.ok(t, `mutation {
		post(with: {title: "Winter", author: {name: "Arya", email: "arya@example.com"}}) { author { name } }
	}`)
	assert.Equal(t, map[string]interface{}{"name": "Arya"}, data["post"].(map[string]interface{})["author"])

	data = f.ok(t, `mutation {
		user(id: "1", with: {phone: {number: "555-0100"}}) { phone { number } }
	}`)
	assert.Equal(t, map[string]interface{}{"number": "555-0100"}, data["user"].(map[string]interface{})["phone"])

	// without an id the currently linked phone is updated in place
	f.ok(t, `mutation { user(id: "1", with: {phone: {number: "555-0199"}}) { id } }`)
	count, err := f.db.QueryModel("Phone")
	require.NoError(t, err)
	n, err := count.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMorphToHydration(t *testing.T) {
	f := setup(t)

	res := f.do(context.Background(), `mutation { image(with: {url: "a.png", imageable: {title: "Winter"}}) { id } }`)
	assert.Equal(t, "BAD_USER_INPUT", code(t, res))

	res = f.do(context.Background(), `mutation { image(with: {url: "a.png", imageable: {__typename: "Comment", body: "x"}}) { id } }`)
	assert.Equal(t, "BAD_USER_INPUT", code(t, res))

	data := f.ok(t, `mutation {
		image(with: {url: "a.png", imageable: {__typename: "Post", title: "Winter"}}) {
			imageable { __typename ... on Post { title } }
		}
	}`)
	assert.Equal(t, map[string]interface{}{"__typename": "Post", "title": "Winter"},
		data["image"].(map[string]interface{})["imageable"])
}

func TestNotFound(t *testing.T) {
	f := setup(t)

	assert.Equal(t, "NOT_FOUND", code(t, f.do(context.Background(), `{ post(id: "42") { id } }`)))
	assert.Equal(t, "NOT_FOUND", code(t, f.do(context.Background(), `mutation { deletePost(id: "42") { id } }`)))
	assert.Equal(t, "NOT_FOUND", code(t, f.do(context.Background(), `mutation { restoreUser(id: "42") { id } }`)))
}

func TestDropAndRestore(t *testing.T) {
	f := setup(t)
	blogtest.Create(t, f.db, "User", map[string]interface{}{"name": "Arya", "email": "arya@example.com"})
	blogtest.Create(t, f.db, "User", map[string]interface{}{"name": "Sansa", "email": "sansa@example.com"})

	data := f.ok(t, `mutation { deleteUser(id: "1") { name trashed } }`)
	assert.Equal(t, map[string]interface{}{"name": "Arya", "trashed": false}, data["deleteUser"])

	data = f.ok(t, `{
		active: users { name }
		all: users(trashed: true, order_by: ["id"]) { name }
		deleted: users(only_trashed: true) { name trashed }
		user(id: "1") { name trashed }
	}`)
	assert.Equal(t, []interface{}{map[string]interface{}{"name": "Sansa"}}, data["active"])
	assert.Len(t, data["all"], 2)
	assert.Equal(t, []interface{}{map[string]interface{}{"name": "Arya", "trashed": true}}, data["deleted"])
	assert.Equal(t, map[string]interface{}{"name": "Arya", "trashed": true}, data["user"])

	data = f.ok(t, `mutation { restoreUser(id: "1") { trashed deleted_at } }`)
	assert.Equal(t, map[string]interface{}{"trashed": false, "deleted_at": nil}, data["restoreUser"])
	assert.Len(t, f.ok(t, `{ users { id } }`)["users"], 2)
}

func TestHardDeleteReturnsSnapshot(t *testing.T) {
	f := setup(t)
	blogtest.Create(t, f.db, "Tag", map[string]interface{}{"name": "go"})

	data := f.ok(t, `mutation { deleteTag(id: "1") { id name } }`)
	assert.Equal(t, map[string]interface{}{"id": "1", "name": "go"}, data["deleteTag"])
	assert.Empty(t, f.ok(t, `{ tags { id } }`)["tags"])
}

func TestListPagination(t *testing.T) {
	f := setup(t)
	for i := 0; i < 6; i++ {
		blogtest.Create(t, f.db, "Post", map[string]interface{}{"title": fmt.Sprintf("post %d", i)})
	}

	collector := types.NewCollector()
	res := f.do(types.WithCollector(context.Background(), collector), `{ posts(skip: 4, take: 2) { title } }`)
	require.Empty(t, res.Errors)
	assert.Len(t, res.Data.(map[string]interface{})["posts"], 2)
	assert.Equal(t, types.Pagination{TotalCount: 6, Page: 2, NumPages: 3, HasPreviousPage: true}, collector.Entries()["posts"])
}

func TestListFilters(t *testing.T) {
	f := setup(t, &definition.Definition{
		Name:       "Post",
		Filterable: map[string]filter.Strategy{"title": filter.Column("title"), "views": filter.Column("views")},
	})
	for i, title := range []string{"Winter", "Winterfell", "Summer"} {
		blogtest.Create(t, f.db, "Post", map[string]interface{}{"title": title, "views": int64(i * 10)})
	}

	data := f.ok(t, `{ posts(filter: {title: "winter%", views: "(gt) 5"}) { title } }`)
	assert.Equal(t, []interface{}{map[string]interface{}{"title": "Winterfell"}}, data["posts"])

	res := f.do(context.Background(), `{ posts(filter: {body: "x"}) { title } }`)
	assert.Equal(t, "BAD_FILTER", code(t, res))
}

func TestValidationRules(t *testing.T) {
	f := setup(t, &definition.Definition{
		Name:  "User",
		Rules: map[string]string{"email": "required,email", "name": "required"},
	})

	res := f.do(context.Background(), `mutation { user(with: {name: "Arya", email: "nope"}) { id } }`)
	assert.Equal(t, "VALIDATION_FAILED", code(t, res))
	assert.Equal(t, map[string]interface{}{
		"email": []string{"email must be a valid email address"},
	}, res.Errors[0].Extensions["validation"])

	// updates only check the supplied fields
	blogtest.Create(t, f.db, "User", map[string]interface{}{"name": "Arya", "email": "arya@example.com"})
	f.ok(t, `mutation { user(id: "1", with: {name: "Arya Stark"}) { id } }`)
}

func TestUniqueViolationIsConflict(t *testing.T) {
	f := setup(t)
	blogtest.Create(t, f.db, "Tag", map[string]interface{}{"name": "go"})

	res := f.do(context.Background(), `mutation { tag(with: {name: "go"}) { id } }`)
	assert.Equal(t, "CONFLICT", code(t, res))
}
