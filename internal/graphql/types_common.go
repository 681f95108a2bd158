package graphql

import (
	"github.com/graphql-go/graphql"

	"github.com/devplatform/modelgraph/internal/models"
	"github.com/devplatform/modelgraph/internal/orm"
	"github.com/devplatform/modelgraph/internal/prometheus"
)

var statsType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Stats",
	Fields: graphql.Fields{
		"maxOpenConnections": &graphql.Field{Type: graphql.Int},
		"openConnections":    &graphql.Field{Type: graphql.Int},
		"inUse":              &graphql.Field{Type: graphql.Int},
		"idle":               &graphql.Field{Type: graphql.Int},
		"waitCount":          &graphql.Field{Type: graphql.Int},
		"waitDurationMs":     &graphql.Field{Type: graphql.Int},
	},
})

var healthType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Health",
	Fields: graphql.Fields{
		"status":    &graphql.Field{Type: graphql.String},
		"timestamp": &graphql.Field{Type: graphql.Int},
		"database":  &graphql.Field{Type: graphql.Boolean},
		"error":     &graphql.Field{Type: graphql.String},
	},
})

// ============================================================================
// COMMON FIELDS (Health, Stats)
// ============================================================================

type healthField struct{ m *Manager }

func (*healthField) RelatedType(*Manager) (graphql.Output, error) {
	return healthType, nil
}

func (*healthField) Arguments(*Manager) graphql.FieldConfigArgument { return nil }

func (*healthField) Attributes() Attributes {
	return Attributes{Name: "health", Description: "Service and database health"}
}

func (f *healthField) Resolve(p graphql.ResolveParams) (interface{}, error) {
	// a request transaction holds a connection, which proves the database is up
	// and must not wait for a second one
	if _, ok := orm.FromContext(p.Context); ok {
		return models.NewHealthStatus(nil), nil
	}
	return models.NewHealthStatus(f.m.database.Ping(p.Context)), nil
}

type statsField struct{ m *Manager }

func (*statsField) RelatedType(*Manager) (graphql.Output, error) {
	return statsType, nil
}

func (*statsField) Arguments(*Manager) graphql.FieldConfigArgument { return nil }

func (*statsField) Attributes() Attributes {
	return Attributes{Name: "stats", Description: "Database connection pool statistics"}
}

func (f *statsField) Resolve(graphql.ResolveParams) (interface{}, error) {
	return models.NewStats(prometheus.UpdatePoolMetrics(f.m.database)), nil
}
