package prometheus

import (
	"database/sql"
	"time"

	"github.com/graphql-go/graphql"

	"github.com/devplatform/modelgraph/internal/definition"
	"github.com/devplatform/modelgraph/internal/orm"
)

// writeOperations change records and feed RecordsWrittenTotal
const writeOperations = definition.OpStore | definition.OpBatch | definition.OpDrop | definition.OpRestore

// Instrument wraps a generated resolver and records its duration, outcome
// and the number of records it wrote
func Instrument(def *definition.Definition, op definition.Operation, next graphql.FieldResolveFn) graphql.FieldResolveFn {
	name := op.String()
	return func(p graphql.ResolveParams) (interface{}, error) {
		start := time.Now()
		result, err := next(p)
		recordOperation(def.Name, name, start, err)

		if err == nil && writeOperations&op != 0 {
			if n := written(result); n > 0 {
				RecordsWrittenTotal.WithLabelValues(def.Name, name).Add(float64(n))
			}
		}
		return result, err
	}
}

// recordOperation records duration and count for an operation
func recordOperation(def, operation string, start time.Time, err error) {
	success := "true"
	if err != nil {
		success = "false"
	}

	OperationDuration.WithLabelValues(def, operation, success).Observe(time.Since(start).Seconds())
	OperationsTotal.WithLabelValues(def, operation, success).Inc()
}

func written(result interface{}) int {
	switch v := result.(type) {
	case *orm.Record:
		if v != nil {
			return 1
		}
	case []*orm.Record:
		return len(v)
	}
	return 0
}

// RecordClientError counts an error returned to a client under its code
func RecordClientError(code string) {
	if code == "" {
		code = "unknown"
	}
	ClientErrorsTotal.WithLabelValues(code).Inc()
}

// RecordInternalError counts an error hidden from the client
func RecordInternalError() {
	InternalErrorsTotal.Inc()
}

// ObserveSchemaBuild records how long assembling a schema took
func ObserveSchemaBuild(schema string, start time.Time) {
	SchemaBuildDuration.WithLabelValues(schema).Observe(time.Since(start).Seconds())
}

// UpdatePoolMetrics updates connection pool gauges from stats
func UpdatePoolMetrics(db Database) sql.DBStats {
	stats := db.Stats()
	PoolOpenConnections.Set(float64(stats.OpenConnections))
	PoolInUseConnections.Set(float64(stats.InUse))
	PoolIdleConnections.Set(float64(stats.Idle))
	PoolWaitCount.Set(float64(stats.WaitCount))
	return stats
}
