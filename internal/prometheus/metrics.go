package prometheus

import (
	promclient "github.com/prometheus/client_golang/prometheus"
)

// Business-level metrics for the GraphQL engine.
// These track generated operations, not just HTTP requests.

var (
	// ═══════════════════════════════════════════════════════════════════════════
	// OPERATION METRICS
	// ═══════════════════════════════════════════════════════════════════════════

	// OperationDuration - Histogram of generated resolver durations
	OperationDuration = promclient.NewHistogramVec(
		promclient.HistogramOpts{
			Name:    "modelgraph_operation_duration_seconds",
			Help:    "Duration of generated GraphQL operations in seconds",
			Buckets: promclient.DefBuckets,
		},
		[]string{"definition", "operation", "success"},
	)

	// OperationsTotal - Counter of generated resolver calls
	OperationsTotal = promclient.NewCounterVec(
		promclient.CounterOpts{
			Name: "modelgraph_operations_total",
			Help: "Total number of generated GraphQL operations",
		},
		[]string{"definition", "operation", "success"},
	)

	// RecordsWrittenTotal - Counter of records stored, deleted or restored
	RecordsWrittenTotal = promclient.NewCounterVec(
		promclient.CounterOpts{
			Name: "modelgraph_records_written_total",
			Help: "Total number of records written by mutations",
		},
		[]string{"definition", "operation"},
	)

	// ═══════════════════════════════════════════════════════════════════════════
	// ERROR METRICS
	// ═══════════════════════════════════════════════════════════════════════════

	// ClientErrorsTotal - Counter of errors reported back to clients, by code
	ClientErrorsTotal = promclient.NewCounterVec(
		promclient.CounterOpts{
			Name: "modelgraph_client_errors_total",
			Help: "Total number of classified errors returned to clients",
		},
		[]string{"code"},
	)

	// InternalErrorsTotal - Counter of errors hidden behind a generic message
	InternalErrorsTotal = promclient.NewCounter(
		promclient.CounterOpts{
			Name: "modelgraph_internal_errors_total",
			Help: "Total number of unclassified resolver errors",
		},
	)

	// ═══════════════════════════════════════════════════════════════════════════
	// SCHEMA METRICS
	// ═══════════════════════════════════════════════════════════════════════════

	// SchemaBuildDuration - Histogram of schema assembly durations
	SchemaBuildDuration = promclient.NewHistogramVec(
		promclient.HistogramOpts{
			Name:    "modelgraph_schema_build_duration_seconds",
			Help:    "Duration of schema assembly in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"schema"},
	)

	// ═══════════════════════════════════════════════════════════════════════════
	// CONNECTION POOL METRICS
	// ═══════════════════════════════════════════════════════════════════════════

	// PoolOpenConnections - Gauge of open connections
	PoolOpenConnections = promclient.NewGauge(
		promclient.GaugeOpts{
			Name: "modelgraph_db_open_connections",
			Help: "Number of open database connections",
		},
	)

	// PoolInUseConnections - Gauge of connections in use
	PoolInUseConnections = promclient.NewGauge(
		promclient.GaugeOpts{
			Name: "modelgraph_db_in_use_connections",
			Help: "Number of database connections in use",
		},
	)

	// PoolIdleConnections - Gauge of idle connections
	PoolIdleConnections = promclient.NewGauge(
		promclient.GaugeOpts{
			Name: "modelgraph_db_idle_connections",
			Help: "Number of idle database connections",
		},
	)

	// PoolWaitCount - Gauge of the total number of connections waited for
	PoolWaitCount = promclient.NewGauge(
		promclient.GaugeOpts{
			Name: "modelgraph_db_wait_count",
			Help: "Total number of connections waited for",
		},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	promclient.MustRegister(
		OperationDuration,
		OperationsTotal,
		RecordsWrittenTotal,
		ClientErrorsTotal,
		InternalErrorsTotal,
		SchemaBuildDuration,
		PoolOpenConnections,
		PoolInUseConnections,
		PoolIdleConnections,
		PoolWaitCount,
	)
}
