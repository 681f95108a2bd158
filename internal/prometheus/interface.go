package prometheus

import (
	"context"
	"database/sql"
)

// Database is the part of the connection pool that health checks and pool
// gauges read
type Database interface {
	Ping(ctx context.Context) error
	Stats() sql.DBStats
}
