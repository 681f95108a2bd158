package models

import (
	"database/sql"
	"time"
)

// Stats contains connection pool statistics
type Stats struct {
	MaxOpenConnections int   `json:"maxOpenConnections"`
	OpenConnections    int   `json:"openConnections"`
	InUse              int   `json:"inUse"`
	Idle               int   `json:"idle"`
	WaitCount          int64 `json:"waitCount"`
	WaitDurationMs     int64 `json:"waitDurationMs"`
}

// NewStats converts database/sql pool statistics
func NewStats(s sql.DBStats) *Stats {
	return &Stats{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		WaitDurationMs:     s.WaitDuration.Milliseconds(),
	}
}

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	Database  bool   `json:"database"`
	Error     string `json:"error,omitempty"`
}

// NewHealthStatus builds the status for the outcome of a database ping
func NewHealthStatus(pingErr error) *HealthStatus {
	h := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().Unix(),
		Database:  pingErr == nil,
	}
	if pingErr != nil {
		h.Status = "unhealthy"
		h.Error = pingErr.Error()
	}
	return h
}
