package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Status reports connectivity and pool utilisation for the target store.
type Status struct {
	Healthy      bool   `json:"healthy"`
	LatencyMS    int64  `json:"latency_ms"`
	TotalConns   int32  `json:"total_conns"`
	IdleConns    int32  `json:"idle_conns"`
	AcquiredConn int32  `json:"acquired_conns"`
	Error        string `json:"error,omitempty"`
}

func Check(ctx context.Context, pool *pgxpool.Pool) Status {
	start := time.Now()
	err := pool.Ping(ctx)
	stat := pool.Stat()

	s := Status{
		Healthy:      err == nil,
		LatencyMS:    time.Since(start).Milliseconds(),
		TotalConns:   stat.TotalConns(),
		IdleConns:    stat.IdleConns(),
		AcquiredConn: stat.AcquiredConns(),
	}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}
