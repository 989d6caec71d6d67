package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultPoolInterval is how often pool gauges are refreshed.
const DefaultPoolInterval = 15 * time.Second

// PoolStats is the subset of pgxpool statistics the collector reads.
type PoolStats interface {
	AcquiredConns() int32
	IdleConns() int32
	MaxConns() int32
	AcquireDuration() time.Duration
}

// RecordPoolStats copies pool statistics into the gauges.
func RecordPoolStats(stats PoolStats) {
	DBPoolConnections.WithLabelValues("in_use").Set(float64(stats.AcquiredConns()))
	DBPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns()))
	DBPoolConnections.WithLabelValues("max").Set(float64(stats.MaxConns()))
	DBPoolAcquireWaitSeconds.Set(stats.AcquireDuration().Seconds())
}

// CollectPool records pool statistics now and then every interval until ctx
// is cancelled.
func CollectPool(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPoolInterval
	}
	RecordPoolStats(pool.Stat())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			RecordPoolStats(pool.Stat())
		case <-ctx.Done():
			return
		}
	}
}
