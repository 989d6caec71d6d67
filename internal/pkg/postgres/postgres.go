// Package postgres opens the connection pool and runs schema migrations.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const maxBackoff = 16 * time.Second

// Config describes the pool.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// ConnectAttempts below 1 means a single attempt.
	ConnectAttempts int
}

func (c Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if c.MaxOpenConns > 0 {
		pc.MaxConns = int32(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		pc.MinConns = int32(c.MaxIdleConns)
	}
	if c.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = c.ConnMaxLifetime
	}
	// timestamps are stored and compared in UTC regardless of server settings
	pc.ConnConfig.RuntimeParams["timezone"] = "UTC"
	return pc, nil
}

// Connect opens a pool and pings it, retrying with exponential backoff until
// the attempts run out or ctx is done.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pc, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	attempts := max(cfg.ConnectAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pool, err := open(ctx, pc)
		if err == nil {
			slog.Info("connected to database", "attempt", attempt)
			return pool, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		wait := backoff(attempt)
		slog.Warn("database not reachable, retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff", wait,
			"error", err,
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to database: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("connect to database after %d attempts: %w", attempts, lastErr)
}

func open(ctx context.Context, pc *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// backoff doubles from one second per attempt, capped at maxBackoff.
func backoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	return min(time.Duration(1<<(attempt-1))*time.Second, maxBackoff)
}
