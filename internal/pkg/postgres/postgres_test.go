package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 16 * time.Second},
		{40, 16 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestConfig_PoolConfig(t *testing.T) {
	pc, err := Config{
		URL:             "postgres://u:p@localhost:5432/db?sslmode=disable",
		MaxOpenConns:    7,
		MaxIdleConns:    3,
		ConnMaxLifetime: time.Minute,
	}.poolConfig()
	require.NoError(t, err)

	assert.Equal(t, int32(7), pc.MaxConns)
	assert.Equal(t, int32(3), pc.MinConns)
	assert.Equal(t, time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, "UTC", pc.ConnConfig.RuntimeParams["timezone"])
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), Config{URL: "://nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse database url")
}

func TestConnect_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// nothing listens on port 1
	_, err := Connect(ctx, Config{
		URL:             "postgres://u:p@127.0.0.1:1/db?sslmode=disable&connect_timeout=1",
		ConnectAttempts: 3,
	})
	require.Error(t, err)
}
