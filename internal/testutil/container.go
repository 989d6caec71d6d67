package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DefaultPostgresImage matches the version used in deployment.
const DefaultPostgresImage = "postgres:16-alpine"

// PostgresContainer is a disposable database for integration tests.
type PostgresContainer struct {
	*postgres.PostgresContainer
	ConnectionString string
}

type postgresOptions struct {
	image    string
	database string
	startup  time.Duration
}

// PostgresOption customises NewPostgresContainer.
type PostgresOption func(*postgresOptions)

// WithImage overrides DefaultPostgresImage.
func WithImage(image string) PostgresOption {
	return func(o *postgresOptions) { o.image = image }
}

// WithDatabase sets the database name.
func WithDatabase(name string) PostgresOption {
	return func(o *postgresOptions) { o.database = name }
}

// WithStartupTimeout bounds the wait for the server to accept connections.
func WithStartupTimeout(d time.Duration) PostgresOption {
	return func(o *postgresOptions) { o.startup = d }
}

// NewPostgresContainer starts postgres and waits until it accepts
// connections. Callers must Terminate it.
func NewPostgresContainer(ctx context.Context, opts ...PostgresOption) (*PostgresContainer, error) {
	o := postgresOptions{
		image:    DefaultPostgresImage,
		database: "incidents_test",
		startup:  60 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	container, err := postgres.Run(ctx, o.image,
		postgres.WithDatabase(o.database),
		postgres.WithUsername("incidents"),
		postgres.WithPassword("incidents"),
		// the server restarts once after initdb, so the line appears twice
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(o.startup),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("postgres connection string: %w", err)
	}

	return &PostgresContainer{PostgresContainer: container, ConnectionString: dsn}, nil
}
