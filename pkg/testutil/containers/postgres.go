//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/Ramsey-B/fern/pkg/database"
)

const postgresDatabase = "fern"

// PostgresContainer wraps a testcontainers Postgres instance with the
// schema migrations applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        database.DB
}

// NewPostgresContainer starts Postgres and runs the migrations found in
// migrationsPath.
func NewPostgresContainer(t *testing.T, migrationsPath string) *PostgresContainer {
	t.Helper()

	ctx := context.Background()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase(postgresDatabase),
		tcpostgres.WithUsername("fern"),
		tcpostgres.WithPassword("fern"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })

	db := database.NewDatabaseInstance(pool, logger)
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{MigrationFolderPath: migrationsPath})
	if err := migrations.Migrate(postgresDatabase, db); err != nil {
		t.Fatalf("failed to migrate postgres: %v", err)
	}

	return &PostgresContainer{
		Container: container,
		DSN:       dsn,
		DB:        db,
	}
}

// Truncate empties the given tables between tests
func (p *PostgresContainer) Truncate(t *testing.T, tables ...string) {
	t.Helper()
	for _, table := range tables {
		if _, err := p.DB.ExecContext(context.Background(), "TRUNCATE "+table+" CASCADE"); err != nil {
			t.Fatalf("failed to truncate %s: %v", table, err)
		}
	}
}
