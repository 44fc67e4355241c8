package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "atlas",
				"POSTGRES_PASSWORD": "atlas",
				"POSTGRES_DB":       "atlas",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := Open(ctx, fmt.Sprintf("postgres://atlas:atlas@%s:%s/atlas?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPostgresStoreContract(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	require.NoError(t, ApplyMigrations(ctx, db, migrationsDir))

	runStoreContract(t, func(t *testing.T) contractStore {
		_, err := db.ExecContext(ctx, `TRUNCATE comments, posts`)
		require.NoError(t, err)
		return NewPostgresStore(db)
	})
}

func TestMigrationsRoundTrip(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, ApplyMigrations(ctx, db, migrationsDir))
	require.NoError(t, ApplyMigrations(ctx, db, migrationsDir), "second apply is a no-op")
	require.NoError(t, RevertMigrations(ctx, db, migrationsDir))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&count))
	require.Zero(t, count)

	require.NoError(t, ApplyMigrations(ctx, db, migrationsDir))
}

func TestPostgresStoreUnknownIDIsNotFound(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	require.NoError(t, ApplyMigrations(ctx, db, migrationsDir))

	_, err := NewPostgresStore(db).GetPost(ctx, "not-a-uuid")
	require.ErrorIs(t, err, ErrNotFound)
}
