// Package testutil provides shared infrastructure for integration tests that
// need a real Postgres or Redis.
//
// Usage in TestMain:
//
//	func TestMain(m *testing.M) {
//	    tc := testutil.MustStartPostgres()
//	    testDB, _ = tc.NewTestDB(context.Background(), testutil.TestLogger())
//	    code := m.Run()
//	    tc.Terminate()
//	    os.Exit(code)
//	}
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lexdesk/lexagent/internal/storage"
	"github.com/lexdesk/lexagent/migrations"
)

// TestContainer wraps a started container and the address used to reach it.
type TestContainer struct {
	Container testcontainers.Container
	// DSN is a Postgres connection string or a Redis host:port.
	DSN string
}

func mustStart(req testcontainers.ContainerRequest, port nat.Port) (testcontainers.Container, string, string) {
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: start %s: %v\n", req.Image, err)
		os.Exit(1)
	}
	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: container host: %v\n", err)
		os.Exit(1)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: container port: %v\n", err)
		os.Exit(1)
	}
	return container, host, mapped.Port()
}

// MustStartPostgres starts a disposable Postgres. Calls os.Exit(1) on failure
// (suitable for TestMain).
func MustStartPostgres() *TestContainer {
	container, host, port := mustStart(testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "lexagent",
			"POSTGRES_PASSWORD": "lexagent",
			"POSTGRES_DB":       "lexagent",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, nat.Port("5432/tcp"))

	return &TestContainer{
		Container: container,
		DSN:       fmt.Sprintf("postgres://lexagent:lexagent@%s:%s/lexagent?sslmode=disable", host, port),
	}
}

// MustStartRedis starts a disposable Redis; DSN is host:port.
func MustStartRedis() *TestContainer {
	container, host, port := mustStart(testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}, nat.Port("6379/tcp"))
	return &TestContainer{Container: container, DSN: host + ":" + port}
}

// NewTestDB connects to the container and applies all migrations.
func (tc *TestContainer) NewTestDB(ctx context.Context, logger *slog.Logger) (*storage.DB, error) {
	db, err := storage.New(ctx, tc.DSN, storage.PoolOptions{}, logger)
	if err != nil {
		return nil, fmt.Errorf("testutil: create DB: %w", err)
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("testutil: run migrations: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container.
func (tc *TestContainer) Terminate() {
	_ = tc.Container.Terminate(context.Background())
}

// TestLogger returns a logger for test output (warnings and above).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
