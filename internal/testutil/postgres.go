package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"itdesk/internal/config"
	"itdesk/internal/database"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

// PostgresConfig starts PostgreSQL in a container and returns a config pointing at it.
// It skips the test unless TEST_INTEGRATION is set.
func PostgresConfig(t testing.TB) *config.Config {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("itdesk_test"),
		postgres.WithUsername("itdesk"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}

	return &config.Config{
		Env:            "test",
		DBDriver:       "postgres",
		DBHost:         host,
		DBPort:         port.Port(),
		DBUser:         "itdesk",
		DBPassword:     "test-password",
		DBName:         "itdesk_test",
		DBSSLMode:      "disable",
		DBSchemaMode:   database.SchemaModeSQL,
		DBMaxOpenConns: 20,
		DBMaxIdleConns: 20,
	}
}

// NewPostgresDB returns a handle on a fresh containerized PostgreSQL with the SQL migrations applied.
func NewPostgresDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.Connect(PostgresConfig(t))
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}
