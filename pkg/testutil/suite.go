package testutil

import (
	"context"
	"fmt"
	"os"

	"github.com/elis/elis-backend/pkg/database"
	"github.com/elis/elis-backend/pkg/logger"
)

// IntegrationSuite holds a migrated database for repository tests
type IntegrationSuite struct {
	DB        *database.DB
	container *PostgresContainer
}

// Enabled reports whether integration tests are opted in
func Enabled() bool {
	return os.Getenv("ELIS_INTEGRATION_TESTS") != ""
}

// NewIntegrationSuite starts a PostgreSQL container, connects to it and
// applies all migrations. Callers own Cleanup.
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	container, err := NewPostgresContainer(ctx)
	if err != nil {
		return nil, err
	}

	db, err := database.NewWithDSN(container.DSN, logger.New("test", "test"))
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to migrate test database: %w", err)
	}

	return &IntegrationSuite{
		DB:        db,
		container: container,
	}, nil
}

// Cleanup closes the database and removes the container
func (s *IntegrationSuite) Cleanup(ctx context.Context) {
	if s.DB != nil {
		s.DB.Close()
	}
	if s.container != nil {
		s.container.Terminate(ctx)
	}
}

// TruncateAll resets all tables between tests
func (s *IntegrationSuite) TruncateAll(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `TRUNCATE users, documents, images CASCADE`)
	return err
}
