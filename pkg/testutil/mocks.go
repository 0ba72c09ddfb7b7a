package testutil

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/elis/elis-backend/pkg/database"
	"github.com/elis/elis-backend/pkg/logger"
)

// MockDB wraps sqlmock for repository unit tests without a real database
type MockDB struct {
	DB   *database.DB
	Mock sqlmock.Sqlmock
}

// NewMockDB creates a new mock database.
//
// Usage:
//
//	mockDB := testutil.NewMockDB(t)
//	defer mockDB.Close()
//
//	mockDB.ExpectQuery("SELECT").WillReturnRows(...)
//	repo := repository.NewUserRepository(mockDB.DB)
func NewMockDB(t *testing.T) *MockDB {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	sqlxDB := sqlx.NewDb(db, "postgres")

	return &MockDB{
		DB:   database.NewFromSqlx(sqlxDB, logger.New("test", "test")),
		Mock: mock,
	}
}

// Close closes the mock database connection
func (m *MockDB) Close() error {
	return m.DB.Close()
}

// ExpectQuery sets up an expected query, quoting regex metacharacters
func (m *MockDB) ExpectQuery(query string) *sqlmock.ExpectedQuery {
	return m.Mock.ExpectQuery(regexp.QuoteMeta(query))
}

// ExpectExec sets up an expected exec, quoting regex metacharacters
func (m *MockDB) ExpectExec(query string) *sqlmock.ExpectedExec {
	return m.Mock.ExpectExec(regexp.QuoteMeta(query))
}

// ExpectationsWereMet verifies all expectations were met
func (m *MockDB) ExpectationsWereMet(t *testing.T) {
	if err := m.Mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}
