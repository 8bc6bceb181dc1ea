package testutil

import (
	"database/sql"
	"fmt"
	"os"
	"testing"

	_ "github.com/lib/pq"
)

// TestDBConfig holds test database configuration
type TestDBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig returns default test database config
func DefaultTestDBConfig() *TestDBConfig {
	return &TestDBConfig{
		Host:     getenv("TEST_DB_HOST", "localhost"),
		Port:     5432,
		User:     getenv("TEST_DB_USER", "converter_user"),
		Password: getenv("TEST_DB_PASSWORD", "change_me_in_production"),
		DBName:   getenv("TEST_DB_NAME", "document_converter_test"),
	}
}

// SetupTestDB creates a test database connection, skipping the test when no
// database is reachable.
func SetupTestDB(t *testing.T, cfg *TestDBConfig) *sql.DB {
	if cfg == nil {
		cfg = DefaultTestDBConfig()
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("Test database not reachable, skipping: %v", err)
	}

	return db
}

// CleanupTestDB cleans up test database
func CleanupTestDB(t *testing.T, db *sql.DB) {
	if _, err := db.Exec("TRUNCATE TABLE conversion_history"); err != nil {
		t.Logf("Warning: Failed to truncate conversion_history: %v", err)
	}
	db.Close()
}

// CountRows counts rows in a table matching a condition
func CountRows(t *testing.T, db *sql.DB, table, condition string) int {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, condition)
	err := db.QueryRow(query).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to count rows in %s: %v", table, err)
	}
	return count
}

func getenv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
