package ldcontext

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// NewContextStorePostgreSQL creates a new PostgreSQL-backed ContextStore.
// It accepts a standard PostgreSQL connection string. WithPragma options are ignored.
func NewContextStorePostgreSQL(connStr string, opts ...StoreOption) (*ContextStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(4)

	store, err := newContextStore(db, true, postgresDialect{}, newConfig(opts))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema for PostgreSQL: %w", err)
	}
	return store, nil
}

// NewContextStorePostgreSQLFromDB creates a new PostgreSQL-backed ContextStore from an existing database connection.
// The caller retains ownership of the db connection and must close it separately.
// Note: This constructor does not configure connection pooling settings (use NewContextStorePostgreSQL for that).
func NewContextStorePostgreSQLFromDB(db *sql.DB, opts ...StoreOption) (*ContextStore, error) {
	store, err := newContextStore(db, false, postgresDialect{}, newConfig(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize schema for PostgreSQL: %w", err)
	}
	return store, nil
}
