package ldcontext

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/twinfer/ldcontext/jsonld"
)

// config holds configuration options for the ContextStore.
type config struct {
	pragmas    map[string]string
	loader     jsonld.DocumentLoader
	ttl        time.Duration
	logger     *slog.Logger
	registerer prometheus.Registerer
	now        func() time.Time
}

// StoreOption is a function that configures a ContextStore.
type StoreOption func(*config)

// WithPragma sets a specific SQLite PRAGMA statement.
// For example: WithPragma("synchronous", "NORMAL").
// This will override any default value for the given PRAGMA key.
// PostgreSQL stores ignore it.
func WithPragma(key, value string) StoreOption {
	return func(c *config) {
		if c.pragmas == nil {
			c.pragmas = make(map[string]string)
		}
		c.pragmas[key] = value
	}
}

// WithLoader sets the loader used to fetch documents that are not cached.
// Without one, LoadDocument only serves cached documents.
func WithLoader(next jsonld.DocumentLoader) StoreOption {
	return func(c *config) {
		c.loader = next
	}
}

// WithTTL makes cached documents older than ttl be fetched again.
// Zero, the default, keeps documents forever.
func WithTTL(ttl time.Duration) StoreOption {
	return func(c *config) {
		c.ttl = ttl
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) StoreOption {
	return func(c *config) {
		c.logger = logger
	}
}

// WithRegisterer registers the store metrics with reg.
func WithRegisterer(reg prometheus.Registerer) StoreOption {
	return func(c *config) {
		c.registerer = reg
	}
}

// defaultConfig returns a new config with default PRAGMA settings
// for performance and concurrency.
func defaultConfig() *config {
	return &config{
		pragmas: map[string]string{
			"journal_mode": "WAL",
			"synchronous":  "NORMAL",
			"cache_size":   "-16000",
			"temp_store":   "MEMORY",
			"busy_timeout": "5000",
			"foreign_keys": "OFF",
		},
	}
}

// newConfig applies opts over the defaults.
func newConfig(opts []StoreOption) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// NewContextStoreSQLite creates a new SQLite-backed ContextStore.
// Pass ":memory:" for dbPath to create an in-memory database.
func NewContextStoreSQLite(dbPath string, opts ...StoreOption) (*ContextStore, error) {
	// For in-memory databases, use a unique name with shared cache
	// This allows concurrent connections within the same database while keeping
	// different database instances separate
	if dbPath == ":memory:" {
		id := inMemoryDBCounter.Add(1)
		dbPath = fmt.Sprintf("file:ldcontext_%d?mode=memory&cache=shared", id)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(4)

	cfg := newConfig(opts)
	if err := applyPragmas(db, cfg.pragmas); err != nil {
		db.Close()
		return nil, err
	}

	store, err := newContextStore(db, true, sqliteDialect{}, cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// NewContextStoreSQLiteFromDB creates a new SQLite-backed ContextStore from an
// existing database connection. PRAGMA options are applied to db.
// The caller retains ownership of the db connection and must close it separately.
func NewContextStoreSQLiteFromDB(db *sql.DB, opts ...StoreOption) (*ContextStore, error) {
	cfg := newConfig(opts)
	if err := applyPragmas(db, cfg.pragmas); err != nil {
		return nil, err
	}

	store, err := newContextStore(db, false, sqliteDialect{}, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// applyPragmas executes the PRAGMA settings in sorted key order.
func applyPragmas(db *sql.DB, pragmas map[string]string) error {
	// Sort keys for deterministic execution order (good for testing)
	keys := make([]string, 0, len(pragmas))
	for k := range pragmas {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		pragmaSQL := fmt.Sprintf("PRAGMA %s=%s", key, pragmas[key])
		if _, err := db.Exec(pragmaSQL); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragmaSQL, err)
		}
	}
	return nil
}
