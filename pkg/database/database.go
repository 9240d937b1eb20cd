package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DB represents the database connection
type DB struct {
	*sqlx.DB
	path string
}

// NewDB opens (or creates) the SQLite database at path and initializes the schema.
// ":memory:" gives a private in-memory database.
func NewDB(path string) (*DB, error) {
	if path == ":memory:" {
		db, err := sqlx.Connect("sqlite", ":memory:?_pragma=foreign_keys(1)")
		if err != nil {
			return nil, fmt.Errorf("failed to connect to in-memory database: %w", err)
		}
		// Every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)

		database := &DB{DB: db, path: path}
		if err := database.InitSchema(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		return database, nil
	}

	// Ensure data directory exists for file-based database
	dataDir := filepath.Dir(path)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	connStr := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sqlx.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dbWrapper := &DB{DB: db, path: path}
	if err := dbWrapper.InitSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return dbWrapper, nil
}

// InitSchema initializes the database schema
func (db *DB) InitSchema() error {
	schema := `
	-- Marketplace users
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY, -- UUID
		full_name TEXT NOT NULL DEFAULT '',
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	-- Product listings
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY, -- productId, UUID
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		comment TEXT NOT NULL DEFAULT '',
		price REAL NOT NULL,
		origin_address TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL DEFAULT 1,
		available_quantity INTEGER NOT NULL DEFAULT 1,
		images TEXT NOT NULL DEFAULT '[]', -- JSON array of upload paths
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE
	);

	-- Purchases
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY, -- transactionId, UUID
		buyer_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		product_title TEXT NOT NULL,
		product_price REAL NOT NULL,
		quantity INTEGER NOT NULL,
		total REAL NOT NULL,
		status TEXT NOT NULL DEFAULT 'completed',
		created_at DATETIME NOT NULL,
		FOREIGN KEY (buyer_id) REFERENCES users(id),
		FOREIGN KEY (seller_id) REFERENCES users(id),
		FOREIGN KEY (product_id) REFERENCES products(id)
	);

	-- Smoke run history
	CREATE TABLE IF NOT EXISTS smoke_runs (
		id TEXT PRIMARY KEY, -- UUID
		base_url TEXT NOT NULL,
		token_source TEXT NOT NULL DEFAULT '', -- register, login, or empty
		product_id TEXT NOT NULL DEFAULT '',
		aborted BOOLEAN NOT NULL DEFAULT FALSE,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS smoke_steps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		name TEXT NOT NULL,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0, -- 0 when no response was received
		body_kind TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES smoke_runs(id) ON DELETE CASCADE
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users(username) WHERE username != '';
	CREATE INDEX IF NOT EXISTS idx_products_active ON products(is_active, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_buyer ON transactions(buyer_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_seller ON transactions(seller_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_smoke_runs_started ON smoke_runs(started_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_smoke_steps_run_seq ON smoke_steps(run_id, seq);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Path returns the database location
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck() error {
	var result int
	err := db.Get(&result, "SELECT 1")
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// GetStats returns row counts per table
func (db *DB) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	tables := []string{"users", "products", "transactions", "smoke_runs", "smoke_steps"}

	for _, table := range tables {
		var count int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
		if err := db.Get(&count, query); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table+"_count"] = count
	}

	var journalMode string
	if err := db.Get(&journalMode, "PRAGMA journal_mode"); err == nil {
		stats["journal_mode"] = journalMode
	}

	return stats, nil
}

// UserRepository returns a new user repository
func (db *DB) UserRepository() *UserRepository {
	return NewUserRepository(db)
}

// ProductRepository returns a new product repository
func (db *DB) ProductRepository() *ProductRepository {
	return NewProductRepository(db)
}

// TransactionRepository returns a new transaction repository
func (db *DB) TransactionRepository() *TransactionRepository {
	return NewTransactionRepository(db)
}

// RunRepository returns a new smoke run repository
func (db *DB) RunRepository() *RunRepository {
	return NewRunRepository(db)
}

// StepRepository returns a new smoke step repository
func (db *DB) StepRepository() *StepRepository {
	return NewStepRepository(db)
}
