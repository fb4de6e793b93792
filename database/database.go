package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Open connects to the store with the given driver ("postgres", "pgx" or "sqlite3")
func Open(driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite3" {
		// one connection keeps in-memory databases alive and serialises writers
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Successfully connected to database (%s)", driver)
	return db, nil
}

// CreateTables creates the necessary tables if they don't exist
func CreateTables(db *sql.DB, driver string) error {
	queries := postgresSchema
	if driver == "sqlite3" {
		queries = sqliteSchema
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		name TEXT,
		image_url TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS price_history (
		id BIGSERIAL PRIMARY KEY,
		product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		price DOUBLE PRECISION NOT NULL,
		observed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id BIGSERIAL PRIMARY KEY,
		product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		email TEXT NOT NULL,
		target_price DOUBLE PRECISION NOT NULL CHECK (target_price > 0),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_price_history_product ON price_history (product_id, observed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts (product_id) WHERE is_active`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		name TEXT,
		image_url TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS price_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		price REAL NOT NULL,
		observed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		email TEXT NOT NULL,
		target_price REAL NOT NULL CHECK (target_price > 0),
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_price_history_product ON price_history (product_id, observed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts (product_id) WHERE is_active`,
}

// IsUniqueViolation reports whether err is a unique constraint failure on any supported driver
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}

	return false
}
