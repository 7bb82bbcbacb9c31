package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Open opens the DuckDB database at path and applies the schema. An empty
// path opens an in-memory database, which tests rely on.
func Open(path string) (*sql.DB, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	// DuckDB works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("INSTALL json"); err != nil {
		db.Close()
		return nil, fmt.Errorf("install json extension: %w", err)
	}
	if _, err := db.Exec("LOAD json"); err != nil {
		db.Close()
		return nil, fmt.Errorf("load json extension: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

var schema = []string{
	`CREATE SEQUENCE IF NOT EXISTS seq_rows START 1`,
	`CREATE TABLE IF NOT EXISTS accounts (
		uid VARCHAR PRIMARY KEY,
		email VARCHAR NOT NULL UNIQUE,
		display_name VARCHAR NOT NULL,
		password_hash VARCHAR NOT NULL,
		salt VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL,
		last_sign_in_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		token VARCHAR PRIMARY KEY,
		uid VARCHAR NOT NULL,
		issued_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		uid VARCHAR PRIMARY KEY,
		doc JSON NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS memories (
		id VARCHAR PRIMARY KEY,
		uid VARCHAR NOT NULL,
		seq BIGINT NOT NULL,
		doc JSON NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id VARCHAR PRIMARY KEY,
		uid VARCHAR NOT NULL,
		seq BIGINT NOT NULL,
		doc JSON NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS calendar_events (
		id VARCHAR NOT NULL,
		uid VARCHAR NOT NULL,
		doc JSON NOT NULL,
		PRIMARY KEY (uid, id)
	)`,
}

func migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
