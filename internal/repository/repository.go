// Package repository is the local SQLite backend for gallery records.
package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"photogallery/internal/logging"
)

// Repository wraps the SQLite handle and a statement builder.
type Repository struct {
	DB      *sql.DB
	Builder squirrel.StatementBuilderType
	path    string
}

// NewRepository opens (creating if needed) the database at path.
func NewRepository(path string) (*Repository, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logging.Log.Debugf("Opened SQLite database at %s", path)
	return &Repository{
		DB:      db,
		Builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		path:    path,
	}, nil
}

// Close closes the database connection.
func (s *Repository) Close() error {
	return s.DB.Close()
}

// Path returns the database file path.
func (s *Repository) Path() string {
	return s.path
}
