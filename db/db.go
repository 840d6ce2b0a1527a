package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at TEXT NOT NULL,
		zone TEXT NOT NULL,
		field TEXT NOT NULL,
		value REAL NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_readings_zone_time ON readings (zone, recorded_at)`,
	`CREATE TABLE IF NOT EXISTS heater_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at TEXT NOT NULL,
		heater_on BOOLEAN NOT NULL,
		source TEXT NOT NULL,
		main_temperature REAL
	)`,
	`CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at TEXT NOT NULL,
		topic TEXT NOT NULL,
		value TEXT NOT NULL,
		outcome TEXT NOT NULL
	)`,
}

// Open opens the history database at dbPath, creating it and its tables if needed.
func Open(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer; an in-memory database is per connection
	db.SetMaxOpenConns(1)

	if err := ApplyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// ApplyMigrations creates any missing tables.
func ApplyMigrations(db *sql.DB) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	for _, stmt := range schema {
		if _, err := tx.Exec(stmt); err != nil {
			RollbackTransaction(tx)
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	if err := CommitTransaction(tx); err != nil {
		return err
	}

	log.Debug().Msg("History schema ready")
	return nil
}
