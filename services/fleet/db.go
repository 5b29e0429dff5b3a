// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fleet holds the fleet operations domain: the SQLite schema and
// seed data, the repository used by tools, the actions the assistant can
// run and the consequence checkers consulted before high-impact actions.
package fleet

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrNotFound indicates a named fleet record does not exist.
	ErrNotFound = errors.New("fleet record not found")

	// ErrConflict indicates the change would violate a fleet constraint,
	// such as assigning a vehicle that is already deployed.
	ErrConflict = errors.New("fleet constraint violated")

	// ErrEmptyDSN indicates Open was called without a data source.
	ErrEmptyDSN = errors.New("fleet database DSN must not be empty")
)

// DB wraps the fleet SQLite database.
//
// Thread Safety: DB is safe for concurrent use.
type DB struct {
	sql    *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the fleet database and applies the schema.
//
// Description:
//
//	The DSN is handed to the modernc SQLite driver. ":memory:" opens a
//	private in-memory database; the pool is then pinned to one connection
//	so every query sees the same data. On-disk databases run in WAL mode.
//
// Inputs:
//
//	dsn - SQLite DSN or file path
//	logger - Optional logger; nil uses slog.Default()
//
// Outputs:
//
//	*DB - The opened database
//	error - Non-nil if the database cannot be opened or migrated
func Open(dsn string, logger *slog.Logger) (*DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrEmptyDSN
	}
	if logger == nil {
		logger = slog.Default()
	}

	inMemory := isMemoryDSN(dsn)
	if !inMemory && !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(dsn); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open fleet database: %w", err)
	}

	pragmas := []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"}
	if inMemory {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply fleet schema: %w", err)
	}

	logger.Info("Fleet database opened", "dsn", dsn, "in_memory", inMemory)
	return &DB{sql: db, logger: logger}, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// Close closes the database.
func (d *DB) Close() error {
	return d.sql.Close()
}

// Ping checks the database connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

// withTx runs fn in a transaction, committing on success.
func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
