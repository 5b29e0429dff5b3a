// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/movi/services/agent"
)

// sessionPrefix namespaces session snapshots inside the database.
const sessionPrefix = "session/"

// BadgerConfig holds configuration for a BadgerStore.
type BadgerConfig struct {
	// Path is the directory for database files. Ignored when InMemory is true.
	Path string

	// InMemory disables disk persistence. Useful for tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// GCInterval is how often value log GC runs. 0 disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio that triggers a rewrite.
	GCDiscardRatio float64

	// Logger receives database logs. Nil silences badger.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns production settings for the given directory.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryBadgerConfig returns settings for tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore is a Store backed by an embedded BadgerDB.
//
// Description:
//
//	Snapshots are JSON under "session/{id}". Save reads the stored version
//	and writes the new snapshot in one read-write transaction, so badger's
//	conflict detection rejects the second of two racing writers.
//
// Thread Safety: BadgerStore is safe for concurrent use.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger

	stopGC    chan struct{}
	gcDone    chan struct{}
	closeOnce sync.Once
}

// OpenBadgerStore opens (or creates) a session database.
//
// Inputs:
//
//	cfg - Database configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*BadgerStore - The store. Caller must call Close().
//	error - Non-nil if the database cannot be opened.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent session store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create session store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &BadgerStore{db: db, logger: logger.With("component", "session_store")}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio >= 1 {
			ratio = 0.5
		}
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, ratio)
	}
	return s, nil
}

func (s *BadgerStore) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("value log GC failed", slog.String("error", err.Error()))
			}
		}
	}
}

func sessionKey(id string) []byte {
	return []byte(sessionPrefix + id)
}

// withTxn runs fn in a read-write transaction and commits on success.
func (s *BadgerStore) withTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// withReadTxn runs fn in a read-only transaction.
func (s *BadgerStore) withReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := s.db.NewTransaction(false)
	defer txn.Discard()

	return fn(txn)
}

func readState(txn *badger.Txn, id string) (*agent.SessionState, error) {
	item, err := txn.Get(sessionKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var st agent.SessionState
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &st)
	})
	if err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &st, nil
}

// Load implements Store.
func (s *BadgerStore) Load(ctx context.Context, sessionID string) (*agent.SessionState, error) {
	var st *agent.SessionState
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		st, err = readState(txn, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Save implements Store.
func (s *BadgerStore) Save(ctx context.Context, state *agent.SessionState) error {
	next := *state
	err := s.withTxn(ctx, func(txn *badger.Txn) error {
		var current uint64
		existing, err := readState(txn, state.SessionID)
		switch {
		case err == nil:
			current = existing.Version
		case errors.Is(err, ErrNotFound):
		default:
			return err
		}
		if current != state.Version {
			return ErrVersionConflict
		}

		next.Version = current + 1
		next.UpdatedAt = time.Now()
		data, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("encode session %s: %w", state.SessionID, err)
		}
		return txn.Set(sessionKey(state.SessionID), data)
	})
	if errors.Is(err, badger.ErrConflict) {
		return ErrVersionConflict
	}
	if err != nil {
		return err
	}

	state.Version = next.Version
	state.UpdatedAt = next.UpdatedAt
	return nil
}

// Update implements Store.
func (s *BadgerStore) Update(ctx context.Context, sessionID string, fn UpdateFunc) (*agent.SessionState, error) {
	var out *agent.SessionState
	err := s.withTxn(ctx, func(txn *badger.Txn) error {
		st, err := readState(txn, sessionID)
		switch {
		case errors.Is(err, ErrNotFound):
			st = agent.NewSessionState(sessionID)
		case err != nil:
			return err
		}

		if err := fn(st); err != nil {
			return err
		}
		st.SessionID = sessionID
		st.Version++
		st.UpdatedAt = time.Now()

		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("encode session %s: %w", sessionID, err)
		}
		out = st
		return txn.Set(sessionKey(sessionID), data)
	})
	if errors.Is(err, badger.ErrConflict) {
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, sessionID string) error {
	return s.withTxn(ctx, func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(sessionID))
	})
}

// List implements Store.
func (s *BadgerStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(sessionPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(sessionPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Close stops GC and closes the database. Safe to call more than once.
func (s *BadgerStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.stopGC != nil {
			close(s.stopGC)
			<-s.gcDone
		}
		err = s.db.Close()
	})
	return err
}
