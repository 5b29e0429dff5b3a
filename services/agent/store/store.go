// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists session state between turns.
//
// Saves are compare-and-swap on SessionState.Version: a save succeeds only
// if the stored version equals the version the caller loaded, so two
// writers racing on one session cannot both win.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/movi/services/agent"
)

// Sentinel errors for session stores.
var (
	// ErrNotFound indicates no state is stored for the session.
	ErrNotFound = errors.New("session state not found")

	// ErrVersionConflict indicates the stored state changed since it was loaded.
	ErrVersionConflict = errors.New("session state version conflict")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("session store closed")
)

// UpdateFunc mutates a state inside Store.Update.
type UpdateFunc func(state *agent.SessionState) error

// Store is durable, keyed-by-session snapshot storage.
type Store interface {
	// Load returns a copy of the stored state, or ErrNotFound.
	Load(ctx context.Context, sessionID string) (*agent.SessionState, error)

	// Save stores state if state.Version matches the stored version (0 for a
	// new session). On success state.Version and UpdatedAt are advanced.
	Save(ctx context.Context, state *agent.SessionState) error

	// Update atomically applies fn to the stored state (a new state when
	// absent) and saves the result. An error from fn aborts without writing.
	Update(ctx context.Context, sessionID string, fn UpdateFunc) (*agent.SessionState, error)

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// List returns all stored session ids in sorted order.
	List(ctx context.Context) ([]string, error)

	// Close releases resources.
	Close() error
}

// MemoryStore is an in-process Store.
//
// Thread Safety: MemoryStore is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*agent.SessionState
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*agent.SessionState)}
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, sessionID string) (*agent.SessionState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return st.Clone()
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, state *agent.SessionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	var current uint64
	if existing, ok := s.sessions[state.SessionID]; ok {
		current = existing.Version
	}
	if current != state.Version {
		return ErrVersionConflict
	}

	next := *state
	next.Version = current + 1
	next.UpdatedAt = time.Now()

	stored, err := next.Clone()
	if err != nil {
		return err
	}
	s.sessions[state.SessionID] = stored

	state.Version = next.Version
	state.UpdatedAt = next.UpdatedAt
	return nil
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, sessionID string, fn UpdateFunc) (*agent.SessionState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	var (
		st  *agent.SessionState
		err error
	)
	if existing, ok := s.sessions[sessionID]; ok {
		if st, err = existing.Clone(); err != nil {
			return nil, err
		}
	} else {
		st = agent.NewSessionState(sessionID)
	}

	if err := fn(st); err != nil {
		return nil, err
	}
	st.SessionID = sessionID
	st.Version++
	st.UpdatedAt = time.Now()

	stored, err := st.Clone()
	if err != nil {
		return nil, err
	}
	s.sessions[sessionID] = stored
	return st, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.sessions, sessionID)
	return nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.sessions = nil
	return nil
}
