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
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/movi/services/agent"
)

// storeFactories runs every contract test against each implementation.
func storeFactories(t *testing.T) map[string]func() Store {
	t.Helper()
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"badger": func() Store {
			s, err := OpenBadgerStore(InMemoryBadgerConfig())
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_LoadMissing(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()

			_, err := s.Load(context.Background(), "nope")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()
			ctx := context.Background()

			st := agent.NewSessionState("s1")
			st.AppendMessage(agent.RoleUser, "list trips")
			st.PendingAction = "list_trips"
			st.Entities = map[string]any{"trip": "Morning Express"}
			st.Stage = agent.StageDone

			require.NoError(t, s.Save(ctx, st))
			assert.Equal(t, uint64(1), st.Version)

			got, err := s.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, uint64(1), got.Version)
			assert.Equal(t, agent.StageDone, got.Stage)
			assert.Equal(t, "list_trips", got.PendingAction)
			assert.Equal(t, "Morning Express", got.Entities["trip"])
			require.Len(t, got.History, 1)
			assert.Equal(t, "list trips", got.History[0].Content)
		})
	}
}

func TestStore_LoadReturnsCopy(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()
			ctx := context.Background()

			st := agent.NewSessionState("s1")
			st.Entities = map[string]any{"trip": "a"}
			require.NoError(t, s.Save(ctx, st))

			st.Entities["trip"] = "mutated after save"
			got, err := s.Load(ctx, "s1")
			require.NoError(t, err)
			got.Entities["trip"] = "mutated after load"

			again, err := s.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, "a", again.Entities["trip"])
		})
	}
}

func TestStore_StaleVersionRejected(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()
			ctx := context.Background()

			require.NoError(t, s.Save(ctx, agent.NewSessionState("s1")))

			a, err := s.Load(ctx, "s1")
			require.NoError(t, err)
			b, err := s.Load(ctx, "s1")
			require.NoError(t, err)

			require.NoError(t, s.Save(ctx, a))
			err = s.Save(ctx, b)
			assert.True(t, errors.Is(err, ErrVersionConflict))

			// A fresh state for an existing id is also stale.
			err = s.Save(ctx, agent.NewSessionState("s1"))
			assert.True(t, errors.Is(err, ErrVersionConflict))
		})
	}
}

func TestStore_ConcurrentSavesOneWinner(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, agent.NewSessionState("s1")))

			const writers = 8
			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				st, err := s.Load(ctx, "s1")
				require.NoError(t, err)
				wg.Add(1)
				go func(st *agent.SessionState) {
					defer wg.Done()
					if s.Save(ctx, st) == nil {
						wins.Add(1)
					}
				}(st)
			}
			wg.Wait()

			assert.Equal(t, int32(1), wins.Load())
			got, err := s.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, uint64(2), got.Version)
		})
	}
}

func TestStore_DeleteAndList(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()
			ctx := context.Background()

			for _, id := range []string{"b", "a", "c"} {
				require.NoError(t, s.Save(ctx, agent.NewSessionState(id)))
			}
			ids, err := s.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b", "c"}, ids)

			require.NoError(t, s.Delete(ctx, "b"))
			require.NoError(t, s.Delete(ctx, "missing"))

			ids, err = s.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "c"}, ids)

			_, err = s.Load(ctx, "b")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestBadgerStore_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenBadgerStore(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	st := agent.NewSessionState("durable")
	st.Stage = agent.StageSuspended
	st.AwaitingConfirmation = true
	st.PendingAction = "delete_trip"
	require.NoError(t, s.Save(ctx, st))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	reopened, err := OpenBadgerStore(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load(ctx, "durable")
	require.NoError(t, err)
	assert.True(t, got.IsSuspended())
	assert.Equal(t, "delete_trip", got.PendingAction)
}

func TestOpenBadgerStore_RequiresPath(t *testing.T) {
	_, err := OpenBadgerStore(BadgerConfig{})
	assert.Error(t, err)
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())

	_, err := s.Load(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrClosed))
	assert.True(t, errors.Is(s.Save(context.Background(), agent.NewSessionState("x")), ErrClosed))
}

func TestStore_Update(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()
			ctx := context.Background()

			created, err := s.Update(ctx, "s1", func(st *agent.SessionState) error {
				st.CurrentPage = "busDashboard"
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, uint64(1), created.Version)

			stale, err := s.Load(ctx, "s1")
			require.NoError(t, err)

			updated, err := s.Update(ctx, "s1", func(st *agent.SessionState) error {
				assert.Equal(t, "busDashboard", st.CurrentPage)
				st.TurnCount++
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, uint64(2), updated.Version)
			assert.Equal(t, 1, updated.TurnCount)

			// A CAS save from before the update now loses.
			assert.True(t, errors.Is(s.Save(ctx, stale), ErrVersionConflict))
		})
	}
}

func TestStore_UpdateAbortsOnError(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, agent.NewSessionState("s1")))

			sentinel := errors.New("not suspended")
			_, err := s.Update(ctx, "s1", func(st *agent.SessionState) error {
				st.PendingAction = "delete_trip"
				return sentinel
			})
			assert.True(t, errors.Is(err, sentinel))

			got, err := s.Load(ctx, "s1")
			require.NoError(t, err)
			assert.Empty(t, got.PendingAction)
			assert.Equal(t, uint64(1), got.Version)
		})
	}
}
