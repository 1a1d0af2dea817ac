package session

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReaper(t *testing.T, store *Store, ttl, grace time.Duration, expired *[]string) *Reaper {
	t.Helper()

	r, err := NewReaper(ReaperConfig{
		Store:       store,
		TTL:         ttl,
		GracePeriod: grace,
		Interval:    time.Minute,
		Logger:      zerolog.Nop(),
		OnExpire: func(id, reason string) {
			*expired = append(*expired, id)
			_ = store.Update(id, func(s *Session) error {
				return s.Transition(StateAborted)
			})
			store.Evict(id)
		},
	})
	require.NoError(t, err)
	return r
}

func TestReaper_Sweep(t *testing.T) {
	t.Run("expires idle sessions once", func(t *testing.T) {
		store := newTestStore()
		snap := store.Create(Params{})

		require.NoError(t, store.Update(snap.ID, func(s *Session) error {
			s.LastActivityAt = time.Now().Add(-10 * time.Minute)
			return nil
		}))

		var expired []string
		r := testReaper(t, store, 5*time.Minute, 10*time.Second, &expired)

		r.Sweep()
		assert.Equal(t, []string{snap.ID}, expired)
		assert.Equal(t, 0, store.Count())

		// the session is gone now, a second sweep sees nothing
		r.Sweep()
		assert.Len(t, expired, 1)
	})

	t.Run("leaves fresh sessions alone", func(t *testing.T) {
		store := newTestStore()
		store.Create(Params{})

		var expired []string
		r := testReaper(t, store, 5*time.Minute, 10*time.Second, &expired)

		r.Sweep()
		assert.Empty(t, expired)
		assert.Equal(t, 1, store.Count())
	})

	t.Run("skips terminal sessions", func(t *testing.T) {
		store := newTestStore()
		snap := store.Create(Params{InitialState: StateProcessing})
		require.NoError(t, store.Update(snap.ID, func(s *Session) error {
			if err := s.Transition(StateCompleted); err != nil {
				return err
			}
			s.LastActivityAt = time.Now().Add(-time.Hour)
			return nil
		}))

		var expired []string
		r := testReaper(t, store, 5*time.Minute, 10*time.Second, &expired)

		r.Sweep()
		assert.Empty(t, expired)
	})

	t.Run("expires disconnected sessions after grace period", func(t *testing.T) {
		store := newTestStore()
		snap := store.Create(Params{})
		require.NoError(t, store.Update(snap.ID, func(s *Session) error {
			s.Unbind()
			s.DisconnectedAt = time.Now().Add(-time.Minute)
			return nil
		}))

		var expired []string
		r := testReaper(t, store, time.Hour, 10*time.Second, &expired)

		r.Sweep()
		assert.Equal(t, []string{snap.ID}, expired)
	})

	t.Run("keeps disconnected sessions within grace period", func(t *testing.T) {
		store := newTestStore()
		snap := store.Create(Params{})
		require.NoError(t, store.Update(snap.ID, func(s *Session) error {
			s.Unbind()
			return nil
		}))

		var expired []string
		r := testReaper(t, store, time.Hour, time.Minute, &expired)

		r.Sweep()
		assert.Empty(t, expired)
	})
}

func TestReaper_StartStop(t *testing.T) {
	store := newTestStore()
	var expired []string
	r := testReaper(t, store, time.Minute, time.Second, &expired)

	require.NoError(t, r.Start())
	assert.True(t, r.IsRunning())
	assert.Error(t, r.Start())

	require.NoError(t, r.Stop())
	assert.False(t, r.IsRunning())
	assert.Error(t, r.Stop())
}

func TestNewReaper_Validation(t *testing.T) {
	_, err := NewReaper(ReaperConfig{Store: nil, OnExpire: func(string, string) {}})
	assert.Error(t, err)

	_, err = NewReaper(ReaperConfig{Store: newTestStore()})
	assert.Error(t, err)
}
