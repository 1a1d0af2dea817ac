package session

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewStore(zerolog.Nop())
}

func TestStore_Create(t *testing.T) {
	store := newTestStore()

	snap := store.Create(Params{
		TechStack:  "Go, PostgreSQL",
		Position:   "Backend Engineer",
		Difficulty: "beta",
	})

	assert.Len(t, snap.ID, 8)
	assert.Equal(t, StateSpeaking, snap.State)
	assert.Equal(t, 0, snap.QuestionIndex)
	assert.Equal(t, 5, snap.MaxQuestions)
	assert.Equal(t, 1, store.Count())

	t.Run("ids are unique", func(t *testing.T) {
		other := store.Create(Params{})
		assert.NotEqual(t, snap.ID, other.ID)
	})
}

func TestStore_Update(t *testing.T) {
	store := newTestStore()
	snap := store.Create(Params{})

	t.Run("should mutate under lock", func(t *testing.T) {
		err := store.Update(snap.ID, func(s *Session) error {
			s.PendingAnswer = "so far"
			return nil
		})
		require.NoError(t, err)

		got, ok := store.Get(snap.ID)
		require.True(t, ok)
		assert.Equal(t, "so far", got.PendingAnswer)
	})

	t.Run("should return ErrNotFound for unknown id", func(t *testing.T) {
		err := store.Update("ghost-id", func(s *Session) error { return nil })
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_Evict(t *testing.T) {
	store := newTestStore()
	snap := store.Create(Params{})

	assert.True(t, store.Evict(snap.ID))
	assert.Equal(t, 0, store.Count())

	t.Run("second eviction is a silent no-op", func(t *testing.T) {
		assert.False(t, store.Evict(snap.ID))
	})
}

func TestSession_Transition(t *testing.T) {
	store := newTestStore()

	t.Run("full turn cycle", func(t *testing.T) {
		snap := store.Create(Params{})

		steps := []State{StateActive, StateProcessing, StateSpeaking, StateActive}
		for _, to := range steps {
			err := store.Update(snap.ID, func(s *Session) error {
				return s.Transition(to)
			})
			require.NoError(t, err, "transition to %s", to)
		}
	})

	t.Run("rejects illegal moves", func(t *testing.T) {
		snap := store.Create(Params{InitialState: StateActive})

		err := store.Update(snap.ID, func(s *Session) error {
			return s.Transition(StateSpeaking)
		})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("abort allowed from any non-terminal state", func(t *testing.T) {
		for _, from := range []State{StateSpeaking, StateActive, StateProcessing} {
			snap := store.Create(Params{InitialState: from})
			err := store.Update(snap.ID, func(s *Session) error {
				return s.Transition(StateAborted)
			})
			require.NoError(t, err, "abort from %s", from)
		}
	})

	t.Run("terminal states accept nothing", func(t *testing.T) {
		snap := store.Create(Params{InitialState: StateProcessing})
		require.NoError(t, store.Update(snap.ID, func(s *Session) error {
			return s.Transition(StateCompleted)
		}))

		err := store.Update(snap.ID, func(s *Session) error {
			return s.Transition(StateActive)
		})
		assert.ErrorIs(t, err, ErrTerminal)

		err = store.Update(snap.ID, func(s *Session) error {
			return s.Transition(StateAborted)
		})
		assert.ErrorIs(t, err, ErrTerminal)
	})
}

func TestSession_AdvanceQuestion(t *testing.T) {
	store := newTestStore()
	snap := store.Create(Params{MaxQuestions: 2})

	advance := func() error {
		return store.Update(snap.ID, func(s *Session) error {
			return s.AdvanceQuestion()
		})
	}

	require.NoError(t, advance())
	require.NoError(t, advance())

	// counter is bounded by MaxQuestions
	assert.ErrorIs(t, advance(), ErrQuestionLimit)

	got, _ := store.Get(snap.ID)
	assert.Equal(t, 2, got.QuestionIndex)
}

func TestSession_BindUnbind(t *testing.T) {
	store := newTestStore()
	snap := store.Create(Params{})

	require.NoError(t, store.Update(snap.ID, func(s *Session) error {
		s.Bind("conn-1")
		return nil
	}))

	got, _ := store.Get(snap.ID)
	assert.Equal(t, "conn-1", got.ConnectionID)
	assert.True(t, got.DisconnectedAt.IsZero())

	require.NoError(t, store.Update(snap.ID, func(s *Session) error {
		s.Unbind()
		return nil
	}))

	got, _ = store.Get(snap.ID)
	assert.Empty(t, got.ConnectionID)
	assert.False(t, got.DisconnectedAt.IsZero())
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	store := newTestStore()
	snap := store.Create(Params{MaxQuestions: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Update(snap.ID, func(s *Session) error {
				return s.AdvanceQuestion()
			})
		}()
	}
	wg.Wait()

	got, _ := store.Get(snap.ID)
	assert.Equal(t, 50, got.QuestionIndex)
}
