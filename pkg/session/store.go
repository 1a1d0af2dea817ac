package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prep-piper/piper/internal/observability"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a session id is unknown to the store
	ErrNotFound = errors.New("session not found")
	// ErrTerminal is returned for transitions out of a terminal state
	ErrTerminal = errors.New("session is in a terminal state")
	// ErrInvalidTransition is returned for moves the lifecycle graph forbids
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrQuestionLimit is returned when the answer-cycle counter is exhausted
	ErrQuestionLimit = errors.New("question limit reached")
)

// Store owns all live sessions. It is the only mutable shared resource of
// the orchestration core; every mutation goes through Update.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   zerolog.Logger
}

// NewStore creates an empty session store
func NewStore(logger zerolog.Logger) *Store {
	observability.EnsureRegistered()

	return &Store{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Params configures a new session
type Params struct {
	TechStack    string
	Position     string
	Difficulty   string
	MaxQuestions int
	InitialState State
}

// Create registers a new session and returns its snapshot
func (st *Store) Create(p Params) Snapshot {
	if p.MaxQuestions <= 0 {
		p.MaxQuestions = 5
	}
	if p.InitialState == "" {
		p.InitialState = StateSpeaking
	}

	now := time.Now()
	sess := &Session{
		ID:             newSessionID(),
		TechStack:      p.TechStack,
		Position:       p.Position,
		Difficulty:     p.Difficulty,
		State:          p.InitialState,
		MaxQuestions:   p.MaxQuestions,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	st.mu.Lock()
	st.sessions[sess.ID] = sess
	count := len(st.sessions)
	st.mu.Unlock()

	observability.RecordSessionStarted()
	observability.SetActiveSessions(count)

	st.logger.Info().
		Str("session_id", sess.ID).
		Str("position", p.Position).
		Str("tech_stack", p.TechStack).
		Msg("Session created")

	return sess.Snapshot()
}

// Update runs fn against the session under its exclusive lock. Returns
// ErrNotFound for unknown ids; any error from fn is passed through.
func (st *Store) Update(id string, fn func(*Session) error) error {
	st.mu.RLock()
	sess, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return fn(sess)
}

// Get returns a snapshot of the session
func (st *Store) Get(id string) (Snapshot, bool) {
	st.mu.RLock()
	sess, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.Snapshot(), true
}

// Evict removes the session from the store. Evicting an absent session is a
// silent no-op so that concurrent teardown paths stay idempotent.
func (st *Store) Evict(id string) bool {
	st.mu.Lock()
	_, ok := st.sessions[id]
	if ok {
		delete(st.sessions, id)
	}
	count := len(st.sessions)
	st.mu.Unlock()

	if ok {
		observability.SetActiveSessions(count)
		st.logger.Info().Str("session_id", id).Msg("Session evicted")
	}
	return ok
}

// Count returns the number of live sessions
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Snapshots returns point-in-time copies of all live sessions
func (st *Store) Snapshots() []Snapshot {
	st.mu.RLock()
	sessions := make([]*Session, 0, len(st.sessions))
	for _, sess := range st.sessions {
		sessions = append(sessions, sess)
	}
	st.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(sessions))
	for _, sess := range sessions {
		sess.mu.Lock()
		snaps = append(snaps, sess.Snapshot())
		sess.mu.Unlock()
	}
	return snaps
}

// newSessionID returns a short opaque id, first uuid group
func newSessionID() string {
	id := uuid.NewString()
	return strings.SplitN(id, "-", 2)[0]
}
