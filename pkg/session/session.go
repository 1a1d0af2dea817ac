package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/prep-piper/piper/internal/observability"
)

// Speaker roles for transcript entries
const (
	SpeakerInterviewer = "interviewer"
	SpeakerCandidate   = "candidate"
)

// Entry is a single committed transcript line
type Entry struct {
	SessionID string    `json:"sessionId"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the central interview session record. All fields are mutated
// only inside Store.Update, which holds the per-session lock.
type Session struct {
	ID           string
	ConnectionID string // empty while no transport connection is bound

	TechStack  string
	Position   string
	Difficulty string

	State         State
	QuestionIndex int
	MaxQuestions  int

	Transcript    []Entry
	PendingAnswer string

	CreatedAt      time.Time
	LastActivityAt time.Time
	DisconnectedAt time.Time // zero while a connection is bound

	mu sync.Mutex
}

// Transition moves the session to the given state, enforcing the lifecycle
// graph. Transitions out of a terminal state return ErrTerminal.
func (s *Session) Transition(to State) error {
	if s.State.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrTerminal, s.State, to)
	}
	if !canTransition(s.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
	}

	observability.RecordStateTransition(string(s.State), string(to))
	s.State = to
	s.Touch()

	return nil
}

// Touch updates the activity timestamp
func (s *Session) Touch() {
	s.LastActivityAt = time.Now()
}

// AppendTranscript commits a transcript entry
func (s *Session) AppendTranscript(speaker, text string) {
	s.Transcript = append(s.Transcript, Entry{
		SessionID: s.ID,
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now(),
	})
}

// AdvanceQuestion increments the answer-cycle counter. The counter never
// exceeds MaxQuestions.
func (s *Session) AdvanceQuestion() error {
	if s.QuestionIndex >= s.MaxQuestions {
		return ErrQuestionLimit
	}
	s.QuestionIndex++
	observability.RecordTurnCompleted()
	return nil
}

// Bind attaches a transport connection, replacing any prior binding
func (s *Session) Bind(connectionID string) {
	s.ConnectionID = connectionID
	s.DisconnectedAt = time.Time{}
	s.Touch()
}

// Unbind detaches the transport connection and starts the grace period.
// The session itself stays alive awaiting a possible reconnect.
func (s *Session) Unbind() {
	s.ConnectionID = ""
	s.DisconnectedAt = time.Now()
}

// Snapshot returns a copy safe to use outside the store lock
func (s *Session) Snapshot() Snapshot {
	transcript := make([]Entry, len(s.Transcript))
	copy(transcript, s.Transcript)

	return Snapshot{
		ID:             s.ID,
		ConnectionID:   s.ConnectionID,
		TechStack:      s.TechStack,
		Position:       s.Position,
		Difficulty:     s.Difficulty,
		State:          s.State,
		QuestionIndex:  s.QuestionIndex,
		MaxQuestions:   s.MaxQuestions,
		Transcript:     transcript,
		PendingAnswer:  s.PendingAnswer,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		DisconnectedAt: s.DisconnectedAt,
	}
}

// Snapshot is a point-in-time copy of a session without the lock
type Snapshot struct {
	ID             string
	ConnectionID   string
	TechStack      string
	Position       string
	Difficulty     string
	State          State
	QuestionIndex  int
	MaxQuestions   int
	Transcript     []Entry
	PendingAnswer  string
	CreatedAt      time.Time
	LastActivityAt time.Time
	DisconnectedAt time.Time
}
