// Package transcribe defines the speech-recognition capability consumed by
// the orchestration core, and its Deepgram live-streaming adapter.
package transcribe

import "context"

// EventKind identifies recognition events
type EventKind string

const (
	// EventConnected means the recognition channel is open and accepting audio
	EventConnected EventKind = "connected"
	// EventInterim is a non-authoritative transcript preview
	EventInterim EventKind = "interim"
	// EventFinal is the authoritative committed transcript for an utterance
	EventFinal EventKind = "final"
	// EventError is a provider failure scoped to one session
	EventError EventKind = "error"
	// EventClosed means the recognition channel was closed
	EventClosed EventKind = "closed"
)

// Event is a recognition event tagged with its owning session
type Event struct {
	SessionID  string
	Kind       EventKind
	Text       string
	Confidence float64
	Err        error
}

// Transcriber is the recognition capability. Implementations own their
// provider connections per session and publish events on a shared channel;
// the caller multiplexes by SessionID.
type Transcriber interface {
	// StartSession opens a recognition channel for the session
	StartSession(ctx context.Context, sessionID string) error
	// PushAudio forwards an audio chunk in arrival order
	PushAudio(sessionID string, chunk []byte) error
	// Finalize signals that no more audio will arrive for the current turn
	Finalize(sessionID string) error
	// CloseSession tears down the recognition channel for the session
	CloseSession(sessionID string) error
	// Active reports whether the session has an open recognition channel
	Active(sessionID string) bool
	// Events returns the shared event stream
	Events() <-chan Event
	// Close tears down all sessions
	Close() error
}
