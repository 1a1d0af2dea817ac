// Package speech defines the synthesis capability consumed by the
// orchestration core. The disabled no-op speaker is a first-class runtime
// mode: turns proceed text-only when synthesis is off or degraded.
package speech

import "context"

// EventKind identifies synthesis events
type EventKind string

const (
	// EventAudioProduced means an audio artifact is ready for delivery
	EventAudioProduced EventKind = "audio_produced"
	// EventAudioFinished means delivery for the utterance is complete.
	// Emitted exactly once per Speak call, with or without audio.
	EventAudioFinished EventKind = "audio_finished"
	// EventError is a synthesis failure scoped to one session
	EventError EventKind = "error"
)

// Event is a synthesis lifecycle event tagged with its owning session
type Event struct {
	SessionID string
	Kind      EventKind
	Filename  string
	AudioURL  string
	Err       error
}

// Speaker is the synthesis capability. Implementations guarantee that every
// Speak call eventually emits audioFinished (possibly with no audio payload)
// or an error event.
type Speaker interface {
	Speak(ctx context.Context, sessionID, text string) error
	Events() <-chan Event
}
