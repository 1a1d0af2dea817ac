package speech

import "context"

// Noop is the disabled-synthesis speaker. It emits audioFinished with no
// payload for every Speak call so turns proceed text-only.
type Noop struct {
	events chan Event
}

// NewNoop creates a disabled speaker
func NewNoop() *Noop {
	return &Noop{events: make(chan Event, eventBuffer)}
}

// Events returns the synthesis event stream
func (n *Noop) Events() <-chan Event {
	return n.events
}

// Speak immediately reports the utterance finished
func (n *Noop) Speak(_ context.Context, sessionID, _ string) error {
	n.events <- Event{SessionID: sessionID, Kind: EventAudioFinished}
	return nil
}
