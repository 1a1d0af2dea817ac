package gateway

import (
	"github.com/rs/zerolog"
)

// Notifier delivers orchestration events to clients as JSON frames.
// Deliveries to connections that are already gone are dropped quietly;
// the reconnect grace period covers that window.
type Notifier struct {
	registry *Registry
	logger   zerolog.Logger
}

// NewNotifier creates a notifier over the connection registry
func NewNotifier(registry *Registry, logger zerolog.Logger) *Notifier {
	return &Notifier{registry: registry, logger: logger}
}

func (n *Notifier) send(connectionID string, msg ServerMessage) {
	conn, ok := n.registry.Get(connectionID)
	if !ok {
		n.logger.Debug().
			Str("connection_id", connectionID).
			Str("type", msg.Type).
			Msg("Delivery to absent connection dropped")
		return
	}

	if err := conn.WriteJSON(msg); err != nil {
		n.logger.Warn().
			Str("connection_id", connectionID).
			Str("type", msg.Type).
			Err(err).
			Msg("Frame delivery failed")
	}
}

func (n *Notifier) InterviewStarted(connectionID, sessionID, question string) {
	n.send(connectionID, ServerMessage{Type: TypeInterviewStarted, SessionID: sessionID, Question: question})
}

func (n *Notifier) RecognitionReady(connectionID, sessionID string) {
	n.send(connectionID, ServerMessage{Type: TypeSTTConnected, SessionID: sessionID})
}

func (n *Notifier) InterimTranscript(connectionID, sessionID, text string) {
	n.send(connectionID, ServerMessage{Type: TypeInterimTranscript, SessionID: sessionID, Text: text})
}

func (n *Notifier) Transcript(connectionID, sessionID, speaker, text string) {
	n.send(connectionID, ServerMessage{Type: TypeTranscript, SessionID: sessionID, Speaker: speaker, Text: text})
}

func (n *Notifier) AudioProduced(connectionID, sessionID, audioURL string) {
	n.send(connectionID, ServerMessage{Type: TypeAudioGenerated, SessionID: sessionID, AudioURL: audioURL})
}

func (n *Notifier) AudioFinished(connectionID, sessionID string) {
	n.send(connectionID, ServerMessage{Type: TypeAudioFinished, SessionID: sessionID})
}

func (n *Notifier) InterviewCompleted(connectionID, sessionID, summary string) {
	n.send(connectionID, ServerMessage{Type: TypeInterviewComplete, SessionID: sessionID, Summary: summary})
}

func (n *Notifier) SessionError(connectionID, sessionID, code, message string) {
	n.send(connectionID, ServerMessage{Type: TypeError, SessionID: sessionID, Code: code, Message: message})
}
