package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/prep-piper/piper/internal/observability"
	"github.com/prep-piper/piper/pkg/interview"
	"github.com/prep-piper/piper/pkg/session"
)

// StartParams is the interview profile supplied by the client
type StartParams struct {
	TechStack  string
	Position   string
	Difficulty string
}

// StartInterview creates a session bound to the connection, opens the
// recognition channel, and speaks the opening question. The session starts
// in the speaking state and becomes active once the opening audio finishes.
func (o *Orchestrator) StartInterview(ctx context.Context, connectionID string, p StartParams) (session.Snapshot, error) {
	if connectionID == "" {
		return session.Snapshot{}, fmt.Errorf("connection id is required")
	}

	snap := o.store.Create(session.Params{
		TechStack:    p.TechStack,
		Position:     p.Position,
		Difficulty:   p.Difficulty,
		MaxQuestions: o.maxQuestions,
		InitialState: session.StateSpeaking,
	})

	opening := o.interviewer.OpeningQuestion(o.profile(snap))

	err := o.store.Update(snap.ID, func(s *session.Session) error {
		s.Bind(connectionID)
		s.AppendTranscript(session.SpeakerInterviewer, opening)
		return nil
	})
	if err != nil {
		return session.Snapshot{}, err
	}

	if err := o.startRecognition(ctx, snap.ID); err != nil {
		o.logger.Error().
			Str("session_id", snap.ID).
			Err(err).
			Msg("Recognition channel failed to open")
		o.terminate(snap.ID, session.StateAborted, "recognition_failed",
			"Speech recognition is unavailable right now. Please try again.")
		return session.Snapshot{}, err
	}

	o.notifier.InterviewStarted(connectionID, snap.ID, opening)

	o.logger.Info().
		Str("session_id", snap.ID).
		Str("connection_id", connectionID).
		Str("position", p.Position).
		Msg("Interview started")

	go o.speak(snap.ID, opening)

	snap, _ = o.store.Get(snap.ID)
	return snap, nil
}

// Resume rebinds an existing session to a new connection. Any previous
// binding is replaced silently; the returned snapshot lets the transport
// replay the current question.
func (o *Orchestrator) Resume(connectionID, sessionID string) (session.Snapshot, error) {
	if connectionID == "" {
		return session.Snapshot{}, fmt.Errorf("connection id is required")
	}

	err := o.store.Update(sessionID, func(s *session.Session) error {
		if s.State.Terminal() {
			return session.ErrTerminal
		}
		s.Bind(connectionID)
		return nil
	})
	if err != nil {
		return session.Snapshot{}, err
	}

	snap, _ := o.store.Get(sessionID)

	o.logger.Info().
		Str("session_id", sessionID).
		Str("connection_id", connectionID).
		Msg("Session resumed")

	return snap, nil
}

// ConnectionLost detaches the transport connection and starts the
// reconnect grace period. The session itself stays alive.
func (o *Orchestrator) ConnectionLost(sessionID string) {
	o.stopWatchdog(sessionID)

	err := o.store.Update(sessionID, func(s *session.Session) error {
		if s.State.Terminal() {
			return session.ErrTerminal
		}
		s.Unbind()
		return nil
	})
	if err != nil {
		o.logger.Debug().
			Str("session_id", sessionID).
			Err(err).
			Msg("Connection loss on absent or terminated session ignored")
		return
	}

	o.logger.Info().Str("session_id", sessionID).Msg("Connection lost, grace period started")
}

// EndInterview terminates the session at the candidate's request
func (o *Orchestrator) EndInterview(sessionID string) error {
	snap, ok := o.store.Get(sessionID)
	if !ok {
		return session.ErrNotFound
	}

	summary := fmt.Sprintf("Interview ended. Questions answered: %d/%d",
		snap.QuestionIndex, snap.MaxQuestions)

	var connID string
	err := o.store.Update(sessionID, func(s *session.Session) error {
		if s.State.Terminal() {
			return session.ErrTerminal
		}
		connID = s.ConnectionID
		return s.Transition(session.StateAborted)
	})
	if err != nil {
		if errors.Is(err, session.ErrTerminal) {
			return nil
		}
		return err
	}

	if connID != "" {
		o.notifier.InterviewCompleted(connID, sessionID, summary)
	}

	observability.RecordSessionEnded("ended_by_candidate")
	o.teardown(sessionID)
	return nil
}

// Expire is the reaper callback for stale sessions. Idempotent.
func (o *Orchestrator) Expire(sessionID, reason string) {
	o.logger.Info().
		Str("session_id", sessionID).
		Str("reason", reason).
		Msg("Expiring stale session")

	observability.RecordReapedSession()
	o.terminate(sessionID, session.StateAborted, "session_expired",
		"The session timed out due to inactivity.")
}

// terminate aborts a live session, notifies the client, and tears it down.
// Absent and already-terminated sessions are a logged no-op.
func (o *Orchestrator) terminate(sessionID string, to session.State, code, message string) {
	var connID string
	err := o.store.Update(sessionID, func(s *session.Session) error {
		if s.State.Terminal() {
			return session.ErrTerminal
		}
		connID = s.ConnectionID
		return s.Transition(to)
	})
	if err != nil {
		o.logger.Debug().
			Str("session_id", sessionID).
			Err(err).
			Msg("Terminate on absent or terminated session ignored")
		return
	}

	if connID != "" {
		o.notifier.SessionError(connID, sessionID, code, message)
	}

	observability.RecordSessionEnded(code)
	o.teardown(sessionID)
}

// teardown releases every per-session resource: watchdog, recognition
// channel, restart budget, archive, store entry. Every step is idempotent
// so concurrent teardown paths are safe.
func (o *Orchestrator) teardown(sessionID string) {
	o.stopWatchdog(sessionID)

	if err := o.transcriber.CloseSession(sessionID); err != nil {
		o.logger.Debug().
			Str("session_id", sessionID).
			Err(err).
			Msg("Recognition channel already closed")
	}

	o.restartMu.Lock()
	delete(o.restartTries, sessionID)
	o.restartMu.Unlock()

	if snap, ok := o.store.Get(sessionID); ok {
		o.archive(snap)
	}

	o.store.Evict(sessionID)
}

// archive writes the transcript out; failures are logged, never fatal
func (o *Orchestrator) archive(snap session.Snapshot) {
	if o.archiver == nil {
		return
	}
	if err := o.archiver.Archive(snap); err != nil {
		o.logger.Error().
			Str("session_id", snap.ID).
			Err(err).
			Msg("Transcript archive failed")
	}
}

// startRecognition opens the recognition channel with a bounded retry
func (o *Orchestrator) startRecognition(ctx context.Context, sessionID string) error {
	var lastErr error
	for attempt := 0; attempt <= o.maxRestartTries; attempt++ {
		if err := o.transcriber.StartSession(ctx, sessionID); err != nil {
			lastErr = err
			observability.RecordCollaboratorError("transcriber")
			continue
		}
		return nil
	}
	return lastErr
}

// profile builds the interview profile from a session snapshot
func (o *Orchestrator) profile(snap session.Snapshot) interview.Profile {
	return interview.Profile{
		TechStack:    snap.TechStack,
		Position:     snap.Position,
		Difficulty:   snap.Difficulty,
		MaxQuestions: snap.MaxQuestions,
	}
}
