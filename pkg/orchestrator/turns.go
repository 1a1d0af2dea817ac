package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/prep-piper/piper/internal/observability"
	"github.com/prep-piper/piper/pkg/interview"
	"github.com/prep-piper/piper/pkg/session"
	"github.com/prep-piper/piper/pkg/speech"
	"github.com/prep-piper/piper/pkg/transcribe"
)

// PushAudio forwards one audio chunk to the recognition channel. Chunks for
// unknown sessions or sessions that are not listening are dropped.
func (o *Orchestrator) PushAudio(sessionID string, chunk []byte) {
	snap, ok := o.store.Get(sessionID)
	if !ok {
		observability.RecordAudioChunkDropped("unknown_session")
		o.logger.Debug().Str("session_id", sessionID).Msg("Audio for unknown session dropped")
		return
	}
	if snap.State != session.StateActive {
		observability.RecordAudioChunkDropped("not_listening")
		return
	}
	if !o.transcriber.Active(sessionID) {
		observability.RecordAudioChunkDropped("recognition_closed")
		return
	}

	if err := o.transcriber.PushAudio(sessionID, chunk); err != nil {
		observability.RecordAudioChunkDropped("push_failed")
		o.logger.Warn().Str("session_id", sessionID).Err(err).Msg("Audio forward failed")
		return
	}

	// an accepted chunk is session activity even when recognition never
	// turns it into a transcript
	_ = o.store.Update(sessionID, func(s *session.Session) error {
		s.Touch()
		return nil
	})

	observability.RecordAudioChunk()
}

// SubmitText handles a typed answer, bypassing recognition entirely
func (o *Orchestrator) SubmitText(sessionID, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("answer text is empty")
	}
	return o.handleFinal(sessionID, text)
}

// handleTranscriptEvent routes one recognition event to its session
func (o *Orchestrator) handleTranscriptEvent(evt transcribe.Event) {
	switch evt.Kind {
	case transcribe.EventConnected:
		o.restartMu.Lock()
		delete(o.restartTries, evt.SessionID)
		o.restartMu.Unlock()

		if snap, ok := o.store.Get(evt.SessionID); ok && snap.ConnectionID != "" {
			o.notifier.RecognitionReady(snap.ConnectionID, evt.SessionID)
		}

	case transcribe.EventInterim:
		observability.RecordTranscriptEvent("interim")
		o.handleInterim(evt.SessionID, evt.Text)

	case transcribe.EventFinal:
		observability.RecordTranscriptEvent("final")
		if err := o.handleFinal(evt.SessionID, evt.Text); err != nil {
			o.logger.Debug().
				Str("session_id", evt.SessionID).
				Err(err).
				Msg("Final transcript dropped")
		}

	case transcribe.EventError:
		o.handleRecognitionError(evt.SessionID, evt.Err)

	case transcribe.EventClosed:
		o.logger.Debug().Str("session_id", evt.SessionID).Msg("Recognition channel closed")
	}
}

// handleInterim overwrites the pending answer buffer and previews the text
// to the client. Interims outside the listening state are dropped.
func (o *Orchestrator) handleInterim(sessionID, text string) {
	var connID string
	err := o.store.Update(sessionID, func(s *session.Session) error {
		if s.State != session.StateActive {
			return errNotActive
		}
		if strings.TrimSpace(text) != "" {
			s.PendingAnswer = text
			s.Touch()
		}
		connID = s.ConnectionID
		return nil
	})
	if err != nil {
		o.logger.Debug().Str("session_id", sessionID).Err(err).Msg("Interim dropped")
		return
	}

	if connID != "" {
		o.notifier.InterimTranscript(connID, sessionID, text)
	}
	if strings.TrimSpace(text) != "" {
		o.resetWatchdog(sessionID)
	}
}

// handleFinal commits the answer and starts exactly one processing cycle.
// The active-to-processing transition under the session lock is the
// admission gate: a duplicate final loses the race and is dropped here.
func (o *Orchestrator) handleFinal(sessionID, text string) error {
	text = strings.TrimSpace(text)

	var answer, connID string
	err := o.store.Update(sessionID, func(s *session.Session) error {
		if s.State != session.StateActive {
			return errNotActive
		}

		answer = text
		if answer == "" {
			answer = strings.TrimSpace(s.PendingAnswer)
		}
		s.PendingAnswer = ""
		if answer == "" {
			return nil
		}

		s.AppendTranscript(session.SpeakerCandidate, answer)
		connID = s.ConnectionID
		return s.Transition(session.StateProcessing)
	})
	if err != nil {
		return err
	}

	o.stopWatchdog(sessionID)
	if answer == "" {
		return nil
	}

	if connID != "" {
		o.notifier.Transcript(connID, sessionID, session.SpeakerCandidate, answer)
	}

	go o.processAnswer(sessionID, answer)
	return nil
}

// processAnswer runs one generation cycle for a committed answer
func (o *Orchestrator) processAnswer(sessionID, answer string) {
	snap, ok := o.store.Get(sessionID)
	if !ok {
		return
	}

	outcome, err := o.interviewer.ProcessAnswer(o.ctx, interview.Request{
		SessionID:         sessionID,
		Profile:           o.profile(snap),
		Transcript:        toTurns(snap.Transcript),
		Answer:            answer,
		QuestionsAnswered: snap.QuestionIndex,
	})
	if err != nil {
		o.logger.Error().Str("session_id", sessionID).Err(err).Msg("Answer processing failed")
		o.terminate(sessionID, session.StateAborted, "generation_failed", genericGenerationError)
		return
	}

	if outcome.Completed {
		o.completeInterview(sessionID, outcome.Summary)
		return
	}

	var connID string
	err = o.store.Update(sessionID, func(s *session.Session) error {
		if s.State != session.StateProcessing {
			return errNotActive
		}
		if outcome.Counted {
			if err := s.AdvanceQuestion(); err != nil {
				return err
			}
		}
		s.AppendTranscript(session.SpeakerInterviewer, outcome.NextQuestion)
		connID = s.ConnectionID
		return s.Transition(session.StateSpeaking)
	})
	if err != nil {
		o.logger.Debug().
			Str("session_id", sessionID).
			Err(err).
			Msg("Generation result for inactive session dropped")
		return
	}

	if connID != "" {
		o.notifier.Transcript(connID, sessionID, session.SpeakerInterviewer, outcome.NextQuestion)
	}

	o.speak(sessionID, outcome.NextQuestion)
}

// completeInterview commits the closing summary and speaks it. Teardown
// happens once the summary audio finishes.
func (o *Orchestrator) completeInterview(sessionID, summary string) {
	var connID string
	err := o.store.Update(sessionID, func(s *session.Session) error {
		if s.State != session.StateProcessing {
			return errNotActive
		}
		if err := s.AdvanceQuestion(); err != nil {
			o.logger.Debug().Str("session_id", sessionID).Err(err).Msg("Question counter already at limit")
		}
		s.AppendTranscript(session.SpeakerInterviewer, summary)
		connID = s.ConnectionID
		return s.Transition(session.StateCompleted)
	})
	if err != nil {
		o.logger.Debug().
			Str("session_id", sessionID).
			Err(err).
			Msg("Completion for inactive session dropped")
		return
	}

	if connID != "" {
		o.notifier.InterviewCompleted(connID, sessionID, summary)
	}

	observability.RecordSessionEnded("completed")

	o.logger.Info().Str("session_id", sessionID).Msg("Interview completed")
	o.speak(sessionID, summary)
}

// handleSpeechEvent routes one synthesis event to its session. Synthesis
// failures degrade the turn to text-only; they never end a session.
func (o *Orchestrator) handleSpeechEvent(evt speech.Event) {
	snap, ok := o.store.Get(evt.SessionID)
	if !ok {
		o.logger.Debug().Str("session_id", evt.SessionID).Msg("Speech event for unknown session dropped")
		return
	}

	switch evt.Kind {
	case speech.EventAudioProduced:
		if snap.ConnectionID != "" {
			o.notifier.AudioProduced(snap.ConnectionID, evt.SessionID, evt.AudioURL)
		}

	case speech.EventAudioFinished, speech.EventError:
		if evt.Kind == speech.EventError {
			o.logger.Warn().
				Str("session_id", evt.SessionID).
				Err(evt.Err).
				Msg("Synthesis failed, continuing text-only")
		}
		if snap.ConnectionID != "" {
			o.notifier.AudioFinished(snap.ConnectionID, evt.SessionID)
		}

		if snap.State.Terminal() {
			o.teardown(evt.SessionID)
			return
		}

		err := o.store.Update(evt.SessionID, func(s *session.Session) error {
			if s.State != session.StateSpeaking {
				return nil
			}
			return s.Transition(session.StateActive)
		})
		if err != nil {
			o.logger.Debug().Str("session_id", evt.SessionID).Err(err).Msg("Listening transition skipped")
		}
	}
}

// handleRecognitionError restarts the recognition channel within the
// per-session budget, then aborts
func (o *Orchestrator) handleRecognitionError(sessionID string, cause error) {
	observability.RecordCollaboratorError("transcriber")

	snap, ok := o.store.Get(sessionID)
	if !ok || snap.State.Terminal() {
		o.logger.Debug().Str("session_id", sessionID).Err(cause).Msg("Recognition error for inactive session ignored")
		return
	}

	o.restartMu.Lock()
	o.restartTries[sessionID]++
	tries := o.restartTries[sessionID]
	o.restartMu.Unlock()

	if tries > o.maxRestartTries {
		o.logger.Error().
			Str("session_id", sessionID).
			Int("tries", tries).
			Err(cause).
			Msg("Recognition restart budget exhausted")
		o.terminate(sessionID, session.StateAborted, "recognition_failed",
			"Speech recognition failed. Please start a new interview.")
		return
	}

	o.logger.Warn().
		Str("session_id", sessionID).
		Int("attempt", tries).
		Err(cause).
		Msg("Restarting recognition channel")

	_ = o.transcriber.CloseSession(sessionID)
	if err := o.transcriber.StartSession(o.ctx, sessionID); err != nil {
		o.logger.Error().Str("session_id", sessionID).Err(err).Msg("Recognition restart failed")
		o.terminate(sessionID, session.StateAborted, "recognition_failed",
			"Speech recognition failed. Please start a new interview.")
	}
}

// resetWatchdog arms the silence timer for the session's current turn
func (o *Orchestrator) resetWatchdog(sessionID string) {
	o.watchMu.Lock()
	defer o.watchMu.Unlock()

	if timer, ok := o.watchdogs[sessionID]; ok {
		timer.Stop()
	}
	o.watchdogs[sessionID] = time.AfterFunc(o.silenceTimeout, func() {
		o.handleSilence(sessionID)
	})
}

// stopWatchdog disarms the silence timer
func (o *Orchestrator) stopWatchdog(sessionID string) {
	o.watchMu.Lock()
	defer o.watchMu.Unlock()

	if timer, ok := o.watchdogs[sessionID]; ok {
		timer.Stop()
		delete(o.watchdogs, sessionID)
	}
}

// handleSilence force-finalizes a turn whose answer buffer went quiet. The
// timer is not re-armed here, so each turn finalizes at most once; the next
// interim arms it again.
func (o *Orchestrator) handleSilence(sessionID string) {
	o.watchMu.Lock()
	delete(o.watchdogs, sessionID)
	o.watchMu.Unlock()

	snap, ok := o.store.Get(sessionID)
	if !ok || snap.State != session.StateActive || strings.TrimSpace(snap.PendingAnswer) == "" {
		return
	}

	observability.RecordSilenceFinalize()
	o.logger.Debug().Str("session_id", sessionID).Msg("Silence detected, finalizing turn")

	if err := o.transcriber.Finalize(sessionID); err != nil {
		o.logger.Warn().Str("session_id", sessionID).Err(err).Msg("Finalize request failed")
	}
}

// speak synthesizes one utterance; failures surface on the event stream
func (o *Orchestrator) speak(sessionID, text string) {
	if err := o.speaker.Speak(o.ctx, sessionID, text); err != nil {
		o.logger.Warn().Str("session_id", sessionID).Err(err).Msg("Speak request failed")
	}
}

// toTurns converts committed transcript entries to generation turns
func toTurns(entries []session.Entry) []interview.Turn {
	turns := make([]interview.Turn, 0, len(entries))
	for _, e := range entries {
		turns = append(turns, interview.Turn{Speaker: e.Speaker, Text: e.Text})
	}
	return turns
}
