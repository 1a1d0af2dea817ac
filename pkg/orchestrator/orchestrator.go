// Package orchestrator coordinates one voice interview per session: it owns
// the lifecycle state machine and routes events between the recognition,
// synthesis and question-generation collaborators and the client transport.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prep-piper/piper/internal/observability"
	"github.com/prep-piper/piper/pkg/interview"
	"github.com/prep-piper/piper/pkg/session"
	"github.com/prep-piper/piper/pkg/speech"
	"github.com/prep-piper/piper/pkg/transcribe"
)

// genericGenerationError is what the client sees when question generation
// fails; provider details stay in the logs.
const genericGenerationError = "We hit a problem generating the next question. Please start a new interview."

// Notifier delivers server events to the client bound to a session. The
// transport layer implements it; a detached session (empty connection id)
// makes every delivery a no-op.
type Notifier interface {
	InterviewStarted(connectionID, sessionID, question string)
	RecognitionReady(connectionID, sessionID string)
	InterimTranscript(connectionID, sessionID, text string)
	Transcript(connectionID, sessionID, speaker, text string)
	AudioProduced(connectionID, sessionID, audioURL string)
	AudioFinished(connectionID, sessionID string)
	InterviewCompleted(connectionID, sessionID, summary string)
	SessionError(connectionID, sessionID, code, message string)
}

// Config wires the orchestrator's collaborators
type Config struct {
	Store       *session.Store
	Transcriber transcribe.Transcriber
	Speaker     speech.Speaker
	Interviewer interview.Interviewer
	Notifier    Notifier
	// Archiver is optional; when set, terminated sessions are written out
	// before eviction
	Archiver *session.Archiver
	// SilenceTimeout is how long the answer buffer may sit unchanged before
	// the turn is force-finalized
	SilenceTimeout time.Duration
	// MaxRestartTries bounds recognition channel restarts per session
	MaxRestartTries int
	MaxQuestions    int
	Logger          zerolog.Logger
}

// Orchestrator is the session orchestration core
type Orchestrator struct {
	store       *session.Store
	transcriber transcribe.Transcriber
	speaker     speech.Speaker
	interviewer interview.Interviewer
	notifier    Notifier
	archiver    *session.Archiver

	silenceTimeout  time.Duration
	maxRestartTries int
	maxQuestions    int
	logger          zerolog.Logger

	watchMu   sync.Mutex
	watchdogs map[string]*time.Timer

	restartMu    sync.Mutex
	restartTries map[string]int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the orchestration core
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Transcriber == nil {
		return nil, fmt.Errorf("transcriber is required")
	}
	if cfg.Speaker == nil {
		return nil, fmt.Errorf("speaker is required")
	}
	if cfg.Interviewer == nil {
		return nil, fmt.Errorf("interviewer is required")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = 2 * time.Second
	}
	if cfg.MaxRestartTries <= 0 {
		cfg.MaxRestartTries = 1
	}
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = 5
	}

	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		ctx:             ctx,
		cancel:          cancel,
		store:           cfg.Store,
		transcriber:     cfg.Transcriber,
		speaker:         cfg.Speaker,
		interviewer:     cfg.Interviewer,
		notifier:        cfg.Notifier,
		archiver:        cfg.Archiver,
		silenceTimeout:  cfg.SilenceTimeout,
		maxRestartTries: cfg.MaxRestartTries,
		maxQuestions:    cfg.MaxQuestions,
		logger:          cfg.Logger,
		watchdogs:       make(map[string]*time.Timer),
		restartTries:    make(map[string]int),
	}, nil
}

// Run starts the event pumps and blocks until ctx or the orchestrator's
// own lifetime is cancelled
func (o *Orchestrator) Run(ctx context.Context) {
	o.wg.Add(2)
	go o.pumpTranscripts()
	go o.pumpSpeech()

	o.logger.Info().Msg("Orchestrator started")

	select {
	case <-ctx.Done():
		o.cancel()
	case <-o.ctx.Done():
	}
}

// Close stops the event pumps and tears down collaborator connections
func (o *Orchestrator) Close() error {
	o.cancel()

	o.watchMu.Lock()
	for id, timer := range o.watchdogs {
		timer.Stop()
		delete(o.watchdogs, id)
	}
	o.watchMu.Unlock()

	err := o.transcriber.Close()
	o.wg.Wait()

	o.logger.Info().Msg("Orchestrator stopped")
	return err
}

// pumpTranscripts multiplexes the shared recognition event stream
func (o *Orchestrator) pumpTranscripts() {
	defer o.wg.Done()

	for {
		select {
		case <-o.ctx.Done():
			return
		case evt, ok := <-o.transcriber.Events():
			if !ok {
				return
			}
			o.handleTranscriptEvent(evt)
		}
	}
}

// pumpSpeech multiplexes the shared synthesis event stream
func (o *Orchestrator) pumpSpeech() {
	defer o.wg.Done()

	for {
		select {
		case <-o.ctx.Done():
			return
		case evt, ok := <-o.speaker.Events():
			if !ok {
				return
			}
			o.handleSpeechEvent(evt)
		}
	}
}

// errNotActive guards turn input arriving outside the listening state
var errNotActive = errors.New("session is not accepting answers")
