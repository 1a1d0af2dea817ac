// Package daemon wires the interview platform together: configuration,
// logging, the orchestration core and its collaborators, the websocket
// gateway, and the stale session reaper.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/prep-piper/piper/internal/config"
	"github.com/prep-piper/piper/internal/logger"
	"github.com/prep-piper/piper/internal/observability"
	"github.com/prep-piper/piper/pkg/gateway"
	"github.com/prep-piper/piper/pkg/interview"
	"github.com/prep-piper/piper/pkg/orchestrator"
	"github.com/prep-piper/piper/pkg/session"
	"github.com/prep-piper/piper/pkg/speech"
	"github.com/prep-piper/piper/pkg/transcribe"
)

// Daemon is the long-running interview service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	store       *session.Store
	archiver    *session.Archiver
	transcriber transcribe.Transcriber
	speaker     speech.Speaker
	engine      *interview.Engine
	core        *orchestrator.Orchestrator
	registry    *gateway.Registry
	server      *gateway.Server
	reaper      *session.Reaper
	lifecycle   *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// New creates a daemon instance with every module wired
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := d.initialize(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize daemon: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)
	return d, nil
}

// initialize builds the modules in dependency order
func (d *Daemon) initialize() error {
	zl := d.logger.GetZerolog()

	d.store = session.NewStore(zl)
	zl.Info().Msg("Session store initialized")

	archiver, err := session.NewArchiver(d.config.Session.ArchiveDir)
	if err != nil {
		return fmt.Errorf("failed to create transcript archiver: %w", err)
	}
	d.archiver = archiver
	zl.Info().Str("dir", d.config.Session.ArchiveDir).Msg("Transcript archiver initialized")

	transcriber, err := transcribe.NewDeepgram(transcribe.Config{
		APIKey:     d.config.Transcribe.APIKey,
		Model:      d.config.Transcribe.Model,
		Language:   d.config.Transcribe.Language,
		SampleRate: d.config.Transcribe.SampleRate,
		Logger:     zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create transcriber: %w", err)
	}
	d.transcriber = transcriber
	zl.Info().Str("model", d.config.Transcribe.Model).Msg("Transcriber initialized")

	d.speaker, err = d.buildSpeaker(zl)
	if err != nil {
		return fmt.Errorf("failed to create speaker: %w", err)
	}
	zl.Info().Bool("enabled", d.config.Speech.Enabled).Msg("Speaker initialized")

	provider, err := d.buildProvider()
	if err != nil {
		return err
	}

	d.engine, err = interview.NewEngine(interview.EngineConfig{
		Provider:     provider,
		MaxQuestions: d.config.Interview.MaxQuestions,
		MaxRetries:   d.config.Interview.MaxRetries,
		Logger:       zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create interview engine: %w", err)
	}
	zl.Info().Str("provider", provider.Name()).Msg("Interview engine initialized")

	d.registry = gateway.NewRegistry()
	notifier := gateway.NewNotifier(d.registry, zl)

	d.core, err = orchestrator.New(orchestrator.Config{
		Store:           d.store,
		Transcriber:     d.transcriber,
		Speaker:         d.speaker,
		Interviewer:     d.engine,
		Notifier:        notifier,
		Archiver:        d.archiver,
		SilenceTimeout:  time.Duration(d.config.Transcribe.SilenceMs) * time.Millisecond,
		MaxRestartTries: d.config.Transcribe.MaxRestartTries,
		MaxQuestions:    d.config.Interview.MaxQuestions,
		Logger:          zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	zl.Info().Msg("Orchestrator initialized")

	d.server, err = gateway.NewServer(gateway.Config{
		Host:         d.config.Gateway.Host,
		Port:         d.config.Gateway.Port,
		AudioDir:     d.config.Speech.OutputDir,
		Core:         d.core,
		Registry:     d.registry,
		SessionCount: d.store.Count,
		Logger:       zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	d.reaper, err = session.NewReaper(session.ReaperConfig{
		Store:       d.store,
		TTL:         d.config.Session.TTL,
		GracePeriod: d.config.Session.GracePeriod,
		Interval:    d.config.Session.ReapInterval,
		OnExpire:    d.core.Expire,
		Logger:      zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create session reaper: %w", err)
	}

	return nil
}

// buildSpeaker returns the configured synthesis backend, or the no-op
// speaker when synthesis is disabled
func (d *Daemon) buildSpeaker(zl zerolog.Logger) (speech.Speaker, error) {
	if !d.config.Speech.Enabled {
		return speech.NewNoop(), nil
	}
	return speech.NewDeepgram(speech.Config{
		APIKey:    d.config.Speech.APIKey,
		Voice:     d.config.Speech.Voice,
		OutputDir: d.config.Speech.OutputDir,
		Logger:    zl,
	})
}

// buildProvider returns the configured question-generation backend
func (d *Daemon) buildProvider() (interview.Provider, error) {
	cfg := d.config.Interview
	switch cfg.Provider {
	case "openai":
		return interview.NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.Temperature), nil
	case "anthropic":
		return interview.NewAnthropicProvider(cfg.APIKey, cfg.Model, cfg.Temperature), nil
	case "scripted":
		return interview.NewScriptedProvider(nil), nil
	default:
		return nil, fmt.Errorf("unknown interview provider %q", cfg.Provider)
	}
}

// Start brings the service up
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.core.Run(d.ctx)
	}()

	if err := d.server.Start(); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	if err := d.reaper.Start(); err != nil {
		return fmt.Errorf("failed to start session reaper: %w", err)
	}

	zl := d.logger.GetZerolog()
	zl.Info().
		Int("port", d.config.Gateway.Port).
		Msg("Piper daemon started")

	return nil
}

// Stop brings the service down in reverse order
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	zl := d.logger.GetZerolog()
	zl.Info().Msg("Stopping Piper daemon")

	if err := d.reaper.Stop(); err != nil {
		zl.Warn().Err(err).Msg("Reaper stop failed")
	}

	if err := d.server.Stop(); err != nil {
		zl.Warn().Err(err).Msg("Gateway stop failed")
	}

	// abort whatever sessions are still live so transcripts get archived
	for _, snap := range d.store.Snapshots() {
		d.core.Expire(snap.ID, "shutdown")
	}

	d.cancel()
	if err := d.core.Close(); err != nil {
		zl.Warn().Err(err).Msg("Orchestrator close failed")
	}
	d.wg.Wait()

	if err := d.lifecycle.Stop(); err != nil {
		zl.Warn().Err(err).Msg("Lifecycle stop failed")
	}

	zl.Info().Msg("Piper daemon stopped")
	return nil
}

// Wait blocks until SIGINT or SIGTERM
func (d *Daemon) Wait() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	zl := d.logger.GetZerolog()
	zl.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
}

// Status describes the running daemon
type Status struct {
	Running        bool          `json:"running"`
	Uptime         time.Duration `json:"uptime"`
	ActiveSessions int           `json:"active_sessions"`
	Connections    int           `json:"connections"`
}

// Status returns a point-in-time view of the daemon
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var uptime time.Duration
	if d.running {
		uptime = time.Since(d.startTime)
	}

	return Status{
		Running:        d.running,
		Uptime:         uptime,
		ActiveSessions: d.store.Count(),
		Connections:    d.registry.Count(),
	}
}
