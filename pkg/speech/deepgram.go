package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/prep-piper/piper/internal/observability"
	"github.com/rs/zerolog"
)

// DefaultSpeakURL is the Deepgram text-to-speech endpoint
const DefaultSpeakURL = "https://api.deepgram.com/v1/speak"

const eventBuffer = 64

// Config holds Deepgram speaker configuration
type Config struct {
	APIKey    string
	URL       string // defaults to DefaultSpeakURL
	Voice     string
	OutputDir string
	Logger    zerolog.Logger
}

// Deepgram renders question text to wav files via the Deepgram speak API.
// Files land in OutputDir and are announced with audioProduced followed by
// audioFinished.
type Deepgram struct {
	cfg    Config
	client *http.Client
	events chan Event
	logger zerolog.Logger
}

// NewDeepgram creates a Deepgram speak adapter
func NewDeepgram(cfg Config) (*Deepgram, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultSpeakURL
	}
	if cfg.Voice == "" {
		cfg.Voice = "aura-2-thalia-en"
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audio output directory: %w", err)
	}

	return &Deepgram{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		events: make(chan Event, eventBuffer),
		logger: cfg.Logger,
	}, nil
}

// Events returns the synthesis event stream
func (d *Deepgram) Events() <-chan Event {
	return d.events
}

// Speak renders text and emits audioProduced then audioFinished. Failures
// emit a single error event; the caller degrades to text-only continuation.
func (d *Deepgram) Speak(ctx context.Context, sessionID, text string) error {
	start := time.Now()

	audio, err := d.request(ctx, text)
	if err != nil {
		observability.RecordCollaboratorError("speaker")
		d.emit(Event{SessionID: sessionID, Kind: EventError, Err: err})
		return err
	}

	filename := fmt.Sprintf("speech_%s_%d.wav", sessionID, time.Now().UnixMilli())
	path := filepath.Join(d.cfg.OutputDir, filename)
	if err := os.WriteFile(path, audio, 0644); err != nil {
		err = fmt.Errorf("failed to write audio file: %w", err)
		observability.RecordCollaboratorError("speaker")
		d.emit(Event{SessionID: sessionID, Kind: EventError, Err: err})
		return err
	}

	observability.RecordSynthesis(time.Since(start))

	d.logger.Debug().
		Str("session_id", sessionID).
		Str("file", filename).
		Int("bytes", len(audio)).
		Msg("Synthesis audio written")

	d.emit(Event{
		SessionID: sessionID,
		Kind:      EventAudioProduced,
		Filename:  filename,
		AudioURL:  "/audio/" + filename,
	})
	d.emit(Event{
		SessionID: sessionID,
		Kind:      EventAudioFinished,
		Filename:  filename,
		AudioURL:  "/audio/" + filename,
	})

	return nil
}

func (d *Deepgram) request(ctx context.Context, text string) ([]byte, error) {
	endpoint, err := url.Parse(d.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid speak URL: %w", err)
	}
	q := endpoint.Query()
	q.Set("model", d.cfg.Voice)
	q.Set("encoding", "linear16")
	q.Set("container", "wav")
	endpoint.RawQuery = q.Encode()

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal speak request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build speak request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speak request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speak request failed with status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read speak response: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("speak response contained no audio")
	}

	return audio, nil
}

func (d *Deepgram) emit(evt Event) {
	select {
	case d.events <- evt:
	default:
		d.logger.Warn().
			Str("session_id", evt.SessionID).
			Str("kind", string(evt.Kind)).
			Msg("Synthesis event dropped, consumer too slow")
	}
}
