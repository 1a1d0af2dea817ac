package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DefaultLiveURL is the Deepgram live transcription endpoint
const DefaultLiveURL = "wss://api.deepgram.com/v1/listen"

// eventBuffer bounds the shared event channel; slow consumers drop interim
// events rather than stalling provider reads.
const eventBuffer = 256

// Config holds Deepgram adapter configuration
type Config struct {
	APIKey     string
	URL        string // defaults to DefaultLiveURL
	Model      string
	Language   string
	SampleRate int
	Logger     zerolog.Logger
}

// Deepgram streams audio to the Deepgram live websocket API, one connection
// per session, and republishes transcript events on a shared channel.
type Deepgram struct {
	cfg    Config
	dialer *websocket.Dialer
	events chan Event
	logger zerolog.Logger

	mu    sync.Mutex
	conns map[string]*liveConn
}

type liveConn struct {
	sessionID string
	conn      *websocket.Conn
	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// liveResponse is the subset of the Deepgram results payload we consume
type liveResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// controlMessage is a Deepgram stream control frame
type controlMessage struct {
	Type string `json:"type"`
}

// NewDeepgram creates a Deepgram live transcription adapter
func NewDeepgram(cfg Config) (*Deepgram, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultLiveURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}

	return &Deepgram{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		events: make(chan Event, eventBuffer),
		logger: cfg.Logger,
		conns:  make(map[string]*liveConn),
	}, nil
}

// Events returns the shared event stream
func (d *Deepgram) Events() <-chan Event {
	return d.events
}

// Active reports whether the session has an open recognition channel
func (d *Deepgram) Active(sessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.conns[sessionID]
	return ok
}

// StartSession dials a live transcription connection for the session
func (d *Deepgram) StartSession(ctx context.Context, sessionID string) error {
	d.mu.Lock()
	if _, exists := d.conns[sessionID]; exists {
		d.mu.Unlock()
		return fmt.Errorf("recognition channel already open for session %s", sessionID)
	}
	d.mu.Unlock()

	endpoint, err := d.buildURL()
	if err != nil {
		return fmt.Errorf("failed to build live URL: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+d.cfg.APIKey)

	conn, resp, err := d.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to dial recognition provider (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to dial recognition provider: %w", err)
	}

	lc := &liveConn{
		sessionID: sessionID,
		conn:      conn,
		done:      make(chan struct{}),
	}

	d.mu.Lock()
	d.conns[sessionID] = lc
	d.mu.Unlock()

	go d.readLoop(lc)

	d.emit(Event{SessionID: sessionID, Kind: EventConnected})
	d.logger.Info().Str("session_id", sessionID).Msg("Recognition channel opened")

	return nil
}

func (d *Deepgram) buildURL() (string, error) {
	u, err := url.Parse(d.cfg.URL)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", d.cfg.Model)
	q.Set("language", d.cfg.Language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(d.cfg.SampleRate))
	q.Set("channels", "1")
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// readLoop consumes provider messages until the connection dies
func (d *Deepgram) readLoop(lc *liveConn) {
	defer d.teardown(lc, nil)

	for {
		_, message, err := lc.conn.ReadMessage()
		if err != nil {
			select {
			case <-lc.done:
				// local close, not a provider failure
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					d.teardown(lc, fmt.Errorf("recognition stream failed: %w", err))
					return
				}
			}
			return
		}

		var resp liveResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			d.logger.Warn().
				Str("session_id", lc.sessionID).
				Err(err).
				Msg("Unparseable recognition payload, skipping")
			continue
		}

		if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
			continue
		}

		alt := resp.Channel.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}

		kind := EventInterim
		if resp.IsFinal {
			kind = EventFinal
		}

		d.emit(Event{
			SessionID:  lc.sessionID,
			Kind:       kind,
			Text:       alt.Transcript,
			Confidence: alt.Confidence,
		})
	}
}

// PushAudio forwards a binary chunk on the session's connection
func (d *Deepgram) PushAudio(sessionID string, chunk []byte) error {
	lc, ok := d.lookup(sessionID)
	if !ok {
		return fmt.Errorf("no recognition channel for session %s", sessionID)
	}

	lc.writeMu.Lock()
	defer lc.writeMu.Unlock()

	if err := lc.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("failed to push audio: %w", err)
	}
	return nil
}

// Finalize flushes buffered audio so the provider emits its final transcript
func (d *Deepgram) Finalize(sessionID string) error {
	lc, ok := d.lookup(sessionID)
	if !ok {
		return fmt.Errorf("no recognition channel for session %s", sessionID)
	}

	lc.writeMu.Lock()
	defer lc.writeMu.Unlock()

	if err := lc.conn.WriteJSON(controlMessage{Type: "Finalize"}); err != nil {
		return fmt.Errorf("failed to finalize stream: %w", err)
	}
	return nil
}

// CloseSession tears down the session's recognition channel
func (d *Deepgram) CloseSession(sessionID string) error {
	lc, ok := d.lookup(sessionID)
	if !ok {
		return nil
	}

	lc.writeMu.Lock()
	_ = lc.conn.WriteJSON(controlMessage{Type: "CloseStream"})
	lc.writeMu.Unlock()

	d.teardown(lc, nil)
	return nil
}

// Close tears down all recognition channels
func (d *Deepgram) Close() error {
	d.mu.Lock()
	conns := make([]*liveConn, 0, len(d.conns))
	for _, lc := range d.conns {
		conns = append(conns, lc)
	}
	d.mu.Unlock()

	for _, lc := range conns {
		d.teardown(lc, nil)
	}
	return nil
}

func (d *Deepgram) lookup(sessionID string) (*liveConn, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	lc, ok := d.conns[sessionID]
	return lc, ok
}

// teardown closes the connection and emits error/closed exactly once
func (d *Deepgram) teardown(lc *liveConn, cause error) {
	lc.closeOnce.Do(func() {
		close(lc.done)
		lc.conn.Close()

		d.mu.Lock()
		delete(d.conns, lc.sessionID)
		d.mu.Unlock()

		if cause != nil {
			d.emit(Event{SessionID: lc.sessionID, Kind: EventError, Err: cause})
		}
		d.emit(Event{SessionID: lc.sessionID, Kind: EventClosed})

		d.logger.Info().Str("session_id", lc.sessionID).Msg("Recognition channel closed")
	})
}

// emit publishes without blocking; the channel is sized for bursts and a
// stalled consumer must not stall provider reads.
func (d *Deepgram) emit(evt Event) {
	select {
	case d.events <- evt:
	default:
		d.logger.Warn().
			Str("session_id", evt.SessionID).
			Str("kind", string(evt.Kind)).
			Msg("Recognition event dropped, consumer too slow")
	}
}
