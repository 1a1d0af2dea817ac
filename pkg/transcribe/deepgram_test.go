package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider mimics the Deepgram live endpoint: echoes every binary chunk
// back as an interim result, and answers a Finalize control frame with a
// final result assembled from everything heard so far.
type fakeProvider struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	authSeen string
	querySeen map[string]string
	heard    []string
}

func (f *fakeProvider) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.authSeen = r.Header.Get("Authorization")
	f.querySeen = map[string]string{}
	for k := range r.URL.Query() {
		f.querySeen[k] = r.URL.Query().Get(k)
	}
	f.mu.Unlock()

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			text := string(payload)
			f.mu.Lock()
			f.heard = append(f.heard, text)
			f.mu.Unlock()
			f.send(conn, text, false, 0.5)

		case websocket.TextMessage:
			var ctrl controlMessage
			if json.Unmarshal(payload, &ctrl) != nil {
				continue
			}
			switch ctrl.Type {
			case "Finalize":
				f.mu.Lock()
				full := strings.Join(f.heard, " ")
				f.mu.Unlock()
				f.send(conn, full, true, 0.97)
			case "CloseStream":
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}
}

func (f *fakeProvider) send(conn *websocket.Conn, text string, isFinal bool, conf float64) {
	var resp liveResponse
	resp.Type = "Results"
	resp.IsFinal = isFinal
	resp.Channel.Alternatives = []struct {
		Transcript string  `json:"transcript"`
		Confidence float64 `json:"confidence"`
	}{{Transcript: text, Confidence: conf}}

	data, _ := json.Marshal(resp)
	conn.WriteMessage(websocket.TextMessage, data)
}

func newTestAdapter(t *testing.T) (*Deepgram, *fakeProvider) {
	t.Helper()

	fake := &fakeProvider{}
	server := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(server.Close)

	dg, err := NewDeepgram(Config{
		APIKey: "dg-test-key",
		URL:    "ws" + strings.TrimPrefix(server.URL, "http"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { dg.Close() })

	return dg, fake
}

func waitEvent(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-events:
			if evt.Kind == kind {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestDeepgram_StartSession(t *testing.T) {
	dg, fake := newTestAdapter(t)

	require.NoError(t, dg.StartSession(context.Background(), "sess-1"))
	waitEvent(t, dg.Events(), EventConnected)

	assert.True(t, dg.Active("sess-1"))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "Token dg-test-key", fake.authSeen)
	assert.Equal(t, "nova-2", fake.querySeen["model"])
	assert.Equal(t, "linear16", fake.querySeen["encoding"])
	assert.Equal(t, "16000", fake.querySeen["sample_rate"])

	t.Run("second start for same session fails", func(t *testing.T) {
		err := dg.StartSession(context.Background(), "sess-1")
		assert.Error(t, err)
	})
}

func TestDeepgram_PushAudioAndFinalize(t *testing.T) {
	dg, _ := newTestAdapter(t)

	require.NoError(t, dg.StartSession(context.Background(), "sess-1"))
	waitEvent(t, dg.Events(), EventConnected)

	require.NoError(t, dg.PushAudio("sess-1", []byte("I have five")))
	interim := waitEvent(t, dg.Events(), EventInterim)
	assert.Equal(t, "sess-1", interim.SessionID)
	assert.Equal(t, "I have five", interim.Text)

	require.NoError(t, dg.PushAudio("sess-1", []byte("years of experience")))
	waitEvent(t, dg.Events(), EventInterim)

	require.NoError(t, dg.Finalize("sess-1"))
	final := waitEvent(t, dg.Events(), EventFinal)
	assert.Equal(t, "I have five years of experience", final.Text)
	assert.Greater(t, final.Confidence, 0.9)
}

func TestDeepgram_UnknownSession(t *testing.T) {
	dg, _ := newTestAdapter(t)

	assert.Error(t, dg.PushAudio("ghost-id", []byte("x")))
	assert.Error(t, dg.Finalize("ghost-id"))
	assert.False(t, dg.Active("ghost-id"))

	// closing an unknown session is a no-op
	assert.NoError(t, dg.CloseSession("ghost-id"))
}

func TestDeepgram_CloseSession(t *testing.T) {
	dg, _ := newTestAdapter(t)

	require.NoError(t, dg.StartSession(context.Background(), "sess-1"))
	waitEvent(t, dg.Events(), EventConnected)

	require.NoError(t, dg.CloseSession("sess-1"))
	waitEvent(t, dg.Events(), EventClosed)
	assert.False(t, dg.Active("sess-1"))

	// a session can be restarted after close
	require.NoError(t, dg.StartSession(context.Background(), "sess-1"))
	waitEvent(t, dg.Events(), EventConnected)
}

func TestNewDeepgram_Validation(t *testing.T) {
	_, err := NewDeepgram(Config{})
	assert.Error(t, err)
}
