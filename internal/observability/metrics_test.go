package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	// Calling twice must not panic on duplicate registration.
	EnsureRegistered()
	EnsureRegistered()

	SetActiveSessions(3)
	RecordSessionStarted()
	RecordSessionEnded("completed")
	RecordStateTransition("active", "processing")
	RecordTurnCompleted()
	RecordTranscriptEvent("final")
	RecordAudioChunk()
	RecordAudioChunkDropped("unknown_session")
	RecordSilenceFinalize()
	RecordReapedSession()
	RecordGeneration(120 * time.Millisecond)
	RecordSynthesis(80 * time.Millisecond)
	RecordCollaboratorError("transcriber")
}

func TestMetricsHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)

	MetricsHandler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "interview_active_sessions")
}
