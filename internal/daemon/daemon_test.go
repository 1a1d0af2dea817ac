package daemon

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prep-piper/piper/internal/config"
	"github.com/prep-piper/piper/internal/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.Gateway.Port = 18099
	cfg.Interview.Provider = "scripted"
	cfg.Transcribe.APIKey = "dg-test"
	cfg.Session.ArchiveDir = filepath.Join(dir, "interviews")
	cfg.Speech.OutputDir = filepath.Join(dir, "audio_output")
	cfg.Logging.Console = false
	cfg.Logging.File = filepath.Join(dir, "piper.log")
	return cfg
}

func testLogger(t *testing.T, cfg *config.Config) *logger.Logger {
	t.Helper()

	log, err := logger.New(logger.Config{
		Level:   "error",
		File:    cfg.Logging.File,
		Console: false,
	})
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func TestNewWiresAllModules(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(cfg, testLogger(t, cfg))
	require.NoError(t, err)

	assert.NotNil(t, d.store)
	assert.NotNil(t, d.archiver)
	assert.NotNil(t, d.transcriber)
	assert.NotNil(t, d.speaker)
	assert.NotNil(t, d.engine)
	assert.NotNil(t, d.core)
	assert.NotNil(t, d.server)
	assert.NotNil(t, d.reaper)
	assert.NotNil(t, d.lifecycle)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Interview.Provider = "oracle"

	_, err := New(cfg, testLogger(t, cfg))
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(cfg, testLogger(t, cfg))
	require.NoError(t, err)

	require.NoError(t, d.Start())
	assert.Error(t, d.Start())

	status := d.Status()
	assert.True(t, status.Running)
	assert.Equal(t, 0, status.ActiveSessions)
	assert.True(t, d.reaper.IsRunning())

	pid, err := d.lifecycle.GetPID()
	require.NoError(t, err)
	assert.Greater(t, pid, 0)

	require.NoError(t, d.Stop())
	assert.Error(t, d.Stop())
	assert.False(t, d.Status().Running)

	_, err = d.lifecycle.GetPID()
	assert.Error(t, err)
}

func TestStatusUptime(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(cfg, testLogger(t, cfg))
	require.NoError(t, err)

	require.NoError(t, d.Start())
	defer d.Stop()

	time.Sleep(20 * time.Millisecond)
	assert.Greater(t, d.Status().Uptime, time.Duration(0))
}
