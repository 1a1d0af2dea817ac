package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiver(t *testing.T) {
	dir := t.TempDir()
	archiver, err := NewArchiver(filepath.Join(dir, "interviews"))
	require.NoError(t, err)

	snap := Snapshot{
		ID: "abc12345",
		Transcript: []Entry{
			{SessionID: "abc12345", Speaker: SpeakerInterviewer, Text: "What is Go?", Timestamp: time.Now()},
			{SessionID: "abc12345", Speaker: SpeakerCandidate, Text: "A programming language.", Timestamp: time.Now()},
		},
	}

	t.Run("archive and load round trip", func(t *testing.T) {
		require.NoError(t, archiver.Archive(snap))

		entries, err := archiver.Load("abc12345")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, SpeakerInterviewer, entries[0].Speaker)
		assert.Equal(t, "A programming language.", entries[1].Text)
	})

	t.Run("list returns archived ids", func(t *testing.T) {
		ids, err := archiver.List()
		require.NoError(t, err)
		assert.Contains(t, ids, "abc12345")
	})

	t.Run("load skips corrupted lines", func(t *testing.T) {
		path := filepath.Join(dir, "interviews", "abc12345.jsonl")
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, append([]byte("{garbage\n"), data...), 0600))

		entries, err := archiver.Load("abc12345")
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("rejects path-escaping ids", func(t *testing.T) {
		assert.Error(t, archiver.Archive(Snapshot{ID: "../escape"}))
		_, err := archiver.Load("a/b")
		assert.Error(t, err)
		_, err = archiver.Load("")
		assert.Error(t, err)
	})

	t.Run("load of missing archive errors", func(t *testing.T) {
		_, err := archiver.Load("nope1234")
		assert.Error(t, err)
	})
}
