package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Archiver persists finished interview transcripts as JSONL files, one
// transcript entry per line. Archival is best effort; live orchestration
// never depends on it.
type Archiver struct {
	dir string
}

// NewArchiver creates an archiver rooted at dir
func NewArchiver(dir string) (*Archiver, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &Archiver{dir: dir}, nil
}

// validateID keeps archive file names path-safe
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("session id cannot contain '..'")
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("session id cannot contain path separators")
	}
	if strings.Contains(id, "\x00") {
		return fmt.Errorf("session id cannot contain null bytes")
	}
	return nil
}

func (a *Archiver) path(id string) string {
	return filepath.Join(a.dir, id+".jsonl")
}

// Archive writes the session transcript to <dir>/<id>.jsonl, replacing any
// previous archive for the same session.
func (a *Archiver) Archive(snap Snapshot) error {
	if err := validateID(snap.ID); err != nil {
		return err
	}

	tmpPath := a.path(snap.ID) + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}

	for _, entry := range snap.Transcript {
		data, err := json.Marshal(entry)
		if err != nil {
			file.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		if _, err := file.Write(append(data, '\n')); err != nil {
			file.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to write entry: %w", err)
		}
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync archive file: %w", err)
	}
	file.Close()

	if err := os.Rename(tmpPath, a.path(snap.ID)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace archive file: %w", err)
	}

	log.Debug().
		Str("session_id", snap.ID).
		Int("entries", len(snap.Transcript)).
		Msg("Session archived")

	return nil
}

// Load reads an archived transcript, skipping unparseable lines
func (a *Archiver) Load(id string) ([]Entry, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	file, err := os.Open(a.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("archive does not exist for session %s", id)
		}
		return nil, fmt.Errorf("failed to open archive file: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}

		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			log.Warn().
				Str("session_id", id).
				Int("line", lineNum).
				Err(err).
				Msg("Failed to parse archive line, skipping")
			continue
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read archive file: %w", err)
	}

	return entries, nil
}

// List returns the session ids with an archive on disk
func (a *Archiver) List() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".jsonl"))
	}

	return ids, nil
}
