// Package status persists batch-run progress as a small JSON document that
// external observers poll. Writes replace the whole document atomically so a
// mid-write reader never sees a half-updated struct.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Run is the polled progress document for one batch run.
type Run struct {
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Limit     int       `json:"limit,omitempty"`
	Force     bool      `json:"force,omitempty"`

	Processed int `json:"processed"`
	Enriched  int `json:"enriched"`
	Failed    int `json:"failed"`

	// EnrichedBooks and SkippedBooks are sampled titles for the UI, not a
	// complete log.
	EnrichedBooks []string `json:"enriched_books,omitempty"`
	SkippedBooks  []string `json:"skipped_books,omitempty"`

	CompletedAt time.Time `json:"completed_at,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Store reads and writes the status document at a fixed path.
type Store struct {
	path string
}

// NewStore creates a store writing to the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the current status document. A missing file is an idle status,
// not an error.
func (s *Store) Load() (*Run, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &Run{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read status file: %w", err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parse status file: %w", err)
	}
	return &run, nil
}

// Save atomically replaces the status document: write to a temp file in the
// same directory, then rename over the target.
func (s *Store) Save(run *Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create status directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".status-*.json")
	if err != nil {
		return fmt.Errorf("create temp status file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close status file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace status file: %w", err)
	}
	return nil
}

// Acquire marks a run as active if none is. Returns an error when another run
// already holds the flag; the caller must not start.
func (s *Store) Acquire(limit int, force bool) (*Run, error) {
	current, err := s.Load()
	if err != nil {
		return nil, err
	}
	if current.Running {
		return nil, fmt.Errorf("an enrichment run is already active (started %s)",
			current.StartedAt.Format(time.RFC3339))
	}

	run := &Run{
		Running:   true,
		StartedAt: time.Now(),
		Limit:     limit,
		Force:     force,
	}
	if err := s.Save(run); err != nil {
		return nil, err
	}
	return run, nil
}

// Release unconditionally clears the active flag and stamps completion. It is
// called even when the run fails, so a crash mid-run is the only way to leave
// a stale flag behind.
func (s *Store) Release(run *Run, runErr error) error {
	run.Running = false
	run.CompletedAt = time.Now()
	if runErr != nil {
		run.Error = runErr.Error()
	}
	return s.Save(run)
}
