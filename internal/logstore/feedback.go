package logstore

import (
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/pavelanni/teachmate/internal/model"
)

// FeedbackFile is the default feedback log file name inside the data dir.
const FeedbackFile = "feedback_log.json"

const feedbackSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["course", "timestamp", "what_worked", "what_did_not", "suggestion"],
    "properties": {
      "course":       {"type": "string"},
      "timestamp":    {"type": "string", "format": "date-time"},
      "what_worked":  {"type": "string"},
      "what_did_not": {"type": "string"},
      "suggestion":   {"type": "string"},
      "rating":       {"type": ["integer", "null"], "minimum": 0, "maximum": 5}
    }
  }
}`

// FeedbackLog is an append-only ordered log of feedback entries.
type FeedbackLog struct {
	mu   sync.Mutex
	file jsonFile
}

// NewFeedbackLog opens the feedback log at path. The file is created on the
// first append.
func NewFeedbackLog(path string) (*FeedbackLog, error) {
	f, err := newJSONFile(path, feedbackSchema)
	if err != nil {
		return nil, err
	}
	return &FeedbackLog{file: f}, nil
}

// OpenFeedbackLog opens the default feedback log inside dataDir.
func OpenFeedbackLog(dataDir string) (*FeedbackLog, error) {
	return NewFeedbackLog(filepath.Join(dataDir, FeedbackFile))
}

// Path returns the backing file path.
func (l *FeedbackLog) Path() string { return l.file.path }

// Append adds e to the end of the log.
func (l *FeedbackLog) Append(e model.FeedbackEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var entries []model.FeedbackEntry
	corrupt, err := l.file.loadOrEmpty(&entries)
	if err != nil {
		return fmt.Errorf("load feedback log: %w", err)
	}
	if corrupt {
		entries = nil
		l.file.quarantine()
	}

	entries = append(entries, normalize(e))
	if err := l.file.write(entries); err != nil {
		return fmt.Errorf("append feedback: %w", err)
	}
	return nil
}

// LoadAll returns every entry, oldest first. A missing or corrupt log yields
// an empty slice.
func (l *FeedbackLog) LoadAll() ([]model.FeedbackEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var entries []model.FeedbackEntry
	corrupt, err := l.file.loadOrEmpty(&entries)
	if err != nil {
		return nil, fmt.Errorf("load feedback log: %w", err)
	}
	if corrupt {
		return []model.FeedbackEntry{}, nil
	}
	out := make([]model.FeedbackEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, normalize(e))
	}
	return out, nil
}

// History returns every entry, newest first.
func (l *FeedbackLog) History() ([]model.FeedbackEntry, error) {
	entries, err := l.LoadAll()
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	return entries, nil
}

// normalize drops ratings outside 1..5, so a stored 0 reads as unrated.
func normalize(e model.FeedbackEntry) model.FeedbackEntry {
	if !e.Rated() {
		e.Rating = nil
	}
	return e
}
