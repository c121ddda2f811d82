package publish

import (
	"fmt"
	"os"
	"time"
)

// State tracks whether rendered output exists that was never confirmed pushed
type State int

const (
	// Clean means everything rendered has been pushed (or nothing was rendered).
	Clean State = iota
	// PendingPublish means the rendered site has content not yet confirmed
	// pushed. The flag survives restarts so the next run can offer a retry.
	PendingPublish
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case PendingPublish:
		return "pending-publish"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Store persists the publish state across runs
type Store interface {
	Get() (State, error)
	Set(State) error
}

// FileStore implements Store as a sentinel file: the file existing means
// PendingPublish. Its content is an informational timestamp only.
type FileStore struct {
	path string
	now  func() time.Time
}

// NewFileStore creates a store backed by the sentinel file at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Get reports PendingPublish when the sentinel file exists
func (s *FileStore) Get() (State, error) {
	_, err := os.Stat(s.path)
	if err == nil {
		return PendingPublish, nil
	}
	if os.IsNotExist(err) {
		return Clean, nil
	}
	return Clean, fmt.Errorf("failed to stat sentinel file: %w", err)
}

// Set creates or removes the sentinel file. Both directions are idempotent.
func (s *FileStore) Set(state State) error {
	switch state {
	case PendingPublish:
		content := s.now().Format(time.RFC3339) + "\n"
		if err := os.WriteFile(s.path, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write sentinel file: %w", err)
		}
		return nil
	case Clean:
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove sentinel file: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("invalid publish state: %d", int(state))
	}
}
