// Package ledger persists the append-only record of successfully uploaded
// files and the diagnostic log of exhausted upload failures.
//
// Both files are plain text with one pipe-delimited record per line. Records
// are appended and fsynced one at a time and never rewritten, so a crash can
// at worst leave a partial final line, which the tolerant reader skips on the
// next run.
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// entryFields is the fixed field count of a ledger record.
const entryFields = 5

// Entry is one successfully uploaded file. Entries are immutable once
// written; the content hash alone determines "already uploaded" status.
type Entry struct {
	ItemID     string
	Uploader   string
	RemotePath string // forward-slash relative path within the item
	Hash       string
	Timestamp  string // RFC 3339
}

// String renders the entry as its on-disk line (without trailing newline).
func (e Entry) String() string {
	return strings.Join([]string{e.ItemID, e.Uploader, e.RemotePath, e.Hash, e.Timestamp}, "|")
}

// parseLine parses a single ledger line. Lines with the wrong field count
// (including partial lines from an interrupted write) are rejected.
func parseLine(line string) (Entry, bool) {
	parts := strings.Split(strings.TrimRight(line, "\r"), "|")
	if len(parts) != entryFields {
		return Entry{}, false
	}
	return Entry{
		ItemID:     parts[0],
		Uploader:   parts[1],
		RemotePath: parts[2],
		Hash:       parts[3],
		Timestamp:  parts[4],
	}, true
}

// Log reads and appends the upload ledger at a fixed path
type Log struct {
	path string
}

// New creates a ledger over the given file path. The file is created lazily
// on the first append.
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the ledger file path
func (l *Log) Path() string {
	return l.path
}

// Entries reads all well-formed records in file order. Malformed lines are
// skipped. A missing ledger file yields an empty slice.
func (l *Log) Entries() ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if e, ok := parseLine(scanner.Text()); ok {
			entries = append(entries, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return entries, nil
}

// Hashes returns the set of content hashes already recorded in the ledger
func (l *Log) Hashes() (map[string]struct{}, error) {
	entries, err := l.Entries()
	if err != nil {
		return nil, err
	}
	hashes := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		hashes[e.Hash] = struct{}{}
	}
	return hashes, nil
}

// Append durably writes a single record: open, append, fsync, close. The
// entry is on disk before Append returns, so a crash between uploads never
// loses a committed record.
func (l *Log) Append(e Entry) error {
	return appendLine(l.path, e.String())
}

// Failure is one diagnostic record of an upload whose retry budget was
// exhausted. Failures are write-only; nothing in arcup reads them back.
type Failure struct {
	Timestamp  string // RFC 3339
	ItemID     string
	RemotePath string
	Hash       string
	Message    string
}

// String renders the failure as its on-disk line (without trailing newline).
func (f Failure) String() string {
	// The message comes from arbitrary errors; keep it to one well-formed line.
	msg := sanitizeField(f.Message)
	return strings.Join([]string{f.Timestamp, f.ItemID, f.RemotePath, f.Hash, msg}, "|")
}

// FailureLog appends failure records at a fixed path
type FailureLog struct {
	path string
}

// NewFailureLog creates a failure log over the given file path
func NewFailureLog(path string) *FailureLog {
	return &FailureLog{path: path}
}

// Append durably writes a single failure record
func (l *FailureLog) Append(f Failure) error {
	return appendLine(l.path, f.String())
}

// sanitizeField flattens newlines and field separators out of free-form text
func sanitizeField(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "|", "/")
	return s
}

// appendLine appends one line to path and syncs it to disk before closing
func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s for append: %w", path, err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
