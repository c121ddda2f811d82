// Package scan walks a source directory and produces the ordered worklist of
// files that still need uploading.
package scan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// File is one worklist entry selected for upload
type File struct {
	Path       string // absolute local path
	RemotePath string // forward-slash path relative to the scan root
	Hash       string // SHA-256 content hash, hex encoded
	Size       int64  // size in bytes
}

// Worklist is the ordered result of a scan
type Worklist struct {
	Files      []File
	TotalBytes int64
	// SkippedLarge and SkippedUploaded count files excluded by the size
	// ceiling and by ledger dedup, respectively.
	SkippedLarge    int
	SkippedUploaded int
}

// TotalMB returns the aggregate worklist size in MiB
func (w *Worklist) TotalMB() float64 {
	return float64(w.TotalBytes) / (1024 * 1024)
}

// Scanner enumerates regular files under a root and filters them against the
// size ceiling and the set of already-uploaded content hashes. It never
// mutates the ledger.
type Scanner struct {
	maxBytes int64
	logger   *slog.Logger
}

// NewScanner creates a scanner with the given per-file size ceiling in bytes
func NewScanner(maxBytes int64, logger *slog.Logger) *Scanner {
	return &Scanner{maxBytes: maxBytes, logger: logger}
}

// Scan walks root recursively in lexical order and returns the worklist of
// files to upload. uploaded is the hash-set projection of the ledger;
// files whose content hash appears in it are skipped. Oversized files are
// skipped before hashing and never consult the set.
func (s *Scanner) Scan(root string, uploaded map[string]struct{}) (*Worklist, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path is not a directory: %s", root)
	}

	wl := &Worklist{}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)

		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if fi.Size() > s.maxBytes {
			s.logger.Warn("skipping oversized file",
				"path", rel,
				"size_mb", fmt.Sprintf("%.2f", float64(fi.Size())/(1024*1024)))
			wl.SkippedLarge++
			return nil
		}

		hash, err := FileHash(path)
		if err != nil {
			return fmt.Errorf("failed to hash %s: %w", path, err)
		}
		if _, ok := uploaded[hash]; ok {
			s.logger.Info("skipping already uploaded file", "path", rel, "hash", hash)
			wl.SkippedUploaded++
			return nil
		}

		wl.Files = append(wl.Files, File{
			Path:       path,
			RemotePath: rel,
			Hash:       hash,
			Size:       fi.Size(),
		})
		wl.TotalBytes += fi.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	return wl, nil
}

// FileHash computes the hex-encoded SHA-256 hash of a file's content
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
