// Package upload drives the sequential, rate-limited upload of a worklist
// into the remote archival service.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schaermu/arcup/internal/archive"
	"github.com/schaermu/arcup/internal/config"
	"github.com/schaermu/arcup/internal/ledger"
	"github.com/schaermu/arcup/internal/scan"
)

// Result summarizes one engine run
type Result struct {
	Uploaded int
	Failed   int
}

// Engine processes worklist items strictly in order, one at a time. Each
// successful upload is durably appended to the ledger before the engine
// moves on; a crash mid-batch loses at most the in-flight item.
type Engine struct {
	client   archive.Client
	uploads  *ledger.Log
	failures *ledger.FailureLog

	collection string
	licenseURL string
	retries    int
	rateLimit  time.Duration
	backoff    time.Duration

	logger *slog.Logger

	// injected for tests
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewEngine creates an upload engine
func NewEngine(client archive.Client, uploads *ledger.Log, failures *ledger.FailureLog, cfg *config.Config, logger *slog.Logger) *Engine {
	return &Engine{
		client:     client,
		uploads:    uploads,
		failures:   failures,
		collection: cfg.Archive.Collection,
		licenseURL: cfg.Archive.LicenseURL,
		retries:    cfg.Upload.Retries,
		rateLimit:  cfg.RateLimit(),
		backoff:    cfg.Backoff(),
		logger:     logger,
		sleep:      sleepCtx,
		now:        time.Now,
	}
}

// Run uploads the worklist into item. Per-item failures are retried up to
// the retry budget, then recorded in the failure log; they never abort the
// batch. Only context cancellation or a ledger write failure stops the run
// early, returning the partial result alongside the error.
func (e *Engine) Run(ctx context.Context, item Item, files []scan.File) (*Result, error) {
	res := &Result{}
	meta := item.Metadata(e.collection, e.licenseURL)

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		e.logger.Info("uploading file",
			"progress", fmt.Sprintf("%d/%d", i+1, len(files)),
			"path", f.RemotePath,
			"item", item.ID)

		// A file that vanished since the scan is not a transient failure;
		// retrying cannot bring it back, so record it and move on.
		if _, err := os.Stat(f.Path); err != nil {
			e.logger.Error("local file missing, skipping retries", "path", f.RemotePath, "error", err)
			if ferr := e.recordFailure(item, f, err); ferr != nil {
				return res, ferr
			}
			res.Failed++
			continue
		}

		uploaded, err := e.uploadWithRetries(ctx, item, f, meta)
		if err != nil {
			return res, err
		}
		if uploaded {
			res.Uploaded++
		} else {
			res.Failed++
		}
	}

	return res, nil
}

// uploadWithRetries attempts one file up to 1+retries times. It returns
// false when the budget is exhausted (with the failure recorded), and a
// non-nil error only for run-aborting conditions (cancellation, ledger
// write failure).
func (e *Engine) uploadWithRetries(ctx context.Context, item Item, f scan.File, meta archive.Metadata) (bool, error) {
	var lastErr error

	for attempt := 0; attempt <= e.retries; attempt++ {
		// Courtesy delay before every attempt, retries included.
		if err := e.sleep(ctx, e.rateLimit); err != nil {
			return false, err
		}

		err := e.client.Put(ctx, item.ID, f.RemotePath, f.Path, meta)
		if err == nil {
			entry := ledger.Entry{
				ItemID:     item.ID,
				Uploader:   item.Uploader,
				RemotePath: f.RemotePath,
				Hash:       f.Hash,
				Timestamp:  e.now().Format(time.RFC3339),
			}
			if err := e.uploads.Append(entry); err != nil {
				// The upload landed but the ledger write failed. Stop the
				// batch: continuing would upload dupes forever after.
				return false, fmt.Errorf("upload succeeded but ledger append failed: %w", err)
			}
			e.logger.Info("upload succeeded", "path", f.RemotePath, "hash", f.Hash)
			return true, nil
		}

		lastErr = err
		if attempt < e.retries {
			e.logger.Warn("upload attempt failed, retrying",
				"path", f.RemotePath,
				"attempt", attempt+1,
				"error", err)
			if err := e.sleep(ctx, e.backoff); err != nil {
				return false, err
			}
		}
	}

	e.logger.Error("upload failed after retries",
		"path", f.RemotePath,
		"attempts", e.retries+1,
		"error", lastErr)
	if err := e.recordFailure(item, f, lastErr); err != nil {
		return false, err
	}
	return false, nil
}

// recordFailure durably appends a diagnostic failure record
func (e *Engine) recordFailure(item Item, f scan.File, cause error) error {
	rec := ledger.Failure{
		Timestamp:  e.now().Format(time.RFC3339),
		ItemID:     item.ID,
		RemotePath: f.RemotePath,
		Hash:       f.Hash,
		Message:    cause.Error(),
	}
	if err := e.failures.Append(rec); err != nil {
		return fmt.Errorf("failed to record upload failure: %w", err)
	}
	return nil
}

// sleepCtx blocks for d or until the context is cancelled
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
