// Package workflow sequences the interactive upload run: scan, confirm,
// upload, render, publish, with cross-run resumption of an unpushed site.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/schaermu/arcup/internal/config"
	"github.com/schaermu/arcup/internal/ledger"
	"github.com/schaermu/arcup/internal/publish"
	"github.com/schaermu/arcup/internal/scan"
	"github.com/schaermu/arcup/internal/site"
	"github.com/schaermu/arcup/internal/upload"
)

// Workflow wires the scanner, upload engine, site builder and pusher into
// the interactive end-to-end run.
type Workflow struct {
	cfg      *config.Config
	scanner  *scan.Scanner
	engine   *upload.Engine
	builder  *site.Builder
	pusher   *publish.Pusher
	store    publish.Store
	uploads  *ledger.Log
	prompter Prompter
	out      io.Writer
	logger   *slog.Logger

	// injected for tests
	now func() time.Time
}

// New creates a workflow over fully constructed collaborators
func New(cfg *config.Config, scanner *scan.Scanner, engine *upload.Engine, builder *site.Builder, pusher *publish.Pusher, store publish.Store, uploads *ledger.Log, prompter Prompter, out io.Writer, logger *slog.Logger) *Workflow {
	return &Workflow{
		cfg:      cfg,
		scanner:  scanner,
		engine:   engine,
		builder:  builder,
		pusher:   pusher,
		store:    store,
		uploads:  uploads,
		prompter: prompter,
		out:      out,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes the full interactive workflow for sourceDir. An empty
// sourceDir is prompted for. A user decline at any gate ends the run
// cleanly; per-item upload failures never abort it.
func (w *Workflow) Run(ctx context.Context, sourceDir string) error {
	if sourceDir == "" {
		var err error
		sourceDir, err = w.prompter.Ask("Path to upload: ")
		if err != nil {
			return err
		}
	}
	info, err := os.Stat(sourceDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("invalid source path: %s", sourceDir)
	}

	// Scanning: project the ledger to its hash set and build the worklist.
	uploaded, err := w.uploads.Hashes()
	if err != nil {
		return err
	}
	w.logger.Info("scanning source directory", "path", sourceDir, "known_hashes", len(uploaded))
	wl, err := w.scanner.Scan(sourceDir, uploaded)
	if err != nil {
		return err
	}

	if len(wl.Files) == 0 {
		fmt.Fprintln(w.out, "All files already uploaded.")
		// Even with nothing to upload, a previously rendered but unpushed
		// site deserves a retry offer.
		return w.offerPendingPublish(ctx)
	}

	estimate := wl.TotalMB() / float64(w.cfg.Upload.SpeedMBps)
	fmt.Fprintf(w.out, "Found %d files (%.2f MB)\n", len(wl.Files), wl.TotalMB())
	fmt.Fprintf(w.out, "Estimated upload time: %.1f minutes\n", estimate/60)

	ok, err := w.prompter.Confirm("Start upload?")
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(w.out, "Upload cancelled.")
		return nil
	}

	uploader, err := w.prompter.Ask("Uploader name: ")
	if err != nil {
		return err
	}
	if uploader == "" {
		return errors.New("uploader name is required")
	}

	item := upload.NewItem(uploader, sourceDir, w.now())
	w.logger.Info("starting upload", "item", item.ID, "files", len(wl.Files))

	res, err := w.engine.Run(ctx, item, wl.Files)
	if err != nil {
		return err
	}
	fmt.Fprintf(w.out, "Upload complete. Success: %d/%d\n", res.Uploaded, len(wl.Files))

	rendered, err := w.renderSite()
	if err != nil {
		return err
	}
	if rendered {
		return w.offerPublish(ctx)
	}
	return w.offerPendingPublish(ctx)
}

// RenderSite regenerates the site from the current ledger without uploading
func (w *Workflow) RenderSite() (bool, error) {
	return w.renderSite()
}

func (w *Workflow) renderSite() (bool, error) {
	entries, err := w.uploads.Entries()
	if err != nil {
		return false, err
	}
	rendered, err := w.builder.Render(entries)
	if err != nil {
		return false, err
	}
	if rendered {
		fmt.Fprintf(w.out, "Rendered %s\n", w.cfg.SitePath())
	}
	return rendered, nil
}

// offerPendingPublish offers a publish retry when a previous run rendered
// the site but its push never completed.
func (w *Workflow) offerPendingPublish(ctx context.Context) error {
	state, err := w.store.Get()
	if err != nil {
		return err
	}
	if state != publish.PendingPublish {
		return nil
	}
	if _, err := os.Stat(w.cfg.SitePath()); err != nil {
		return nil
	}
	fmt.Fprintln(w.out, "A previous site update was never pushed.")
	return w.offerPublish(ctx)
}

// offerPublish runs the publish gate and, on confirmation, the push
func (w *Workflow) offerPublish(ctx context.Context) error {
	ok, err := w.prompter.Confirm("Publish to GitHub Pages?")
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return w.Publish(ctx)
}

// Publish pushes the rendered site. Pre-flight misconfigurations produce
// guidance instead of a pending flag; anything later keeps the flag set so
// the next run can retry without redoing uploads.
func (w *Workflow) Publish(ctx context.Context) error {
	if target, err := w.pusher.Resolve(ctx); err == nil {
		fmt.Fprintf(w.out, "Publishing to %s\n", target.PagesURL)
	}
	target, err := w.pusher.Push(ctx, w.cfg.SitePath(), w.cfg.FeedPath())
	if err != nil {
		if errors.Is(err, publish.ErrNoRemote) {
			fmt.Fprintln(w.out, "No git remote found. Configure one first:")
			fmt.Fprintln(w.out, "  git init")
			fmt.Fprintln(w.out, "  git remote add origin https://github.com/<user>/<repo>.git")
			return err
		}
		if errors.Is(err, publish.ErrRemoteURL) {
			fmt.Fprintln(w.out, "Could not parse the remote URL. Supported forms:")
			fmt.Fprintln(w.out, "  HTTPS: https://github.com/<user>/<repo>")
			fmt.Fprintln(w.out, "  SSH:   git@github.com:<user>/<repo>.git")
			return err
		}
		return err
	}
	fmt.Fprintf(w.out, "Published to %s (branch %s)\n", target.PagesURL, target.Branch)
	fmt.Fprintln(w.out, "The page may take a minute or two to update.")
	return nil
}
