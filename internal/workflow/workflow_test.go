package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/schaermu/arcup/internal/archive"
	"github.com/schaermu/arcup/internal/config"
	"github.com/schaermu/arcup/internal/ledger"
	"github.com/schaermu/arcup/internal/publish"
	"github.com/schaermu/arcup/internal/scan"
	"github.com/schaermu/arcup/internal/site"
	"github.com/schaermu/arcup/internal/upload"
)

// scriptPrompter replays canned answers and records the prompts it saw.
type scriptPrompter struct {
	answers []string
	prompts []string
}

func (p *scriptPrompter) Ask(prompt string) (string, error) {
	p.prompts = append(p.prompts, prompt)
	if len(p.answers) == 0 {
		return "", fmt.Errorf("unexpected prompt: %s", prompt)
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer, nil
}

func (p *scriptPrompter) Confirm(prompt string) (bool, error) {
	answer, err := p.Ask(prompt)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(answer, "y"), nil
}

func (p *scriptPrompter) sawPrompt(substr string) bool {
	for _, prompt := range p.prompts {
		if strings.Contains(prompt, substr) {
			return true
		}
	}
	return false
}

// mockArchive implements archive.Client and always succeeds.
type mockArchive struct {
	puts []string
}

func (m *mockArchive) Put(_ context.Context, _, remotePath, _ string, _ archive.Metadata) error {
	m.puts = append(m.puts, remotePath)
	return nil
}

// mockGit implements git.Client; only RemoteURL matters for these tests.
type mockGit struct {
	remoteURLErr error
}

func (m *mockGit) RemoteURL(_ context.Context, _ string) (string, error) {
	return "", m.remoteURLErr
}
func (m *mockGit) CurrentBranch(_ context.Context) (string, error)          { return "main", nil }
func (m *mockGit) LocalBranches(_ context.Context) ([]string, error)        { return []string{"main"}, nil }
func (m *mockGit) DefaultBranch(_ context.Context, _ string) (string, error) { return "main", nil }
func (m *mockGit) Checkout(_ context.Context, _ string) error               { return nil }
func (m *mockGit) Add(_ context.Context, _ ...string) error                 { return nil }
func (m *mockGit) HasStagedChanges(_ context.Context) (bool, error)         { return true, nil }
func (m *mockGit) Commit(_ context.Context, _ string) error                 { return nil }
func (m *mockGit) Push(_ context.Context, _, _ string) error                { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testFixture struct {
	wf       *Workflow
	cfg      *config.Config
	client   *mockArchive
	store    *publish.FileStore
	uploads  *ledger.Log
	prompter *scriptPrompter
	out      *bytes.Buffer
}

func newFixture(t *testing.T, answers []string, gitErr error) *testFixture {
	t.Helper()
	workDir := t.TempDir()

	cfg := config.Default()
	cfg.Paths.WorkDir = workDir
	cfg.Upload.RateLimitSeconds = 0
	cfg.Upload.BackoffSeconds = 0

	logger := testLogger()
	client := &mockArchive{}
	uploads := ledger.New(cfg.LedgerPath())
	failures := ledger.NewFailureLog(cfg.FailureLogPath())
	store := publish.NewFileStore(cfg.PendingFlagPath())
	scanner := scan.NewScanner(cfg.MaxFileBytes(), logger)
	engine := upload.NewEngine(client, uploads, failures, cfg, logger)
	builder := site.NewBuilder(cfg.Archive.DownloadBase, cfg.SitePath(), cfg.FeedPath(), store, logger)
	pusher := publish.NewPusher(&mockGit{remoteURLErr: gitErr}, store, cfg.Publish.Remote, cfg.Publish.PagesBranch, cfg.Publish.CommitMessage, nil, logger)

	prompter := &scriptPrompter{answers: answers}
	out := &bytes.Buffer{}

	return &testFixture{
		wf:       New(cfg, scanner, engine, builder, pusher, store, uploads, prompter, out, logger),
		cfg:      cfg,
		client:   client,
		store:    store,
		uploads:  uploads,
		prompter: prompter,
		out:      out,
	}
}

func writeSource(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestRunFullWorkflow(t *testing.T) {
	src := writeSource(t, map[string]string{
		"a/b.txt": "content b",
		"a/c.txt": "content c",
	})

	// Confirm upload, give a name, decline publish.
	f := newFixture(t, []string{"y", "alice", "n"}, nil)

	if err := f.wf.Run(context.Background(), src); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(f.client.puts) != 2 {
		t.Fatalf("expected 2 uploads, got %v", f.client.puts)
	}

	entries, err := f.uploads.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(entries))
	}
	if entries[0].Uploader != "alice" {
		t.Errorf("expected uploader alice, got %s", entries[0].Uploader)
	}

	// Site rendered, publish declined, so the pending flag must persist.
	if _, err := os.Stat(f.cfg.SitePath()); err != nil {
		t.Errorf("expected rendered site: %v", err)
	}
	state, err := f.store.Get()
	if err != nil {
		t.Fatal(err)
	}
	if state != publish.PendingPublish {
		t.Errorf("expected PendingPublish after declined push, got %s", state)
	}

	if !strings.Contains(f.out.String(), "Success: 2/2") {
		t.Errorf("expected success summary, got:\n%s", f.out.String())
	}
}

func TestRunDeclineUpload(t *testing.T) {
	src := writeSource(t, map[string]string{"a.txt": "alpha"})
	f := newFixture(t, []string{"n"}, nil)

	if err := f.wf.Run(context.Background(), src); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(f.client.puts) != 0 {
		t.Errorf("expected no uploads after decline, got %v", f.client.puts)
	}
	if !strings.Contains(f.out.String(), "cancelled") {
		t.Errorf("expected cancellation notice, got:\n%s", f.out.String())
	}
}

func TestRunSecondRunIsIdempotent(t *testing.T) {
	src := writeSource(t, map[string]string{"a.txt": "alpha", "b.txt": "beta"})

	first := newFixture(t, []string{"y", "alice", "n"}, nil)
	if err := first.wf.Run(context.Background(), src); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Second run over the same work dir: worklist must be empty, and the
	// pending flag from the declined publish must trigger a retry offer.
	f2 := newFixtureSharingWorkDir(t, first.cfg, []string{"n"}, nil)

	if err := f2.wf.Run(context.Background(), src); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(f2.client.puts) != 0 {
		t.Errorf("expected no uploads on second run, got %v", f2.client.puts)
	}

	entries, err := f2.uploads.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected ledger unchanged with 2 entries, got %d", len(entries))
	}

	if !strings.Contains(f2.out.String(), "never pushed") {
		t.Errorf("expected pending publish notice, got:\n%s", f2.out.String())
	}
	if !f2.prompter.sawPrompt("Publish") {
		t.Error("expected a publish retry offer on the second run")
	}
}

// newFixtureSharingWorkDir builds a fixture over an existing work dir so a
// second run sees the first run's ledger and sentinel.
func newFixtureSharingWorkDir(t *testing.T, prev *config.Config, answers []string, gitErr error) *testFixture {
	t.Helper()
	f := newFixture(t, answers, gitErr)
	cfg := f.cfg
	cfg.Paths.WorkDir = prev.Paths.WorkDir

	logger := testLogger()
	f.uploads = ledger.New(cfg.LedgerPath())
	failures := ledger.NewFailureLog(cfg.FailureLogPath())
	f.store = publish.NewFileStore(cfg.PendingFlagPath())
	scanner := scan.NewScanner(cfg.MaxFileBytes(), logger)
	engine := upload.NewEngine(f.client, f.uploads, failures, cfg, logger)
	builder := site.NewBuilder(cfg.Archive.DownloadBase, cfg.SitePath(), cfg.FeedPath(), f.store, logger)
	pusher := publish.NewPusher(&mockGit{remoteURLErr: gitErr}, f.store, cfg.Publish.Remote, cfg.Publish.PagesBranch, cfg.Publish.CommitMessage, nil, logger)
	f.wf = New(cfg, scanner, engine, builder, pusher, f.store, f.uploads, f.prompter, f.out, logger)
	return f
}

func TestRunInvalidSourcePath(t *testing.T) {
	f := newFixture(t, nil, nil)
	err := f.wf.Run(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error for invalid source path")
	}
}

func TestRunMissingUploaderName(t *testing.T) {
	src := writeSource(t, map[string]string{"a.txt": "alpha"})
	f := newFixture(t, []string{"y", ""}, nil)

	if err := f.wf.Run(context.Background(), src); err == nil {
		t.Fatal("expected error for empty uploader name")
	}
	if len(f.client.puts) != 0 {
		t.Errorf("expected no uploads, got %v", f.client.puts)
	}
}

func TestPublishGuidanceForMissingRemote(t *testing.T) {
	f := newFixture(t, nil, errors.New("no such remote"))

	err := f.wf.Publish(context.Background())
	if !errors.Is(err, publish.ErrNoRemote) {
		t.Fatalf("expected ErrNoRemote, got %v", err)
	}
	if !strings.Contains(f.out.String(), "git remote add origin") {
		t.Errorf("expected remote setup guidance, got:\n%s", f.out.String())
	}

	// Pre-flight misconfiguration must leave the flag untouched.
	state, err := f.store.Get()
	if err != nil {
		t.Fatal(err)
	}
	if state != publish.Clean {
		t.Errorf("expected Clean state, got %s", state)
	}
}

func TestStdioPrompter(t *testing.T) {
	for _, tc := range []struct {
		name   string
		input  string
		want   bool
	}{
		{name: "uppercase yes", input: "Y\n", want: true},
		{name: "lowercase yes", input: "yes\n", want: true},
		{name: "no", input: "n\n", want: false},
		{name: "invalid input declines", input: "maybe\n", want: false},
		{name: "empty declines", input: "\n", want: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewStdioPrompter(strings.NewReader(tc.input), &out)
			got, err := p.Confirm("Proceed?")
			if err != nil {
				t.Fatalf("confirm: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
			if !strings.Contains(out.String(), "(Y/N)") {
				t.Error("expected (Y/N) suffix in prompt")
			}
		})
	}

	p := NewStdioPrompter(strings.NewReader("  spaced answer  \n"), &bytes.Buffer{})
	got, err := p.Ask("Name: ")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if got != "spaced answer" {
		t.Errorf("expected trimmed answer, got %q", got)
	}
}
