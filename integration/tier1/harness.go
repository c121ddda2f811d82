//go:build integration

package tier1

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/schaermu/arcup/internal/testutil"
)

// Harness builds the arcup binary once and provides an isolated work dir,
// a fake archive endpoint, and a local git remote for each test run.
type Harness struct {
	t       *testing.T
	binPath string

	workDir   string
	remoteDir string
	server    *httptest.Server

	mu   sync.Mutex
	puts []string
}

var (
	buildOnce sync.Once
	buildBin  string
	buildErr  error
)

// NewHarness compiles the binary (once per test process) and prepares an
// isolated environment for one scenario.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	buildOnce.Do(func() {
		root, err := testutil.FindProjectRoot()
		if err != nil {
			buildErr = fmt.Errorf("find project root: %w", err)
			return
		}
		dir, err := os.MkdirTemp("", "arcup-tier1-*")
		if err != nil {
			buildErr = err
			return
		}
		buildBin = filepath.Join(dir, "arcup")
		cmd := exec.Command("go", "build", "-o", buildBin, "./cmd/arcup")
		cmd.Dir = root
		if out, err := cmd.CombinedOutput(); err != nil {
			buildErr = fmt.Errorf("go build: %w\n%s", err, out)
		}
	})
	if buildErr != nil {
		t.Fatalf("build binary: %v", buildErr)
	}

	h := &Harness{t: t, binPath: buildBin, workDir: t.TempDir()}

	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "unexpected method", http.StatusMethodNotAllowed)
			return
		}
		h.mu.Lock()
		h.puts = append(h.puts, r.URL.Path)
		h.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(h.server.Close)

	h.setupGitRepo()
	h.writeConfig()
	return h
}

// Puts returns the request paths received by the fake archive
func (h *Harness) Puts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.puts...)
}

// WorkDir returns the work dir holding the ledger, site and sentinel
func (h *Harness) WorkDir() string {
	return h.workDir
}

// RemoteDir returns the bare repository acting as the git remote
func (h *Harness) RemoteDir() string {
	return h.remoteDir
}

// setupGitRepo turns the work dir into a git repo tracking a local bare
// remote named origin, with an initial commit on main. The fetch URL is a
// GitHub-shaped URL so remote parsing works, while the push URL points at
// the local bare repo so pushes stay offline.
func (h *Harness) setupGitRepo() {
	h.t.Helper()

	h.remoteDir = h.t.TempDir()
	h.git(h.remoteDir, "init", "--bare")

	h.git(h.workDir, "init", "-b", "main")
	h.git(h.workDir, "config", "user.email", "tier1@example.com")
	h.git(h.workDir, "config", "user.name", "Tier1")
	h.git(h.workDir, "remote", "add", "origin", "https://github.com/tier1/archive.git")
	h.git(h.workDir, "config", "remote.origin.pushurl", h.remoteDir)

	readme := filepath.Join(h.workDir, "README.md")
	if err := os.WriteFile(readme, []byte("archive index\n"), 0644); err != nil {
		h.t.Fatal(err)
	}
	h.git(h.workDir, "add", "README.md")
	h.git(h.workDir, "commit", "-m", "initial commit")
	h.git(h.workDir, "push", "origin", "main")
}

func (h *Harness) writeConfig() {
	h.t.Helper()

	config := fmt.Sprintf(`archive:
  endpoint: %q
  download_base: %q

paths:
  work_dir: %q

upload:
  rate_limit_seconds: 1
  backoff_seconds: 1
`, h.server.URL, h.server.URL+"/download", h.workDir)

	path := filepath.Join(h.workDir, "config.yaml")
	if err := os.WriteFile(path, []byte(config), 0o600); err != nil {
		h.t.Fatalf("write config: %v", err)
	}
}

// Run executes an arcup subcommand with the given stdin answers and returns
// combined output, failing the test on a non-zero exit.
func (h *Harness) Run(stdin string, args ...string) string {
	h.t.Helper()
	out, err := h.run(stdin, args...)
	if err != nil {
		h.t.Fatalf("arcup %v failed: %v\noutput:\n%s", args, err, out)
	}
	return out
}

func (h *Harness) run(stdin string, args ...string) (string, error) {
	args = append([]string{"--config", filepath.Join(h.workDir, "config.yaml")}, args...)
	cmd := exec.Command(h.binPath, args...)
	cmd.Dir = h.workDir
	cmd.Stdin = strings.NewReader(stdin)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func (h *Harness) git(dir string, args ...string) {
	h.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		h.t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

// gitOutput runs a git command in the bare remote and returns its output
func (h *Harness) gitOutput(dir string, args ...string) string {
	h.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		h.t.Fatalf("git %v: %v", args, err)
	}
	return strings.TrimSpace(string(out))
}
