package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Client provides the git operations needed to publish the rendered site.
// All operations act on a single working repository.
type Client interface {
	// RemoteURL returns the URL of the named remote
	RemoteURL(ctx context.Context, remote string) (string, error)
	// CurrentBranch returns the currently checked out branch name
	CurrentBranch(ctx context.Context) (string, error)
	// LocalBranches lists the local branch names
	LocalBranches(ctx context.Context) ([]string, error)
	// DefaultBranch returns the remote's default branch name
	DefaultBranch(ctx context.Context, remote string) (string, error)
	// Checkout switches the working tree to the named branch
	Checkout(ctx context.Context, branch string) error
	// Add stages the given paths
	Add(ctx context.Context, paths ...string) error
	// HasStagedChanges reports whether anything is staged for commit
	HasStagedChanges(ctx context.Context) (bool, error)
	// Commit records the staged changes with the given message
	Commit(ctx context.Context, message string) error
	// Push pushes the named branch to the named remote
	Push(ctx context.Context, remote, branch string) error
}

// ShellClient implements Client by shelling out to the git command
type ShellClient struct {
	dir string
}

// NewShellClient creates a git client operating on the repository at dir
func NewShellClient(dir string) *ShellClient {
	return &ShellClient{dir: dir}
}

// RemoteURL returns the URL of the named remote
func (c *ShellClient) RemoteURL(ctx context.Context, remote string) (string, error) {
	return c.query(ctx, "remote", "get-url", remote)
}

// CurrentBranch returns the currently checked out branch name
func (c *ShellClient) CurrentBranch(ctx context.Context) (string, error) {
	return c.query(ctx, "branch", "--show-current")
}

// LocalBranches lists the local branch names
func (c *ShellClient) LocalBranches(ctx context.Context) ([]string, error) {
	out, err := c.query(ctx, "for-each-ref", "--format=%(refname:short)", "refs/heads")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// DefaultBranch returns the remote's default branch, resolved through the
// remote HEAD symbolic ref. Fails when the ref was never recorded locally
// (e.g. the repo was initialized rather than cloned).
func (c *ShellClient) DefaultBranch(ctx context.Context, remote string) (string, error) {
	out, err := c.query(ctx, "symbolic-ref", "--short", "refs/remotes/"+remote+"/HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(out, remote+"/"), nil
}

// Checkout switches the working tree to the named branch
func (c *ShellClient) Checkout(ctx context.Context, branch string) error {
	return c.run(ctx, "checkout", branch)
}

// Add stages the given paths
func (c *ShellClient) Add(ctx context.Context, paths ...string) error {
	return c.run(ctx, append([]string{"add", "--"}, paths...)...)
}

// HasStagedChanges reports whether anything is staged for commit
func (c *ShellClient) HasStagedChanges(ctx context.Context) (bool, error) {
	// diff --cached --quiet exits 1 when the index differs from HEAD.
	cmd := exec.CommandContext(ctx, "git", "-C", c.dir, "diff", "--cached", "--quiet")
	err := cmd.Run()
	if err == nil {
		return false, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, fmt.Errorf("git diff --cached failed: %w", err)
}

// Commit records the staged changes with the given message
func (c *ShellClient) Commit(ctx context.Context, message string) error {
	return c.run(ctx, "commit", "-m", message)
}

// Push pushes the named branch to the named remote
func (c *ShellClient) Push(ctx context.Context, remote, branch string) error {
	return c.run(ctx, "push", remote, branch)
}

// run executes a git subcommand and returns an error with output on failure
func (c *ShellClient) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", c.dir}, args...)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s failed: %w: %s", args[0], err, strings.TrimSpace(string(output)))
	}
	return nil
}

// query executes a git subcommand and returns its trimmed stdout
func (c *ShellClient) query(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", c.dir}, args...)...)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w", args[0], err)
	}
	return strings.TrimSpace(string(output)), nil
}
