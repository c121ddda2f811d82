// Package publish pushes the rendered site through the version-control
// remote and tracks the pending-publish state across runs.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/schaermu/arcup/internal/git"
)

// Pre-flight misconfigurations. These abort the publish phase without
// touching the pending-publish state: retrying cannot fix them, only the
// user can.
var (
	// ErrNoRemote means the repository has no configured remote to push to.
	ErrNoRemote = errors.New("no git remote configured")
	// ErrRemoteURL means the remote URL matches no supported GitHub form.
	ErrRemoteURL = errors.New("unsupported remote URL")
)

// Target describes where a publish will land
type Target struct {
	Owner    string
	Repo     string
	Branch   string
	PagesURL string
}

// ConfirmFunc asks the user to approve switching from the current branch to
// the publish branch. Returning false declines the switch and aborts the
// publish without error side effects beyond the retained pending flag.
type ConfirmFunc func(current, target string) (bool, error)

// Pusher stages, commits and pushes rendered output. Any failure after the
// pre-flight checks re-asserts PendingPublish so the next run can retry.
type Pusher struct {
	git           git.Client
	store         Store
	remote        string
	pagesBranch   string
	message       string
	confirmSwitch ConfirmFunc
	logger        *slog.Logger
}

// NewPusher creates a pusher. confirmSwitch may be nil, in which case a
// needed branch switch is performed without asking.
func NewPusher(gitClient git.Client, store Store, remote, pagesBranch, message string, confirmSwitch ConfirmFunc, logger *slog.Logger) *Pusher {
	return &Pusher{
		git:           gitClient,
		store:         store,
		remote:        remote,
		pagesBranch:   pagesBranch,
		message:       message,
		confirmSwitch: confirmSwitch,
		logger:        logger,
	}
}

// Resolve runs the pre-flight checks: the remote must exist, its URL must
// parse, and a publish branch is chosen. The pending flag is not touched on
// failure here.
func (p *Pusher) Resolve(ctx context.Context) (*Target, error) {
	url, err := p.git.RemoteURL(ctx, p.remote)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNoRemote, p.remote)
	}

	owner, repo, ok := ParseRemote(url)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRemoteURL, url)
	}

	branch, err := p.publishBranch(ctx)
	if err != nil {
		return nil, err
	}

	return &Target{
		Owner:    owner,
		Repo:     repo,
		Branch:   branch,
		PagesURL: PagesURL(owner, repo),
	}, nil
}

// publishBranch prefers the conventional pages branch when it exists
// locally, then the remote's default branch, then main.
func (p *Pusher) publishBranch(ctx context.Context) (string, error) {
	branches, err := p.git.LocalBranches(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list branches: %w", err)
	}
	if slices.Contains(branches, p.pagesBranch) {
		return p.pagesBranch, nil
	}
	if branch, err := p.git.DefaultBranch(ctx, p.remote); err == nil && branch != "" {
		return branch, nil
	}
	return "main", nil
}

// Push stages the given paths, commits and pushes them to the resolved
// target. On success the state is cleared to Clean; on any failure past the
// pre-flight checks the state is (re-)set to PendingPublish and the error is
// returned to the caller.
func (p *Pusher) Push(ctx context.Context, paths ...string) (*Target, error) {
	target, err := p.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	if err := p.push(ctx, target, paths); err != nil {
		if serr := p.store.Set(PendingPublish); serr != nil {
			p.logger.Error("failed to persist pending-publish flag", "error", serr)
		}
		return nil, err
	}

	if err := p.store.Set(Clean); err != nil {
		return nil, fmt.Errorf("push succeeded but failed to clear pending flag: %w", err)
	}
	p.logger.Info("site published", "branch", target.Branch, "url", target.PagesURL)
	return target, nil
}

func (p *Pusher) push(ctx context.Context, target *Target, paths []string) error {
	current, err := p.git.CurrentBranch(ctx)
	if err != nil {
		return fmt.Errorf("failed to determine current branch: %w", err)
	}

	if current != target.Branch {
		if p.confirmSwitch != nil {
			ok, err := p.confirmSwitch(current, target.Branch)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("publish requires branch %s but %s is checked out", target.Branch, current)
			}
		}
		p.logger.Info("switching branch", "from", current, "to", target.Branch)
		if err := p.git.Checkout(ctx, target.Branch); err != nil {
			return err
		}
	}

	if err := p.git.Add(ctx, paths...); err != nil {
		return err
	}

	// A retried publish may find the commit already recorded and only the
	// push outstanding; skip the empty commit in that case.
	staged, err := p.git.HasStagedChanges(ctx)
	if err != nil {
		return err
	}
	if staged {
		if err := p.git.Commit(ctx, p.message); err != nil {
			return err
		}
	} else {
		p.logger.Info("nothing new to commit, pushing existing commits")
	}

	return p.git.Push(ctx, p.remote, target.Branch)
}
