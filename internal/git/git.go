// Package git wraps the git CLI operations used by the release flow.
package git

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"elemforge/internal/toolexec"
)

var ErrNoTags = errors.New("no tags found")

type Repo struct {
	Dir    string
	Runner toolexec.Runner
}

func New(dir string, runner toolexec.Runner) *Repo {
	if runner == nil {
		runner = toolexec.ExecRunner{}
	}
	return &Repo{Dir: dir, Runner: runner}
}

func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	res, err := r.Runner.Run(ctx, toolexec.Command{Name: "git", Args: args, Dir: r.Dir})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Status returns the porcelain status lines; empty means a clean tree.
func (r *Repo) Status(ctx context.Context) ([]string, error) {
	out, err := r.git(ctx, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("git status: %w", err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func (r *Repo) IsClean(ctx context.Context) (bool, error) {
	lines, err := r.Status(ctx)
	return len(lines) == 0, err
}

func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git current branch: %w", err)
	}
	return out, nil
}

func (r *Repo) TagExists(ctx context.Context, tag string) (bool, error) {
	out, err := r.git(ctx, "tag", "--list", tag)
	if err != nil {
		return false, fmt.Errorf("git tag list: %w", err)
	}
	return out != "", nil
}

// LatestTag returns the most recent tag reachable from HEAD matching prefix*.
func (r *Repo) LatestTag(ctx context.Context, prefix string) (string, error) {
	out, err := r.git(ctx, "describe", "--tags", "--abbrev=0", "--match", prefix+"*")
	if err != nil {
		var exitErr *toolexec.ExitError
		if errors.As(err, &exitErr) && noTagsFound(exitErr.Stderr) {
			return "", ErrNoTags
		}
		return "", fmt.Errorf("git describe: %w", err)
	}
	return out, nil
}

// noTagsFound reports whether git describe failed only because nothing matched.
func noTagsFound(stderr string) bool {
	return strings.Contains(stderr, "No names found") || strings.Contains(stderr, "cannot describe")
}

// Log returns one-line commit subjects in from..HEAD, newest first. An empty
// from lists the whole history.
func (r *Repo) Log(ctx context.Context, from string) ([]string, error) {
	args := []string{"log", "--no-merges", "--pretty=format:%h %s"}
	if from != "" {
		args = append(args, from+"..HEAD")
	}
	out, err := r.git(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("git log: %w", err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func (r *Repo) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if _, err := r.git(ctx, append([]string{"add", "--"}, paths...)...); err != nil {
		return fmt.Errorf("git add: %w", err)
	}
	return nil
}

func (r *Repo) Commit(ctx context.Context, message string) error {
	if _, err := r.git(ctx, "commit", "-m", message); err != nil {
		return fmt.Errorf("git commit: %w", err)
	}
	return nil
}

// Tag creates an annotated tag on HEAD.
func (r *Repo) Tag(ctx context.Context, tag, message string) error {
	if _, err := r.git(ctx, "tag", "-a", tag, "-m", message); err != nil {
		return fmt.Errorf("git tag: %w", err)
	}
	return nil
}

// Push pushes branch and the given tag to remote.
func (r *Repo) Push(ctx context.Context, remote, branch, tag string) error {
	args := []string{"push", remote, branch}
	if tag != "" {
		args = append(args, tag)
	}
	if _, err := r.git(ctx, args...); err != nil {
		return fmt.Errorf("git push: %w", err)
	}
	return nil
}

func (r *Repo) RemoteURL(ctx context.Context, remote string) (string, error) {
	out, err := r.git(ctx, "remote", "get-url", remote)
	if err != nil {
		return "", fmt.Errorf("git remote get-url: %w", err)
	}
	return out, nil
}

var githubRemote = regexp.MustCompile(`github\.com[:/]([^/\s]+)/([^/\s]+?)(?:\.git)?/?$`)

// GitHubRepository extracts OWNER/REPO from a GitHub remote URL (https or ssh).
func GitHubRepository(remoteURL string) (string, bool) {
	m := githubRemote.FindStringSubmatch(strings.TrimSpace(remoteURL))
	if m == nil {
		return "", false
	}
	return m[1] + "/" + m[2], true
}
