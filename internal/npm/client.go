package npm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"elemforge/internal/toolexec"
)

// Client runs npm in a package directory.
type Client struct {
	Dir    string
	Runner toolexec.Runner
}

func NewClient(dir string, runner toolexec.Runner) *Client {
	if runner == nil {
		runner = toolexec.ExecRunner{}
	}
	return &Client{Dir: dir, Runner: runner}
}

func (c *Client) npm(ctx context.Context, args ...string) (string, error) {
	res, err := c.Runner.Run(ctx, toolexec.Command{Name: "npm", Args: args, Dir: c.Dir})
	return strings.TrimSpace(res.Stdout), err
}

// Whoami returns the logged-in registry user.
func (c *Client) Whoami(ctx context.Context) (string, error) {
	out, err := c.npm(ctx, "whoami")
	if err != nil {
		return "", fmt.Errorf("npm whoami: %w", err)
	}
	return out, nil
}

// Published reports whether name@version already exists on the registry.
func (c *Client) Published(ctx context.Context, name, version string) (bool, error) {
	out, err := c.npm(ctx, "view", name+"@"+version, "version")
	if err != nil {
		var exitErr *toolexec.ExitError
		if errors.As(err, &exitErr) && strings.Contains(exitErr.Stderr, "E404") {
			return false, nil
		}
		return false, fmt.Errorf("npm view: %w", err)
	}
	return out == version, nil
}

func (c *Client) Publish(ctx context.Context, tag string, dryRun bool) error {
	args := []string{"publish"}
	if tag != "" {
		args = append(args, "--tag", tag)
	}
	if dryRun {
		args = append(args, "--dry-run")
	}
	if _, err := c.npm(ctx, args...); err != nil {
		return fmt.Errorf("npm publish: %w", err)
	}
	return nil
}
