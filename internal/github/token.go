package github

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"elemforge/internal/toolexec"
)

// AuthTokenSource names where a token came from. It is safe to log.
type AuthTokenSource string

const (
	AuthTokenSourceExplicit AuthTokenSource = "explicit"
	AuthTokenSourceEnv      AuthTokenSource = "env:GITHUB_TOKEN"
	AuthTokenSourceGHEnv    AuthTokenSource = "env:GH_TOKEN"
	AuthTokenSourceGitHubCL AuthTokenSource = "gh"
)

// envSources are consulted in order after an explicit token.
var envSources = []struct {
	name   string
	source AuthTokenSource
}{
	{"GITHUB_TOKEN", AuthTokenSourceEnv},
	{"GH_TOKEN", AuthTokenSourceGHEnv},
}

const ghTokenTimeout = 5 * time.Second

// ResolveAuthToken finds a token for publishing releases: the explicit value,
// then GITHUB_TOKEN, then GH_TOKEN, then `gh auth token` run through runner.
// Finding nothing is not an error; the caller decides whether a token is
// required.
func ResolveAuthToken(ctx context.Context, explicit string, runner toolexec.Runner) (string, AuthTokenSource, error) {
	if tok := strings.TrimSpace(explicit); tok != "" {
		return tok, AuthTokenSourceExplicit, nil
	}
	for _, env := range envSources {
		if tok := strings.TrimSpace(os.Getenv(env.name)); tok != "" {
			return tok, env.source, nil
		}
	}

	if runner == nil {
		runner = toolexec.ExecRunner{}
	}
	tok, err := ghAuthToken(ctx, runner)
	if err != nil || tok == "" {
		return "", "", err
	}
	return tok, AuthTokenSourceGitHubCL, nil
}

// ghAuthToken asks the GitHub CLI for its token. A missing or logged-out gh
// yields "" without an error, and its output is never surfaced. Only a
// cancelled context is reported.
func ghAuthToken(ctx context.Context, runner toolexec.Runner) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ghTokenTimeout)
		defer cancel()
	}

	res, err := runner.Run(ctx, toolexec.Command{
		Name: "gh",
		Args: []string{"auth", "token", "-h", "github.com"},
		Env:  []string{"GH_PAGER=cat"},
	})
	if err != nil {
		return "", ctx.Err()
	}

	tok := strings.TrimSpace(res.Stdout)
	if strings.ContainsAny(tok, " \t\n\r") {
		return "", errors.New("invalid token returned by gh: contains whitespace")
	}
	return tok, nil
}
