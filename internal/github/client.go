// Package github publishes releases to GitHub.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v81/github"
	"golang.org/x/oauth2"
)

// UserAgent identifies elemforge to the GitHub API.
const UserAgent = "elemforge"

// Client is the REST client used for releases. Every request is metered by
// Budget and traced at debug level.
type Client struct {
	Client *github.Client
	HTTP   *http.Client
	Budget *RequestBudget
}

type clientConfig struct {
	logger  *slog.Logger
	apiRoot string
	budget  *RequestBudget
}

type Option func(*clientConfig)

// WithLogger traces each API call at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}

// WithBaseURL points the client at another API root, such as a GitHub
// Enterprise Server ("https://ghe.example.com/api/v3/") or a test server.
// Uploads go to the same root.
func WithBaseURL(raw string) Option {
	return func(c *clientConfig) { c.apiRoot = raw }
}

// WithBudget shares a request budget between clients.
func WithBudget(b *RequestBudget) Option {
	return func(c *clientConfig) { c.budget = b }
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// traced logs one record per exchange. Query strings are dropped since upload
// URLs carry asset names that are not interesting at this level.
func traced(base http.RoundTripper, logger *slog.Logger) http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := base.RoundTrip(req)
		attrs := []any{
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Duration("elapsed", time.Since(start).Truncate(time.Millisecond)),
		}
		if err != nil {
			logger.DebugContext(req.Context(), "github api failed", append(attrs, slog.Any("err", err))...)
			return resp, err
		}
		logger.DebugContext(req.Context(), "github api", append(attrs, slog.Int("status", resp.StatusCode))...)
		return resp, nil
	})
}

// metered spends one unit of the budget per request and refreshes it from
// the rate-limit headers of each response.
func metered(base http.RoundTripper, budget *RequestBudget) http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if err := budget.Acquire(req.Context(), 1); err != nil {
			return nil, fmt.Errorf("github request budget: %w", err)
		}
		resp, err := base.RoundTrip(req)
		budget.UpdateFromResponse(resp)
		return resp, err
	})
}

// NewClient builds a REST client. An empty token yields an unauthenticated
// client, which is enough for read-only calls against public repositories.
func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, errors.New("github client: ctx is nil")
	}

	cfg := clientConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.budget == nil {
		cfg.budget = NewRequestBudget()
	}

	rt := http.DefaultTransport
	if cfg.logger != nil {
		rt = traced(rt, cfg.logger)
	}
	rt = metered(rt, cfg.budget)
	if token != "" {
		rt = &oauth2.Transport{Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}), Base: rt}
	}
	hc := &http.Client{Transport: rt}

	gc := github.NewClient(hc)
	gc.UserAgent = UserAgent
	if cfg.apiRoot != "" {
		root, err := url.Parse(strings.TrimSuffix(cfg.apiRoot, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github client: invalid base url %q: %w", cfg.apiRoot, err)
		}
		gc.BaseURL = root
		gc.UploadURL = root
	}

	return &Client{Client: gc, HTTP: hc, Budget: cfg.budget}, nil
}

// SplitRepository splits "OWNER/REPO".
func SplitRepository(repository string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(strings.TrimSpace(repository), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repository %q: expected OWNER/REPO", repository)
	}
	return owner, repo, nil
}
