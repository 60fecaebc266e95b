package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-github/v81/github"

	"elemforge/internal/compile"
	"elemforge/internal/settle"
	"elemforge/internal/toolexec"
)

func TestPresentTaskError(t *testing.T) {
	_, aggErr := settle.All[int](context.Background(),
		func(context.Context) (int, error) { return 0, errors.New("template missing") },
		func(context.Context) (int, error) { return 1, nil },
	)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "unknown error"},
		{"deadline", fmt.Errorf("build: %w", context.DeadlineExceeded), "timed out"},
		{"canceled", context.Canceled, "canceled"},
		{"panic", &settle.PanicError{Value: "boom"}, "task panicked: boom"},
		{"aggregate", aggErr, "1 of 2 operations failed; first: template missing"},
		{
			"compile",
			fmt.Errorf("wrapped: %w", &compile.Error{Stage: "module", Messages: []compile.Message{{Text: "Expected \";\""}}}),
			"module build failed: Expected \";\"",
		},
		{
			"exit",
			fmt.Errorf("lint: %w", &toolexec.ExitError{Command: "eslint src", Code: 2, Stderr: "noise\nOops\n"}),
			"eslint src: exit status 2: Oops",
		},
		{
			"github",
			&github.ErrorResponse{Response: &http.Response{StatusCode: 422}, Message: "Validation Failed"},
			"GitHub API request failed (422 Unprocessable Entity): Validation Failed",
		},
		{
			"scrubbed",
			errors.New("POST https://uploads.github.com/repos/acme/tabs/releases/1/assets: 401 Bad credentials []"),
			"401 Bad credentials []",
		},
		{"plain", errors.New("disk full"), "disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := presentTaskError(tt.err, false); got != tt.want {
				t.Fatalf("presentTaskError() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPresentTaskError_VerboseKeepsEverything(t *testing.T) {
	err := errors.New("POST https://api.github.com/repos/acme/tabs/releases: 500 oops")
	if got := PresentError(err, true); got != err.Error() {
		t.Fatalf("verbose output = %q", got)
	}
	if got := PresentError(err, false); strings.Contains(got, "https://") {
		t.Fatalf("non-verbose output leaks URL: %q", got)
	}
}
