package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v81/github"

	"elemforge/internal/compile"
	"elemforge/internal/settle"
	"elemforge/internal/toolexec"
)

// PresentError renders err as a one-line result message. Without verbose it
// avoids leaking request URLs and long tool output.
func PresentError(err error, verbose bool) string {
	return presentTaskError(err, verbose)
}

func presentTaskError(err error, verbose bool) string {
	if err == nil {
		return "unknown error"
	}
	full := strings.TrimSpace(err.Error())
	if verbose {
		return full
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, toolexec.ErrNotFound):
		return full
	}

	var panicErr *settle.PanicError
	if errors.As(err, &panicErr) {
		return fmt.Sprintf("task panicked: %v", panicErr.Value)
	}

	var agg *settle.AggregateError
	if errors.As(err, &agg) {
		first := ""
		if errs := agg.Errors(); len(errs) > 0 {
			first = presentTaskError(errs[0], false)
		}
		return fmt.Sprintf("%d of %d operations failed; first: %s", agg.Failed(), agg.Total(), first)
	}

	var compileErr *compile.Error
	if errors.As(err, &compileErr) {
		return compileErr.Error()
	}

	var exitErr *toolexec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Error()
	}

	// Prefer structured GitHub error types to avoid leaking full request URLs.
	var er *github.ErrorResponse
	if errors.As(err, &er) {
		msg := strings.TrimSpace(er.Message)
		if msg == "" {
			msg = "GitHub API request failed"
		}
		if er.Response != nil {
			status := fmt.Sprintf("%d %s", er.Response.StatusCode, http.StatusText(er.Response.StatusCode))
			return fmt.Sprintf("GitHub API request failed (%s): %s", status, msg)
		}
		return fmt.Sprintf("GitHub API request failed: %s", msg)
	}

	if scrubbed := scrubRequestFromErrorString(full); scrubbed != "" {
		return scrubbed
	}
	return full
}

func scrubRequestFromErrorString(s string) string {
	// Typical go-github error format:
	//   POST https://api.github.com/...: 422 Some message. [..]
	// We want to drop the leading "POST https://...: " part.
	methods := []string{"GET ", "POST ", "PUT ", "PATCH ", "DELETE "}
	for _, m := range methods {
		if strings.HasPrefix(s, m) {
			if i := strings.Index(s, "https://"); i >= 0 {
				if j := strings.Index(s[i:], ": "); j >= 0 {
					return strings.TrimSpace(s[i+j+2:])
				}
			}
			if j := strings.Index(s, ": "); j >= 0 {
				return strings.TrimSpace(s[j+2:])
			}
			break
		}
	}
	return ""
}
