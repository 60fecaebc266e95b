// Package toolexec runs the external tools a build shells out to: git, npm,
// sass, eslint and stylelint.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"elemforge/internal/logging"
)

var (
	ErrEmptyCommand = errors.New("empty command")

	// ErrNotFound is returned when the executable is not on PATH. Lint tasks
	// report SKIPPED instead of FAIL when they see it.
	ErrNotFound = errors.New("executable not found")
)

type Command struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string // appended to os.Environ()
	Stdin []byte
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

type Result struct {
	Stdout string
	Stderr string
}

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Command, e.Code)
	if s := lastLine(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Runner is the seam tasks and the release flow use to run tools; tests
// substitute a fake.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Stream, when set, receives stdout and stderr as they are produced in
	// addition to the captured copies.
	Stream io.Writer
}

func (r ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	if strings.TrimSpace(c.Name) == "" {
		return Result{}, ErrEmptyCommand
	}
	if _, err := exec.LookPath(c.Name); err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, c.Name)
	}

	logger := logging.FromContext(ctx).With(
		slog.String("command", c.String()),
		slog.String("dir", c.Dir),
	)
	start := time.Now()

	//nolint:gosec // G204: commands come from project configuration.
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if r.Stream != nil {
		cmd.Stdout = io.MultiWriter(&stdout, r.Stream)
		cmd.Stderr = io.MultiWriter(&stderr, r.Stream)
	}

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		logger.DebugContext(ctx, "command failed",
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, &ExitError{Command: c.String(), Code: exitErr.ExitCode(), Stderr: res.Stderr}
		}
		return res, fmt.Errorf("run %s: %w", c.Name, err)
	}

	logger.DebugContext(ctx, "command executed",
		slog.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
