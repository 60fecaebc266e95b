package tasks

import (
	"context"
	"io"
	"log/slog"

	"elemforge/internal/artifact"
	"elemforge/internal/config"
	"elemforge/internal/toolexec"
)

type Task interface {
	ID() string
	Title() string
	Description() string

	// Dependencies lists the IDs of tasks that must pass before this one runs.
	Dependencies() []string

	// Run performs the task. A returned error means the task could not run
	// (ERROR); findings such as lint violations are a FAIL result.
	Run(ctx context.Context, env *Env) (Result, error)
}

type Option struct {
	Name        string
	Description string
	Default     string
}

type ConfigurableTask interface {
	Task
	Options() []Option
	Configure(opts map[string]string) error
}

// Env is what a task may touch while running.
type Env struct {
	Config    *config.Config
	Logger    *slog.Logger
	Runner    toolexec.Runner
	Artifacts *artifact.Store

	// Stream receives live tool output (lint reports). May be nil.
	Stream io.Writer
}

// Path resolves p against the project root.
func (e *Env) Path(p string) string {
	return e.Config.Path(p)
}
