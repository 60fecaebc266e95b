// Package builtin registers the tasks elemforge ships with.
package builtin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"elemforge/internal/artifact"
	"elemforge/internal/compile"
	"elemforge/internal/esm"
	"elemforge/internal/inject"
	"elemforge/internal/tasks"
	"elemforge/internal/toolexec"
)

const (
	IDClean       = "clean"
	IDBuildModule = "build-module"
	IDBuildScript = "build-script"
	IDLintImports = "lint-imports"
	IDLintTS      = "lint-ts"
	IDLintSass    = "lint-sass"
	IDDocs        = "docs"
	IDArchive     = "archive"
)

// injectedSource returns the entry with template and style injected. Both
// build variants share one computation per run.
func injectedSource(ctx context.Context, env *tasks.Env) (string, error) {
	cfg := env.Config
	src := inject.Sources{
		Entry:    env.Path(cfg.Project.Entry),
		Template: env.Path(cfg.Inject.TemplateFile),
		Style:    env.Path(cfg.Inject.StyleFile),
	}
	produce := func(ctx context.Context) (string, error) {
		return inject.New(cfg.Inject, env.Runner).Inject(ctx, src)
	}
	if env.Artifacts == nil {
		return produce(ctx)
	}
	key := artifact.Key("injected", map[string]string{
		"entry":    src.Entry,
		"template": src.Template,
		"style":    src.Style,
	})
	return artifact.Typed(ctx, env.Artifacts, key, produce)
}

// buildResult summarizes a compile result.
func buildResult(taskID string, res compile.Result) tasks.Result {
	outputs := make([]map[string]any, 0, len(res.Outputs))
	for _, o := range res.Outputs {
		outputs = append(outputs, map[string]any{"path": o.Path, "bytes": o.Bytes})
	}
	msg := fmt.Sprintf("%d file(s), %s", len(res.Outputs), FormatBytes(res.TotalBytes()))
	out := tasks.PassResultWithArtifacts(taskID, msg, res.Paths(), map[string]any{
		"bytes":   res.TotalBytes(),
		"outputs": outputs,
	})
	if len(res.Warnings) > 0 {
		out.Evidence = map[string]string{"warnings": strconv.Itoa(len(res.Warnings))}
		out.Metadata["warnings"] = res.Warnings
	}
	return out
}

// sourceFailure turns diagnostics about the component's own sources into a
// FAIL result. Other errors are returned unchanged.
func sourceFailure(taskID string, err error) (tasks.Result, error) {
	var cerr *compile.Error
	if errors.As(err, &cerr) {
		diags := make([]string, len(cerr.Messages))
		for i, m := range cerr.Messages {
			diags[i] = m.String()
		}
		return tasks.FailResultWithMetadata(taskID, err.Error(), map[string]any{"diagnostics": diags}), nil
	}
	var perr *esm.ProcessingError
	if errors.As(err, &perr) {
		return tasks.FailResult(taskID, err.Error()), nil
	}
	return tasks.Result{}, err
}

// toolFailure maps a linter run error to a result: a missing tool skips,
// a non-zero exit fails with the tail of its report.
func toolFailure(taskID, tool string, res toolexec.Result, err error) (tasks.Result, error) {
	if errors.Is(err, toolexec.ErrNotFound) {
		return tasks.SkippedResult(taskID, tool+" not found on PATH"), nil
	}
	var exitErr *toolexec.ExitError
	if errors.As(err, &exitErr) {
		report := strings.TrimSpace(res.Stdout)
		if report == "" {
			report = strings.TrimSpace(res.Stderr)
		}
		out := tasks.FailResult(taskID, fmt.Sprintf("%s reported problems (exit %d)", tool, exitErr.Code))
		if report != "" {
			out.Evidence = map[string]string{"report": tail(report, 20)}
		}
		return out, nil
	}
	return tasks.Result{}, err
}

func tail(s string, lines int) string {
	parts := strings.Split(s, "\n")
	if len(parts) <= lines {
		return s
	}
	return strings.Join(parts[len(parts)-lines:], "\n")
}

func parseBoolOption(name, val string, def bool) (bool, error) {
	val = strings.TrimSpace(val)
	if val == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: %q (must be true|false)", name, val)
	}
	return b, nil
}

// FormatBytes renders n as B, KiB or MiB.
func FormatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
