package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"elemforge/internal/config"
	"elemforge/internal/engine"
	"elemforge/internal/output"
)

// SourceExtensions are the files that trigger a rebuild.
var SourceExtensions = []string{".ts", ".js", ".mjs", ".html", ".css", ".scss", ".sass", ".json"}

// Builder plans and runs task selections. *engine.Engine implements it.
type Builder interface {
	BuildPlan(cfg *config.Config) (*engine.Plan, error)
	Execute(ctx context.Context, cfg *config.Config, plan *engine.Plan, outMgr *output.Manager) engine.Summary
}

// Rebuilder re-runs a fixed plan for each batch of changes.
type Rebuilder struct {
	Builder Builder
	Config  *config.Config
	Plan    *engine.Plan
	Out     *output.Manager
	// Invalidate drops cached artifacts so changed inputs are re-read.
	Invalidate func()
	Logger     *slog.Logger

	runs int
}

// Handle is a Handler.
func (r *Rebuilder) Handle(ctx context.Context, changed []string) {
	r.runs++
	_ = r.Out.Emit(output.Event{Type: output.EventWatchRebuild, Detail: describeChanges(r.Config.Project.Root, changed)})
	if r.Invalidate != nil {
		r.Invalidate()
	}
	summary := r.Builder.Execute(ctx, r.Config, r.Plan, r.Out)
	if r.Logger != nil {
		r.Logger.Info("rebuild finished",
			slog.Int("run", r.runs),
			slog.Int("changed", len(changed)),
			slog.Int("exit_code", summary.ExitCode))
	}
}

// Runs reports how many rebuilds Handle performed.
func (r *Rebuilder) Runs() int { return r.runs }

func describeChanges(root string, changed []string) string {
	const shown = 3
	names := make([]string, 0, shown)
	for i, p := range changed {
		if i == shown {
			break
		}
		if rel, err := filepath.Rel(root, p); err == nil && !strings.HasPrefix(rel, "..") {
			p = rel
		}
		names = append(names, filepath.ToSlash(p))
	}
	s := strings.Join(names, ", ")
	if extra := len(changed) - shown; extra > 0 {
		s += fmt.Sprintf(" (+%d more)", extra)
	}
	return s
}

// Serve builds once, then rebuilds whenever sources under the project's
// source directory (or the template and style files) change, until ctx is
// done. Build failures are reported to out and do not stop watching.
func Serve(ctx context.Context, eng *engine.Engine, cfg *config.Config, out *output.Manager) error {
	plan, err := eng.BuildPlan(cfg)
	if err != nil {
		return err
	}
	eng.Execute(ctx, cfg, plan, out)

	w, err := New(cfg.Runtime.Debounce, []string{cfg.Path(cfg.Project.DistDir), cfg.Path(cfg.Project.TempDir)}, eng.Logger)
	if err != nil {
		return err
	}
	defer w.Close()

	w.AddFilter(ExtensionFilter(SourceExtensions...))
	w.AddFilter(NoEditorFilter)
	if err := w.AddRecursive(cfg.Path(cfg.Project.SrcDir)); err != nil {
		return err
	}
	for _, f := range []string{cfg.Inject.TemplateFile, cfg.Inject.StyleFile} {
		if f == "" {
			continue
		}
		if err := w.AddFile(cfg.Path(f)); err != nil {
			return err
		}
	}

	r := &Rebuilder{
		Builder:    eng,
		Config:     cfg,
		Plan:       plan,
		Out:        out,
		Invalidate: eng.Artifacts.Invalidate,
		Logger:     eng.Logger,
	}
	eng.Logger.Info("watching for changes",
		slog.String("dir", cfg.Project.SrcDir),
		slog.Duration("debounce", cfg.Runtime.Debounce))
	return w.Run(ctx, r.Handle)
}
