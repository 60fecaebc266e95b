package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"elemforge/internal/artifact"
	"elemforge/internal/config"
	"elemforge/internal/output"
	"elemforge/internal/tasks"
	"elemforge/internal/toolexec"
)

func exitCodeForRun(fatal, partial, failures bool) int {
	// Exit code contract:
	// 0 = every task passed (or was skipped)
	// 1 = a task failed
	// 2 = a task errored
	// 3 = fatal error (nothing ran)
	if fatal {
		return 3
	}
	if partial {
		return 2
	}
	if failures {
		return 1
	}
	return 0
}

// ExitCodeForResults applies the exit code contract to finished results.
func ExitCodeForResults(results []tasks.Result) int {
	var errored, failed bool
	for _, r := range results {
		switch r.Status {
		case tasks.StatusError:
			errored = true
		case tasks.StatusFail:
			failed = true
		}
	}
	return exitCodeForRun(false, errored, failed)
}

// SetupOutputManager builds the sinks cfg asks for. Console output goes to
// stdout.
func SetupOutputManager(cfg *config.Config, stdout io.Writer) (*output.Manager, error) {
	if stdout == nil {
		stdout = os.Stdout
	}
	outMgr := output.NewManager()

	// Console Sink
	if !cfg.Output.NoConsole {
		if err := outMgr.AddSink(output.NewConsoleSink(stdout, cfg.Output.ConsoleFormat, cfg.Output.ConsoleFilterStatus)); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Emit Sinks (additional structured streams)
	for _, emit := range cfg.Output.Emit {
		es, err := output.NewEmitSink(stdout, emit)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(es); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// File Sink
	if cfg.Output.Out != "" {
		fs, err := output.NewFileSink(cfg.Path(cfg.Output.Out), cfg.Output.OutFormat)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(fs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Report Sink
	if cfg.Output.Report != "" {
		rs, err := output.NewReportSink(cfg.Path(cfg.Output.Report))
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(rs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	return outMgr, nil
}

// applyTaskOptions routes --set assignments ("taskID.option=value") and the
// allow_failures list to the planned tasks' Configure methods.
//
// Example:
//
//	elemforge lint --set lint-ts.fix=true --allow-failure lint-sass
func applyTaskOptions(cfg *config.Config, plan *Plan, lookup LookupFunc) error {
	assignments, err := config.ParseTaskOptionAssignments(cfg.Tasks.Set)
	if err != nil {
		return err
	}

	for _, id := range plan.IDs() {
		if !tasks.MatchesAny(id, cfg.Tasks.AllowFailures) {
			continue
		}
		if assignments[id] == nil {
			assignments[id] = make(map[string]string)
		}
		if _, ok := assignments[id][tasks.OptionAllowFailure]; !ok {
			assignments[id][tasks.OptionAllowFailure] = "true"
		}
	}

	ids := make([]string, 0, len(assignments))
	for id := range assignments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, taskID := range ids {
		opts := assignments[taskID]
		t, ok := lookup(taskID)
		if !ok {
			return fmt.Errorf("unknown task ID %q", taskID)
		}
		ct, ok := t.(tasks.ConfigurableTask)
		if !ok {
			return fmt.Errorf("task %q does not support options", taskID)
		}

		allowed := make(map[string]struct{})
		for _, opt := range ct.Options() {
			allowed[opt.Name] = struct{}{}
		}
		for name := range opts {
			if _, ok := allowed[name]; !ok {
				return fmt.Errorf("unknown option %q for task %q", name, taskID)
			}
		}

		if err := ct.Configure(opts); err != nil {
			return fmt.Errorf("configure task %q: %w", taskID, err)
		}
	}

	return nil
}

// Summary is the outcome of one run.
type Summary struct {
	ExitCode int
	Results  []tasks.Result
}

type Engine struct {
	Runner    toolexec.Runner
	Artifacts *artifact.Store
	Logger    *slog.Logger

	// Stdout receives console sinks and the dry-run plan; Stderr receives
	// progress lines and fatal errors.
	Stdout io.Writer
	Stderr io.Writer

	// resolve and lookup default to the global task registry; tests swap them.
	resolve func(selector string) ([]tasks.Task, error)
	lookup  LookupFunc
}

func NewEngine(runner toolexec.Runner, logger *slog.Logger) *Engine {
	if runner == nil {
		runner = toolexec.ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Runner:    runner,
		Artifacts: artifact.NewStore(),
		Logger:    logger,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		resolve:   tasks.Resolve,
		lookup:    tasks.Lookup,
	}
}

func (e *Engine) progress(cfg *config.Config, format string, args ...any) {
	if cfg.Output.NoConsole || e.Stderr == nil {
		return
	}
	fmt.Fprintf(e.Stderr, format+"\n", args...)
}

// BuildPlan resolves cfg's task selector, closes it over dependencies and
// applies task options.
func (e *Engine) BuildPlan(cfg *config.Config) (*Plan, error) {
	e.progress(cfg, "Resolving tasks...")
	selected, err := e.resolve(cfg.Tasks.Selector)
	if err != nil {
		return nil, fmt.Errorf("resolve tasks: %w", err)
	}
	plan, err := NewPlan(selected, e.lookup)
	if err != nil {
		return nil, fmt.Errorf("plan tasks: %w", err)
	}
	if err := applyTaskOptions(cfg, plan, e.lookup); err != nil {
		return nil, fmt.Errorf("configure tasks: %w", err)
	}
	e.progress(cfg, "Planned %d tasks in %d stages.", plan.Len(), len(plan.Stages))
	return plan, nil
}

// Run executes the tasks cfg selects and returns the process exit code.
func (e *Engine) Run(ctx context.Context, cfg *config.Config) int {
	plan, err := e.BuildPlan(cfg)
	if err != nil {
		fmt.Fprintf(e.Stderr, "Error: %v\n", err)
		return exitCodeForRun(true, false, false)
	}

	if cfg.Runtime.DryRun {
		if err := plan.Print(e.Stdout); err != nil {
			return exitCodeForRun(true, false, false)
		}
		return 0
	}

	outMgr, err := SetupOutputManager(cfg, e.Stdout)
	if err != nil {
		fmt.Fprintf(e.Stderr, "Error creating output sinks: %v\n", err)
		return exitCodeForRun(true, false, false)
	}
	defer outMgr.Close()

	return e.Execute(ctx, cfg, plan, outMgr).ExitCode
}

// Execute runs plan, writing results and lifecycle events to outMgr. The
// caller owns outMgr.
func (e *Engine) Execute(ctx context.Context, cfg *config.Config, plan *Plan, outMgr *output.Manager) Summary {
	if cfg.Runtime.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Runtime.Timeout)
		defer cancel()
	}

	env := &tasks.Env{
		Config:    cfg,
		Logger:    e.Logger,
		Runner:    e.Runner,
		Artifacts: e.Artifacts,
	}
	if !cfg.Output.NoConsole && cfg.Output.ConsoleFormat == "text" {
		env.Stream = e.Stderr
	}

	scheduler, err := NewScheduler(env, cfg.Runtime.Concurrency)
	if err != nil {
		fmt.Fprintf(e.Stderr, "Error: %v\n", err)
		return Summary{ExitCode: exitCodeForRun(true, false, false)}
	}

	_ = outMgr.Emit(output.Event{
		Type:   output.EventRunStarted,
		Tasks:  plan.Len(),
		Stages: len(plan.Stages),
		Detail: cfg.Project.Name,
	})

	resCh, errCh := scheduler.Execute(ctx, plan)

	var summary Summary
	var hasErrors, hasFailures bool
	for ex := range resCh {
		switch ex.Kind {
		case StageStarted:
			_ = outMgr.Emit(output.Event{Type: output.EventStageStarted, Stage: ex.Stage, Tasks: ex.Tasks})
		case StageFinished:
			_ = outMgr.Emit(output.Event{Type: output.EventStageFinished, Stage: ex.Stage, Tasks: ex.Tasks})
		case TaskFinished:
			r := ex.Result
			switch r.Status {
			case tasks.StatusFail:
				hasFailures = true
			case tasks.StatusError:
				hasErrors = true
			}
			attrs := []any{slog.String("task", r.TaskID), slog.String("status", string(r.Status)), slog.Duration("duration", r.Duration)}
			if ex.Err != nil {
				attrs = append(attrs, slog.Any("error", ex.Err))
			}
			e.Logger.Debug("task finished", attrs...)
			summary.Results = append(summary.Results, r)
			_ = outMgr.Write(r)
		}
	}

	var schedErr error
	// Drain scheduler errors; keep one non-nil error.
	for err := range errCh {
		if err != nil {
			schedErr = err
		}
	}
	if schedErr != nil {
		e.Logger.Warn("run stopped early", slog.String("reason", presentTaskError(schedErr, false)))
		// Tasks that never ran are an incomplete run, not a clean one.
		hasErrors = true
	}

	if e.Artifacts != nil {
		hits, misses := e.Artifacts.Stats()
		e.Logger.Debug("artifact cache", slog.Int64("hits", hits), slog.Int64("produced", misses))
	}

	fatal := schedErr != nil && len(summary.Results) == 0
	summary.ExitCode = exitCodeForRun(fatal, hasErrors, hasFailures)
	_ = outMgr.Emit(output.Event{Type: output.EventRunFinished, ExitCode: summary.ExitCode})
	return summary
}
