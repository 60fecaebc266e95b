package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"elemforge/internal/output"
	"elemforge/internal/tasks"
)

func TestExitCodeForResults(t *testing.T) {
	tests := []struct {
		name     string
		statuses []tasks.Status
		want     int
	}{
		{"empty", nil, 0},
		{"pass and skip", []tasks.Status{tasks.StatusPass, tasks.StatusSkipped}, 0},
		{"fail", []tasks.Status{tasks.StatusPass, tasks.StatusFail}, 1},
		{"error wins", []tasks.Status{tasks.StatusFail, tasks.StatusError}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rs []tasks.Result
			for _, st := range tt.statuses {
				rs = append(rs, tasks.Result{Status: st})
			}
			if got := ExitCodeForResults(rs); got != tt.want {
				t.Fatalf("ExitCodeForResults() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEngine_Run_EndToEnd(t *testing.T) {
	reg := newRegistry(passing("clean"), passing("build-module", "clean"))
	e, stdout, stderr := newTestEngine(reg)

	cfg := testConfig()
	code := e.Run(context.Background(), cfg)
	if code != 0 {
		t.Fatalf("exit code = %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}

	out := stdout.String()
	for _, want := range []string{"[PASS] clean", "[PASS] build-module", "Summary: 2 passed, 0 failed, 0 errored, 0 skipped"} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(stderr.String(), "Planned 2 tasks in 2 stages.") {
		t.Errorf("stderr missing progress:\n%s", stderr)
	}
}

func TestEngine_Run_ExitCodes(t *testing.T) {
	tests := []struct {
		name string
		reg  testRegistry
		want int
	}{
		{"failure", newRegistry(passing("clean"), failing("lint-ts")), 1},
		{"error", newRegistry(failing("lint-ts"), erroring("clean", errors.New("boom"))), 2},
		{"skipped only", newRegistry(&fakeTask{id: "lint-sass", run: func(context.Context, *tasks.Env) (tasks.Result, error) {
			return tasks.SkippedResult("lint-sass", "stylelint not found"), nil
		}}), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, _ := newTestEngine(tt.reg)
			if got := e.Run(context.Background(), testConfig()); got != tt.want {
				t.Fatalf("exit code = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEngine_Run_FatalOnUnknownTask(t *testing.T) {
	e, _, stderr := newTestEngine(newRegistry(passing("clean")))
	cfg := testConfig()
	cfg.Tasks.Selector = "nope"

	if code := e.Run(context.Background(), cfg); code != 3 {
		t.Fatalf("exit code = %d, want 3", code)
	}
	if !strings.Contains(stderr.String(), "task not found: nope") {
		t.Fatalf("stderr = %s", stderr)
	}
}

func TestEngine_Run_DryRun_PrintsPlan_AndCreatesNoArtifacts(t *testing.T) {
	clean := passing("clean")
	reg := newRegistry(clean, passing("build-module", "clean"))
	e, stdout, _ := newTestEngine(reg)

	tmpDir := t.TempDir()
	cfg := testConfig()
	cfg.Project.Root = tmpDir
	cfg.Runtime.DryRun = true
	cfg.Tasks.Selector = "build-module"
	cfg.Output.Out = "results.ndjson"
	cfg.Output.OutFormat = "ndjson"
	cfg.Output.Report = "report.md"

	if code := e.Run(context.Background(), cfg); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), "stage 1: clean") || !strings.Contains(stdout.String(), "stage 2: build-module") {
		t.Fatalf("plan not printed:\n%s", stdout)
	}
	if clean.calls.Load() != 0 {
		t.Fatal("dry run must not execute tasks")
	}
	for _, name := range []string{"results.ndjson", "report.md"} {
		if _, err := os.Stat(filepath.Join(tmpDir, name)); err == nil {
			t.Fatalf("dry run created %s", name)
		}
	}
}

func TestEngine_Run_SetTaskOptions_ChangesBehavior(t *testing.T) {
	toggle := &toggleTask{fakeTask: fakeTask{id: "lint-strict"}}
	reg := newRegistry(toggle)

	e, _, _ := newTestEngine(reg)
	if code := e.Run(context.Background(), testConfig()); code != 0 {
		t.Fatalf("default run exit code = %d", code)
	}

	cfg := testConfig()
	cfg.Tasks.Set = []string{"lint-strict.strict=true"}
	if code := e.Run(context.Background(), cfg); code != 1 {
		t.Fatalf("strict run exit code = %d, want 1", code)
	}
}

func TestEngine_Run_SetTaskOptions_Errors(t *testing.T) {
	reg := newRegistry(&toggleTask{fakeTask: fakeTask{id: "lint-strict"}}, passing("clean"))
	tests := []struct {
		set  string
		want string
	}{
		{"ghost.strict=true", `unknown task ID "ghost"`},
		{"lint-strict.loud=true", `unknown option "loud" for task "lint-strict"`},
		{"lint-strict.strict=maybe", `configure task "lint-strict"`},
	}
	for _, tt := range tests {
		t.Run(tt.set, func(t *testing.T) {
			e, _, stderr := newTestEngine(reg)
			cfg := testConfig()
			cfg.Tasks.Set = []string{tt.set}
			if code := e.Run(context.Background(), cfg); code != 3 {
				t.Fatalf("exit code = %d, want 3", code)
			}
			if !strings.Contains(stderr.String(), tt.want) {
				t.Fatalf("stderr missing %q: %s", tt.want, stderr)
			}
		})
	}
}

func TestEngine_Run_AllowFailures(t *testing.T) {
	reg := newRegistry(failing("lint-sass"), passing("clean"))
	e, stdout, _ := newTestEngine(reg)

	cfg := testConfig()
	cfg.Tasks.AllowFailures = []string{"lint-*"}
	t.Cleanup(func() {
		// Registry entries are shared between subtests; reset the policy.
		_ = reg["lint-sass"].(tasks.ConfigurableTask).Configure(nil)
	})

	if code := e.Run(context.Background(), cfg); code != 0 {
		t.Fatalf("exit code = %d, want 0\n%s", code, stdout)
	}
	if !strings.Contains(stdout.String(), "Allowed failure: 2 problems (Allowed by policy: allow.failure)") {
		t.Fatalf("expected allowed-failure message:\n%s", stdout)
	}
}

func TestEngine_Run_NDJSON_LifecycleEventOrdering(t *testing.T) {
	reg := newRegistry(passing("clean"), passing("build-module", "clean"), failing("lint-ts"))
	e, stdout, _ := newTestEngine(reg)

	cfg := testConfig()
	cfg.Output.ConsoleFormat = "ndjson"

	if code := e.Run(context.Background(), cfg); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}

	var types []string
	var first, last output.Event
	sc := bufio.NewScanner(strings.NewReader(stdout.String()))
	for sc.Scan() {
		var ev output.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("invalid ndjson line %q: %v", sc.Text(), err)
		}
		if len(types) == 0 {
			first = ev
		}
		last = ev
		types = append(types, ev.Type)
	}

	want := []string{
		"run.started",
		"stage.started", "task.result", "task.result", "stage.finished",
		"stage.started", "task.result", "stage.finished",
		"run.finished",
	}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("event types = %v\nwant %v", types, want)
	}
	if first.Tasks != 3 || first.Stages != 2 || first.Detail != "catalyst-tabs" {
		t.Fatalf("run.started = %+v", first)
	}
	if last.ExitCode != 1 {
		t.Fatalf("run.finished exit code = %d", last.ExitCode)
	}
}

func TestEngine_Run_FileAndReportOutputs(t *testing.T) {
	reg := newRegistry(passing("clean"), failing("lint-ts"))
	e, _, _ := newTestEngine(reg)

	dir := t.TempDir()
	cfg := testConfig()
	cfg.Project.Root = dir
	cfg.Output.NoConsole = true
	cfg.Output.Out = "out/results.json"
	cfg.Output.OutFormat = "json"
	cfg.Output.Report = "out/report.md"

	if code := e.Run(context.Background(), cfg); code != 1 {
		t.Fatalf("exit code = %d", code)
	}

	b, err := os.ReadFile(filepath.Join(dir, "out", "results.json"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var got []tasks.Result
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, b)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}

	report, err := os.ReadFile(filepath.Join(dir, "out", "report.md"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(report), "elemforge build --tasks lint-ts") {
		t.Fatalf("report missing rerun command:\n%s", report)
	}
}

func TestEngine_Run_NoConsole(t *testing.T) {
	e, stdout, stderr := newTestEngine(newRegistry(passing("clean")))
	cfg := testConfig()
	cfg.Output.NoConsole = true

	_ = e.Run(context.Background(), cfg)
	if strings.TrimSpace(stdout.String()+stderr.String()) != "" {
		t.Errorf("expected no console output when NoConsole is true; got:\n%s%s", stdout, stderr)
	}
}

func TestEngine_Run_TimeoutMarksRunIncomplete(t *testing.T) {
	slow := &fakeTask{id: "build-module", run: func(ctx context.Context, _ *tasks.Env) (tasks.Result, error) {
		<-ctx.Done()
		return tasks.Result{}, ctx.Err()
	}}
	reg := newRegistry(slow, passing("docs", "build-module"))
	e, stdout, _ := newTestEngine(reg)

	cfg := testConfig()
	cfg.Runtime.Timeout = 50 * time.Millisecond

	if code := e.Run(context.Background(), cfg); code != 2 {
		t.Fatalf("exit code = %d, want 2\n%s", code, stdout)
	}
	if !strings.Contains(stdout.String(), "[ERROR] build-module - timed out") {
		t.Fatalf("expected timeout result:\n%s", stdout)
	}
}

func TestEngine_SharesArtifactsAcrossTasks(t *testing.T) {
	var produced int
	produce := func(ctx context.Context) (any, error) {
		produced++
		return "injected", nil
	}
	mk := func(id string) *fakeTask {
		return &fakeTask{id: id, run: func(ctx context.Context, env *tasks.Env) (tasks.Result, error) {
			if _, err := env.Artifacts.Get(ctx, "injected", produce); err != nil {
				return tasks.Result{}, err
			}
			return tasks.PassResult(id), nil
		}}
	}
	e, _, _ := newTestEngine(newRegistry(mk("build-module"), mk("build-script")))
	var logs bytes.Buffer
	e.Logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cfg := testConfig()
	cfg.Runtime.Concurrency = 1

	if code := e.Run(context.Background(), cfg); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if produced != 1 {
		t.Fatalf("artifact produced %d times, want 1", produced)
	}
	if !strings.Contains(logs.String(), `msg="artifact cache" hits=1 produced=1`) {
		t.Fatalf("artifact stats not logged:\n%s", logs.String())
	}
}
