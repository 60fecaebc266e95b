package engine

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"elemforge/internal/config"
	"elemforge/internal/logging"
	"elemforge/internal/tasks"
	"elemforge/internal/toolexec"
)

type fakeTask struct {
	id    string
	deps  []string
	run   func(ctx context.Context, env *tasks.Env) (tasks.Result, error)
	calls atomic.Int32
}

func (f *fakeTask) ID() string             { return f.id }
func (f *fakeTask) Title() string          { return "Fake " + f.id }
func (f *fakeTask) Description() string    { return "test-only task" }
func (f *fakeTask) Dependencies() []string { return f.deps }
func (f *fakeTask) Run(ctx context.Context, env *tasks.Env) (tasks.Result, error) {
	f.calls.Add(1)
	if f.run != nil {
		return f.run(ctx, env)
	}
	return tasks.PassResult(f.id), nil
}

func passing(id string, deps ...string) *fakeTask {
	return &fakeTask{id: id, deps: deps}
}

func failing(id string, deps ...string) *fakeTask {
	return &fakeTask{id: id, deps: deps, run: func(context.Context, *tasks.Env) (tasks.Result, error) {
		return tasks.FailResult(id, "2 problems"), nil
	}}
}

func erroring(id string, err error, deps ...string) *fakeTask {
	return &fakeTask{id: id, deps: deps, run: func(context.Context, *tasks.Env) (tasks.Result, error) {
		return tasks.Result{}, err
	}}
}

// toggleTask passes unless configured with strict=true.
type toggleTask struct {
	fakeTask
	mu     sync.Mutex
	strict bool
}

func (t *toggleTask) Options() []tasks.Option {
	return []tasks.Option{{Name: "strict", Description: "fail", Default: "false"}}
}

func (t *toggleTask) Configure(opts map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch opts["strict"] {
	case "", "false":
		t.strict = false
	case "true":
		t.strict = true
	default:
		return fmt.Errorf("invalid strict value %q", opts["strict"])
	}
	return nil
}

func (t *toggleTask) Run(context.Context, *tasks.Env) (tasks.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.strict {
		return tasks.FailResult(t.id, "strict mode"), nil
	}
	return tasks.PassResult(t.id), nil
}

type testRegistry map[string]tasks.Task

func newRegistry(ts ...tasks.Task) testRegistry {
	r := make(testRegistry)
	for _, t := range ts {
		if _, ok := t.(tasks.ConfigurableTask); !ok {
			t = &tasks.AllowFailureWrapper{Task: t}
		}
		r[t.ID()] = t
	}
	return r
}

func (r testRegistry) lookup(id string) (tasks.Task, bool) {
	t, ok := r[id]
	return t, ok
}

func (r testRegistry) resolve(selector string) ([]tasks.Task, error) {
	var ids []string
	if strings.TrimSpace(selector) == "" {
		for id := range r {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	} else {
		for _, id := range strings.Split(selector, ",") {
			ids = append(ids, strings.TrimSpace(id))
		}
	}
	out := make([]tasks.Task, 0, len(ids))
	for _, id := range ids {
		t, ok := r[id]
		if !ok {
			return nil, fmt.Errorf("task not found: %s", id)
		}
		out = append(out, t)
	}
	return out, nil
}

func (r testRegistry) all() []tasks.Task {
	ts, _ := r.resolve("")
	return ts
}

func newTestEngine(reg testRegistry) (*Engine, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	e := NewEngine(toolexec.NewFake(), logging.Discard())
	e.Stdout = &stdout
	e.Stderr = &stderr
	e.resolve = reg.resolve
	e.lookup = reg.lookup
	return e, &stdout, &stderr
}

func testConfig() *config.Config {
	cfg := config.New()
	cfg.Project.Name = "catalyst-tabs"
	cfg.Runtime.Concurrency = 2
	return cfg
}

func newEnv() *tasks.Env {
	return &tasks.Env{Config: testConfig(), Logger: logging.Discard(), Runner: toolexec.NewFake()}
}
