package release

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elemforge/internal/config"
	"elemforge/internal/engine"
	"elemforge/internal/git"
	"elemforge/internal/github"
	"elemforge/internal/logging"
	"elemforge/internal/npm"
	"elemforge/internal/output"
	"elemforge/internal/tasks"
	"elemforge/internal/toolexec"
)

type fakeBuilder struct {
	mu        sync.Mutex
	selectors []string
	codes     map[string]int
}

func (b *fakeBuilder) BuildPlan(cfg *config.Config) (*engine.Plan, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selectors = append(b.selectors, cfg.Tasks.Selector)
	return &engine.Plan{}, nil
}

func (b *fakeBuilder) Execute(_ context.Context, cfg *config.Config, _ *engine.Plan, _ *output.Manager) engine.Summary {
	code := b.codes[cfg.Tasks.Selector]
	status := tasks.StatusPass
	if code == 1 {
		status = tasks.StatusFail
	}
	return engine.Summary{
		ExitCode: code,
		Results:  []tasks.Result{tasks.NewResult(cfg.Tasks.Selector, status, "")},
	}
}

type fakePublisher struct {
	mu        sync.Mutex
	exists    bool
	published []github.Release
	err       error
}

func (p *fakePublisher) ReleaseExists(context.Context, string, string) (bool, error) {
	return p.exists, nil
}

func (p *fakePublisher) Publish(_ context.Context, r github.Release) (github.PublishedRelease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, r)
	if p.err != nil {
		return github.PublishedRelease{ID: 7, URL: "https://github.com/catalyst/tabs/releases/tag/" + r.Tag}, p.err
	}
	return github.PublishedRelease{
		ID:     7,
		URL:    "https://github.com/catalyst/tabs/releases/tag/" + r.Tag,
		Assets: []string{"https://github.com/catalyst/tabs/releases/download/" + r.Tag + "/asset.tgz"},
	}, nil
}

type recordSink struct {
	mu    sync.Mutex
	items []any
}

func (s *recordSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, v)
	return nil
}

func (s *recordSink) Close() error { return nil }

func (s *recordSink) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, it := range s.items {
		if ev, ok := it.(output.Event); ok {
			out = append(out, ev.Type)
		}
	}
	return out
}

type harness struct {
	cfg       *config.Config
	runner    *toolexec.Fake
	builder   *fakeBuilder
	publisher *fakePublisher
	sink      *recordSink
	stderr    *bytes.Buffer
	releaser  *Releaser
}

const manifestJSON = `{
  "name": "@catalyst/tabs",
  "version": "1.2.3",
  "files": ["dist"]
}
`

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, npm.ManifestFile), []byte(manifestJSON), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "dist"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dist", "catalyst-tabs.js"), []byte("export class CatalystTabs {}\n"), 0o644))

	cfg := config.New()
	cfg.Project.Name = "catalyst-tabs"
	cfg.Project.Root = dir
	cfg.Release.Repository = "catalyst/tabs"
	require.NoError(t, cfg.Validate())

	runner := toolexec.NewFake()
	runner.On("git rev-parse --abbrev-ref HEAD", toolexec.Result{Stdout: "main\n"}, nil)
	runner.On("git describe --tags --abbrev=0 --match v*", toolexec.Result{Stdout: "v1.2.3\n"}, nil)
	runner.On("git log --no-merges --pretty=format:%h %s v1.2.3..HEAD",
		toolexec.Result{Stdout: "abc123 fix focus ring\ndef456 add keyboard navigation\n"}, nil)

	h := &harness{
		cfg:       cfg,
		runner:    runner,
		builder:   &fakeBuilder{codes: map[string]int{}},
		publisher: &fakePublisher{},
		sink:      &recordSink{},
		stderr:    &bytes.Buffer{},
	}
	h.releaser = &Releaser{
		Config:  cfg,
		Git:     git.New(dir, runner),
		NPM:     npm.NewClient(dir, runner),
		Builder: h.builder,
		GitHub: func(context.Context) (Publisher, error) {
			return h.publisher, nil
		},
		Logger: logging.Discard(),
		Stderr: h.stderr,
	}
	return h
}

func (h *harness) run(t *testing.T) Summary {
	t.Helper()
	out := output.NewManager()
	require.NoError(t, out.AddSink(h.sink))
	return h.releaser.Run(context.Background(), out)
}

func (h *harness) manifestVersion(t *testing.T) string {
	t.Helper()
	m, err := npm.ReadManifest(filepath.Join(h.cfg.Project.Root, npm.ManifestFile))
	require.NoError(t, err)
	return m.Version()
}

func stepStatuses(s Summary) map[string]tasks.Status {
	out := make(map[string]tasks.Status, len(s.Steps))
	for _, r := range s.Steps {
		out[strings.TrimPrefix(r.TaskID, "release:")] = r.Status
	}
	return out
}

func TestRun_FullRelease(t *testing.T) {
	h := newHarness(t)

	s := h.run(t)

	require.Equal(t, 0, s.ExitCode, "steps: %+v", s.Steps)
	assert.Equal(t, "1.2.4", s.Version)
	assert.Equal(t, "v1.2.4", s.Tag)
	require.Len(t, s.Steps, 10)
	for _, r := range s.Steps {
		assert.Equal(t, tasks.StatusPass, r.Status, r.TaskID)
	}
	assert.Equal(t, "release:preflight", s.Steps[0].TaskID)
	assert.Equal(t, "release:github", s.Steps[9].TaskID)

	assert.Equal(t, "1.2.4", h.manifestVersion(t))
	assert.Equal(t, []string{"lint-*", "build-module,build-script"}, h.builder.selectors)

	calls := h.runner.Calls()
	for _, want := range []string{
		"git add -- package.json",
		"git commit -m Release v1.2.4",
		"git tag -a v1.2.4 -m Release v1.2.4",
		"git push origin main v1.2.4",
		"npm view @catalyst/tabs@1.2.4 version",
		"npm publish --tag latest",
	} {
		assert.Contains(t, calls, want)
	}
	assert.Less(t, slices.Index(calls, "git commit -m Release v1.2.4"), slices.Index(calls, "git tag -a v1.2.4 -m Release v1.2.4"))

	require.Len(t, h.publisher.published, 1)
	rel := h.publisher.published[0]
	assert.Equal(t, "catalyst/tabs", rel.Repository)
	assert.False(t, rel.Prerelease)
	assert.Contains(t, rel.Body, "## Changes since v1.2.3")
	assert.Contains(t, rel.Body, "- abc123 fix focus ring")
	require.Len(t, rel.Assets, 1)
	assert.Equal(t, "catalyst-tabs-1.2.4.tgz", filepath.Base(rel.Assets[0]))
	assert.FileExists(t, rel.Assets[0])

	types := h.sink.eventTypes()
	require.NotEmpty(t, types)
	assert.Equal(t, output.EventReleaseStarted, types[0])
	assert.Equal(t, output.EventReleaseFinished, types[len(types)-1])
}

func TestRun_PreflightFailureStopsRelease(t *testing.T) {
	h := newHarness(t)
	h.runner.On("git status --porcelain", toolexec.Result{Stdout: " M src/catalyst-tabs.ts\n"}, nil)
	h.runner.On("git rev-parse --abbrev-ref HEAD", toolexec.Result{Stdout: "feature/x\n"}, nil)

	s := h.run(t)

	assert.Equal(t, 1, s.ExitCode)
	pre := s.Steps[0]
	assert.Equal(t, tasks.StatusFail, pre.Status)
	assert.Contains(t, pre.Evidence, "clean")
	assert.Contains(t, pre.Evidence, "branch")
	assert.Contains(t, pre.Message, `on branch "feature/x"`)
	for _, r := range s.Steps[1:] {
		assert.Equal(t, tasks.StatusSkipped, r.Status, r.TaskID)
		assert.Equal(t, "release stopped at preflight", r.Message)
	}

	assert.Equal(t, "1.2.3", h.manifestVersion(t))
	assert.Empty(t, h.builder.selectors)
	for _, c := range h.runner.Calls() {
		assert.False(t, strings.HasPrefix(c, "git commit"), c)
	}
}

func TestRun_ForceDowngradesPreflightAndLint(t *testing.T) {
	h := newHarness(t)
	h.cfg.Release.Force = true
	h.runner.On("git status --porcelain", toolexec.Result{Stdout: "?? notes.txt\n"}, nil)
	h.builder.codes["lint-*"] = 1

	s := h.run(t)

	require.Equal(t, 0, s.ExitCode, "steps: %+v", s.Steps)
	st := stepStatuses(s)
	assert.Equal(t, tasks.StatusPass, st[StepPreflight])
	assert.Equal(t, tasks.StatusPass, st[StepLint])
	assert.Equal(t, "1 problem(s) ignored (--force)", s.Steps[0].Message)
	assert.Equal(t, "lint failures ignored (--force)", s.Steps[1].Message)
}

func TestRun_LintFailureWithoutForce(t *testing.T) {
	h := newHarness(t)
	h.builder.codes["lint-*"] = 1

	s := h.run(t)

	assert.Equal(t, 1, s.ExitCode)
	st := stepStatuses(s)
	assert.Equal(t, tasks.StatusFail, st[StepLint])
	assert.Equal(t, tasks.StatusSkipped, st[StepBump])
	assert.Equal(t, "1.2.3", h.manifestVersion(t))
}

func TestRun_BuildFailureRestoresManifest(t *testing.T) {
	h := newHarness(t)
	h.builder.codes[buildSelector] = 1

	s := h.run(t)

	assert.Equal(t, 1, s.ExitCode)
	st := stepStatuses(s)
	assert.Equal(t, tasks.StatusPass, st[StepBump])
	assert.Equal(t, tasks.StatusFail, st[StepBuild])
	assert.Equal(t, tasks.StatusSkipped, st[StepCommit])

	raw, err := os.ReadFile(filepath.Join(h.cfg.Project.Root, npm.ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, manifestJSON, string(raw))
}

func TestRun_FailureAfterCommitKeepsBump(t *testing.T) {
	h := newHarness(t)
	h.runner.On("git tag -a*", toolexec.Result{}, &toolexec.ExitError{Command: "git tag", Code: 128, Stderr: "fatal: tag 'v1.2.4' already exists"})

	s := h.run(t)

	assert.Equal(t, 2, s.ExitCode)
	assert.Equal(t, tasks.StatusError, stepStatuses(s)[StepTag])
	assert.Equal(t, "1.2.4", h.manifestVersion(t))
}

func TestRun_DryRunMakesNoChanges(t *testing.T) {
	h := newHarness(t)
	h.cfg.Runtime.DryRun = true

	s := h.run(t)

	require.Equal(t, 0, s.ExitCode, "steps: %+v", s.Steps)
	st := stepStatuses(s)
	for _, name := range []string{StepBump, StepCommit, StepTag, StepPush, StepGitHub} {
		assert.Equal(t, tasks.StatusSkipped, st[name], name)
	}
	assert.Equal(t, tasks.StatusPass, st[StepNPM])
	assert.Equal(t, "1.2.3", h.manifestVersion(t))
	assert.Empty(t, h.publisher.published)

	calls := h.runner.Calls()
	assert.Contains(t, calls, "npm publish --tag latest --dry-run")
	for _, c := range calls {
		for _, mutating := range []string{"git add", "git commit", "git tag -a", "git push"} {
			assert.False(t, strings.HasPrefix(c, mutating), c)
		}
	}

	gh := s.Steps[9]
	assert.Contains(t, gh.Message, "would create release v1.2.4 in catalyst/tabs")
	assert.Contains(t, gh.Metadata["notes"], "def456 add keyboard navigation")
}

func TestRun_DryRunWithoutGitHubCredentials(t *testing.T) {
	h := newHarness(t)
	h.cfg.Runtime.DryRun = true
	h.releaser.GitHub = func(context.Context) (Publisher, error) {
		return nil, errors.New("no GitHub token")
	}

	s := h.run(t)
	assert.Equal(t, 0, s.ExitCode)
}

func TestRun_MissingGitHubCredentialsIsFatal(t *testing.T) {
	h := newHarness(t)
	h.releaser.GitHub = func(context.Context) (Publisher, error) {
		return nil, errors.New("no GitHub token")
	}

	s := h.run(t)
	assert.Equal(t, 3, s.ExitCode)
	assert.Empty(t, s.Steps)
	assert.Contains(t, h.stderr.String(), "Error: no GitHub token")
	assert.Empty(t, h.sink.eventTypes())
}

func TestRun_PushErrorStopsPublishing(t *testing.T) {
	h := newHarness(t)
	h.runner.On("git push*", toolexec.Result{}, &toolexec.ExitError{Command: "git push", Code: 1, Stderr: "rejected"})

	s := h.run(t)

	assert.Equal(t, 2, s.ExitCode)
	st := stepStatuses(s)
	assert.Equal(t, tasks.StatusError, st[StepPush])
	assert.Equal(t, tasks.StatusSkipped, st[StepNPM])
	assert.Equal(t, tasks.StatusSkipped, st[StepGitHub])
	assert.NotContains(t, h.runner.Calls(), "npm publish --tag latest")
	assert.Empty(t, h.publisher.published)
}

func TestRun_ExistingGitHubReleaseFailsPreflight(t *testing.T) {
	h := newHarness(t)
	h.publisher.exists = true

	s := h.run(t)

	assert.Equal(t, 1, s.ExitCode)
	assert.Equal(t, "GitHub release v1.2.4 already exists in catalyst/tabs", s.Steps[0].Evidence["github"])
}

func TestRun_PartialGitHubReleaseReportsURL(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = errors.New("upload failed")

	s := h.run(t)

	assert.Equal(t, 2, s.ExitCode)
	gh := s.Steps[9]
	assert.Equal(t, tasks.StatusError, gh.Status)
	assert.Contains(t, gh.Message, "releases/tag/v1.2.4")
}

func TestRun_RepositoryFromRemote(t *testing.T) {
	h := newHarness(t)
	h.cfg.Release.Repository = ""
	h.runner.On("git remote get-url origin", toolexec.Result{Stdout: "git@github.com:catalyst/tabs.git\n"}, nil)

	s := h.run(t)

	require.Equal(t, 0, s.ExitCode, "steps: %+v", s.Steps)
	require.Len(t, h.publisher.published, 1)
	assert.Equal(t, "catalyst/tabs", h.publisher.published[0].Repository)
}

func TestRun_NonGitHubRemoteIsFatal(t *testing.T) {
	h := newHarness(t)
	h.cfg.Release.Repository = ""
	h.runner.On("git remote get-url origin", toolexec.Result{Stdout: "https://gitlab.com/catalyst/tabs.git\n"}, nil)

	s := h.run(t)
	assert.Equal(t, 3, s.ExitCode)
	assert.Contains(t, h.stderr.String(), "--repository")
}

func TestRun_SkipFlags(t *testing.T) {
	h := newHarness(t)
	h.cfg.Release.SkipNPM = true
	h.cfg.Release.SkipGitHub = true
	h.releaser.GitHub = nil

	s := h.run(t)

	require.Equal(t, 0, s.ExitCode, "steps: %+v", s.Steps)
	st := stepStatuses(s)
	assert.Equal(t, tasks.StatusSkipped, st[StepNPM])
	assert.Equal(t, tasks.StatusSkipped, st[StepGitHub])
	for _, c := range h.runner.Calls() {
		assert.False(t, strings.HasPrefix(c, "npm "), c)
	}
}

func TestRun_PrereleaseBump(t *testing.T) {
	h := newHarness(t)
	h.cfg.Release.Bump = "prerelease"
	h.cfg.Release.NPMTag = "next"

	s := h.run(t)

	require.Equal(t, 0, s.ExitCode, "steps: %+v", s.Steps)
	assert.Equal(t, "v1.2.4-rc.0", s.Tag)
	require.Len(t, h.publisher.published, 1)
	assert.True(t, h.publisher.published[0].Prerelease)
	assert.Contains(t, h.runner.Calls(), "npm publish --tag next")
}

func TestRun_GitDescribeFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.runner.On("git describe --tags --abbrev=0 --match v*", toolexec.Result{}, &toolexec.ExitError{
		Command: "git describe", Code: 128,
		Stderr:  "fatal: not a git repository (or any of the parent directories): .git",
	})

	s := h.run(t)

	assert.Equal(t, 3, s.ExitCode)
	assert.Empty(t, s.Steps)
	assert.Contains(t, h.stderr.String(), "not a git repository")
}

func TestRun_NoPreviousTag(t *testing.T) {
	h := newHarness(t)
	h.runner.On("git describe --tags --abbrev=0 --match v*", toolexec.Result{}, &toolexec.ExitError{
		Command: "git describe", Code: 128,
		Stderr:  "fatal: No names found, cannot describe anything.",
	})
	h.runner.On("git log --no-merges --pretty=format:%h %s", toolexec.Result{Stdout: "abc123 initial\n"}, nil)

	s := h.run(t)

	require.Equal(t, 0, s.ExitCode, "steps: %+v", s.Steps)
	require.Len(t, h.publisher.published, 1)
	assert.Contains(t, h.publisher.published[0].Body, "- abc123 initial")
}

func TestRun_MissingManifestIsFatal(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.Remove(filepath.Join(h.cfg.Project.Root, npm.ManifestFile)))

	s := h.run(t)
	assert.Equal(t, 3, s.ExitCode)
	assert.Contains(t, h.stderr.String(), "Error:")
}

func TestNotes(t *testing.T) {
	assert.Equal(t, "## Changes since v1.0.0\n\n- a1 one\n- b2 two\n", Notes("v1.0.0", []string{"a1 one", " b2 two "}))
	assert.Equal(t, "## Changes\n\nNo changes recorded.\n", Notes("", nil))
}
