// Package release cuts a release of the component: it checks the repository,
// bumps the version, builds, tags and publishes to npm and GitHub. Every step
// is reported to the output sinks as a "release:<step>" result.
package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"elemforge/internal/config"
	"elemforge/internal/engine"
	"elemforge/internal/flags"
	"elemforge/internal/git"
	"elemforge/internal/github"
	"elemforge/internal/npm"
	"elemforge/internal/output"
	"elemforge/internal/tasks"
	"elemforge/internal/toolexec"
)

// Step names, in execution order.
const (
	StepPreflight = "preflight"
	StepLint      = "lint"
	StepBump      = "bump"
	StepBuild     = "build"
	StepArchive   = "archive"
	StepCommit    = "commit"
	StepTag       = "tag"
	StepPush      = "push"
	StepNPM       = "npm"
	StepGitHub    = "github"
)

// Repository is the subset of git used by a release.
type Repository interface {
	IsClean(ctx context.Context) (bool, error)
	CurrentBranch(ctx context.Context) (string, error)
	TagExists(ctx context.Context, tag string) (bool, error)
	LatestTag(ctx context.Context, prefix string) (string, error)
	Log(ctx context.Context, from string) ([]string, error)
	Add(ctx context.Context, paths ...string) error
	Commit(ctx context.Context, message string) error
	Tag(ctx context.Context, tag, message string) error
	Push(ctx context.Context, remote, branch, tag string) error
	RemoteURL(ctx context.Context, remote string) (string, error)
}

// Registry is the npm registry.
type Registry interface {
	Published(ctx context.Context, name, version string) (bool, error)
	Publish(ctx context.Context, tag string, dryRun bool) error
}

// Publisher creates GitHub releases.
type Publisher interface {
	ReleaseExists(ctx context.Context, repository, tag string) (bool, error)
	Publish(ctx context.Context, r github.Release) (github.PublishedRelease, error)
}

// PublisherFactory opens a Publisher. It is called at most once per release
// and only when GitHub publishing is enabled.
type PublisherFactory func(ctx context.Context) (Publisher, error)

// Builder plans and runs task selections. *engine.Engine implements it.
type Builder interface {
	BuildPlan(cfg *config.Config) (*engine.Plan, error)
	Execute(ctx context.Context, cfg *config.Config, plan *engine.Plan, outMgr *output.Manager) engine.Summary
}

// Summary is the outcome of one release.
type Summary struct {
	ExitCode int
	Version  string
	Tag      string
	Steps    []tasks.Result
}

type Releaser struct {
	Config  *config.Config
	Git     Repository
	NPM     Registry
	Builder Builder
	GitHub  PublisherFactory
	Logger  *slog.Logger

	// Stderr receives fatal errors.
	Stderr io.Writer
}

// New wires a Releaser to the git and npm CLIs and the given engine.
func New(cfg *config.Config, runner toolexec.Runner, eng *engine.Engine, logger *slog.Logger) *Releaser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Releaser{
		Config:  cfg,
		Git:     git.New(cfg.Project.Root, runner),
		NPM:     npm.NewClient(cfg.Project.Root, runner),
		Builder: eng,
		GitHub:  GitHubPublisher(runner, logger),
		Logger:  logger,
		Stderr:  eng.Stderr,
	}
}

// GitHubPublisher returns a factory that resolves a token and opens the
// GitHub REST client.
func GitHubPublisher(runner toolexec.Runner, logger *slog.Logger) PublisherFactory {
	return func(ctx context.Context) (Publisher, error) {
		token, source, err := github.ResolveAuthToken(ctx, "", runner)
		if err != nil {
			return nil, fmt.Errorf("resolve GitHub token: %w", err)
		}
		if token == "" {
			return nil, errors.New("no GitHub token: set GITHUB_TOKEN or run `gh auth login`")
		}
		logger.DebugContext(ctx, "using GitHub token", slog.String("source", string(source)))
		client, err := github.NewClient(ctx, token, github.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return github.NewPublisher(client)
	}
}

// state is what one release run learns as it goes.
type state struct {
	manifest    *npm.Manifest
	current     string
	version     string
	tag         string
	prevTag     string
	repository  string
	publisher   Publisher
	archivePath string

	// preBump holds package.json as it was before the bump step wrote it.
	preBump   []byte
	committed bool
}

type step struct {
	name string
	run  func(ctx context.Context, st *state, out *output.Manager) (tasks.Result, error)
}

func (r *Releaser) steps() []step {
	return []step{
		{StepPreflight, r.preflight},
		{StepLint, r.lint},
		{StepBump, r.bump},
		{StepBuild, r.build},
		{StepArchive, r.archive},
		{StepCommit, r.commit},
		{StepTag, r.tag},
		{StepPush, r.push},
		{StepNPM, r.publishNPM},
		{StepGitHub, r.publishGitHub},
	}
}

func (r *Releaser) dryRun() bool { return r.Config.Runtime.DryRun }

func (r *Releaser) fatal(err error) Summary {
	if r.Stderr != nil {
		fmt.Fprintf(r.Stderr, "Error: %v\n", err)
	}
	return Summary{ExitCode: 3}
}

// Run performs the release, reporting each step to out. After the first
// failed step the remaining ones are reported as skipped.
func (r *Releaser) Run(ctx context.Context, out *output.Manager) Summary {
	if r.Config == nil || r.Git == nil || r.NPM == nil || r.Builder == nil {
		return r.fatal(errors.New("releaser is not fully configured"))
	}
	if r.Logger == nil {
		r.Logger = slog.Default()
	}

	st, err := r.prepare(ctx)
	if err != nil {
		return r.fatal(err)
	}

	summary := Summary{Version: st.version, Tag: st.tag}
	_ = out.Emit(output.Event{Type: output.EventReleaseStarted, Detail: st.tag})
	r.Logger.Info("release started",
		slog.String("version", st.version),
		slog.String("previous", st.prevTag),
		slog.Bool("dry_run", r.dryRun()))

	abortedAt := ""
	for _, s := range r.steps() {
		id := output.ReleaseStepID(s.name)
		var res tasks.Result
		if abortedAt != "" {
			res = tasks.SkippedResult(id, "release stopped at "+abortedAt)
		} else {
			res = r.runStep(ctx, s, st, out)
			if res.Status == tasks.StatusFail || res.Status == tasks.StatusError {
				abortedAt = s.name
			}
		}
		summary.Steps = append(summary.Steps, res)
		_ = out.Write(res)
	}

	if abortedAt != "" {
		r.restoreManifest(st)
	}

	summary.ExitCode = engine.ExitCodeForResults(summary.Steps)
	_ = out.Emit(output.Event{Type: output.EventReleaseFinished, Detail: st.tag, ExitCode: summary.ExitCode})
	if abortedAt != "" {
		r.Logger.Warn("release aborted", slog.String("step", abortedAt), slog.Int("exit_code", summary.ExitCode))
	} else {
		r.Logger.Info("release finished", slog.String("tag", st.tag))
	}
	return summary
}

func (r *Releaser) runStep(ctx context.Context, s step, st *state, out *output.Manager) tasks.Result {
	id := output.ReleaseStepID(s.name)
	start := time.Now()

	var res tasks.Result
	err := ctx.Err()
	if err == nil {
		res, err = s.run(ctx, st, out)
	}
	if err != nil {
		res = tasks.ErrorResult(id, engine.PresentError(err, r.Config.Runtime.Verbose))
	}
	res.TaskID = id
	if res.Status == "" {
		res.Status = tasks.StatusPass
	}
	res.Duration = time.Since(start)
	return res
}

// prepare reads the manifest and works out the version, tag and target
// repository. Errors here are fatal: nothing has been checked or changed yet.
func (r *Releaser) prepare(ctx context.Context) (*state, error) {
	cfg := r.Config
	m, err := npm.ReadManifest(cfg.Path(npm.ManifestFile))
	if err != nil {
		return nil, err
	}
	st := &state{manifest: m, current: m.Version()}

	st.version, err = npm.NextVersion(st.current, cfg.Release.Bump, cfg.Release.Preid)
	if err != nil {
		return nil, fmt.Errorf("bump %s: %w", cfg.Release.Bump, err)
	}
	st.tag = cfg.Release.TagPrefix + st.version

	st.prevTag, err = r.Git.LatestTag(ctx, cfg.Release.TagPrefix)
	if err != nil && !errors.Is(err, git.ErrNoTags) {
		return nil, err
	}

	if cfg.Release.SkipGitHub {
		return st, nil
	}
	st.repository, err = r.resolveRepository(ctx)
	if err != nil {
		return nil, err
	}
	if r.GitHub == nil {
		return nil, errors.New("GitHub publishing is enabled but no publisher is configured")
	}
	st.publisher, err = r.GitHub(ctx)
	if err != nil {
		if !r.dryRun() {
			return nil, err
		}
		// A dry run can go ahead without credentials; the release check is skipped.
		r.Logger.Warn("GitHub unavailable during dry run", slog.Any("error", err))
		st.publisher = nil
	}
	return st, nil
}

func (r *Releaser) resolveRepository(ctx context.Context) (string, error) {
	if repo := r.Config.Release.Repository; repo != "" {
		return repo, nil
	}
	remote := r.Config.Release.Remote
	url, err := r.Git.RemoteURL(ctx, remote)
	if err != nil {
		return "", err
	}
	repo, ok := git.GitHubRepository(url)
	if !ok {
		return "", fmt.Errorf("remote %q (%s) is not a GitHub repository; set release.repository or --%s", remote, url, flags.FlagRepository)
	}
	return repo, nil
}
