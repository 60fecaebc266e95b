package release

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"elemforge/internal/archive"
	"elemforge/internal/config"
	"elemforge/internal/flags"
	"elemforge/internal/github"
	"elemforge/internal/npm"
	"elemforge/internal/output"
	"elemforge/internal/settle"
	"elemforge/internal/tasks"
	"elemforge/internal/tasks/builtin"
)

const (
	lintSelector  = "lint-*"
	buildSelector = builtin.IDBuildModule + "," + builtin.IDBuildScript
	archivePrefix = "package"
	lockFile      = "package-lock.json"
)

// check is one preflight condition. It returns a problem description, or ""
// when the condition holds.
type check struct {
	name string
	run  settle.Op[string]
}

func (r *Releaser) checks(st *state) []check {
	cfg := r.Config
	cs := []check{
		{"clean", func(ctx context.Context) (string, error) {
			clean, err := r.Git.IsClean(ctx)
			if err != nil || clean {
				return "", err
			}
			return "working tree has uncommitted changes", nil
		}},
		{"branch", func(ctx context.Context) (string, error) {
			branch, err := r.Git.CurrentBranch(ctx)
			if err != nil || branch == cfg.Release.Branch {
				return "", err
			}
			return fmt.Sprintf("on branch %q, releases are cut from %q", branch, cfg.Release.Branch), nil
		}},
		{"tag", func(ctx context.Context) (string, error) {
			exists, err := r.Git.TagExists(ctx, st.tag)
			if err != nil || !exists {
				return "", err
			}
			return fmt.Sprintf("tag %s already exists", st.tag), nil
		}},
	}
	if !cfg.Release.SkipNPM && !st.manifest.Private() {
		cs = append(cs, check{"npm", func(ctx context.Context) (string, error) {
			published, err := r.NPM.Published(ctx, st.manifest.Name(), st.version)
			if err != nil || !published {
				return "", err
			}
			return fmt.Sprintf("%s@%s is already published", st.manifest.Name(), st.version), nil
		}})
	}
	if !cfg.Release.SkipGitHub && st.publisher != nil {
		cs = append(cs, check{"github", func(ctx context.Context) (string, error) {
			exists, err := st.publisher.ReleaseExists(ctx, st.repository, st.tag)
			if err != nil || !exists {
				return "", err
			}
			return fmt.Sprintf("GitHub release %s already exists in %s", st.tag, st.repository), nil
		}})
	}
	return cs
}

// preflight runs every check concurrently and reports all problems at once.
// With --force problems become warnings; errors running a check never do.
func (r *Releaser) preflight(ctx context.Context, st *state, _ *output.Manager) (tasks.Result, error) {
	cs := r.checks(st)
	ops := make([]settle.Op[string], len(cs))
	for i, c := range cs {
		ops[i] = c.run
	}
	problems, err := settle.All(ctx, ops...)
	if err != nil {
		return tasks.Result{}, fmt.Errorf("preflight: %w", err)
	}

	evidence := make(map[string]string)
	for i, p := range problems {
		if p != "" {
			evidence[cs[i].name] = p
		}
	}
	if len(evidence) == 0 {
		return tasks.PassResultWithMessage("", fmt.Sprintf("%d checks passed", len(cs))), nil
	}

	msgs := make([]string, 0, len(evidence))
	for _, name := range sortedNames(evidence) {
		msgs = append(msgs, evidence[name])
	}
	if r.Config.Release.Force {
		for _, m := range msgs {
			r.Logger.Warn("preflight check ignored", slog.String("problem", m))
		}
		res := tasks.PassResultWithMessage("", fmt.Sprintf("%d problem(s) ignored (--%s)", len(msgs), flags.FlagForce))
		res.Evidence = evidence
		return res, nil
	}
	res := tasks.FailResult("", strings.Join(msgs, "; "))
	res.Evidence = evidence
	return res, nil
}

func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// runTasks executes selector through the builder; task results go to out
// alongside the release steps.
func (r *Releaser) runTasks(ctx context.Context, selector string, out *output.Manager) (int, int, error) {
	sub := *r.Config
	sub.Tasks.Selector = selector
	plan, err := r.Builder.BuildPlan(&sub)
	if err != nil {
		return 0, 0, err
	}
	summary := r.Builder.Execute(ctx, &sub, plan, out)
	return summary.ExitCode, len(summary.Results), nil
}

func (r *Releaser) lint(ctx context.Context, _ *state, out *output.Manager) (tasks.Result, error) {
	code, n, err := r.runTasks(ctx, lintSelector, out)
	if err != nil {
		return tasks.Result{}, err
	}
	switch {
	case code == 0:
		return tasks.PassResultWithMessage("", fmt.Sprintf("%d lint task(s) clean", n)), nil
	case code == 1 && r.Config.Release.Force:
		r.Logger.Warn("lint failures ignored", slog.String("flag", "--"+flags.FlagForce))
		return tasks.PassResultWithMessage("", fmt.Sprintf("lint failures ignored (--%s)", flags.FlagForce)), nil
	case code == 1:
		return tasks.FailResult("", "lint reported problems"), nil
	default:
		return tasks.ErrorResult("", fmt.Sprintf("lint run did not complete (exit code %d)", code)), nil
	}
}

func (r *Releaser) bump(_ context.Context, st *state, _ *output.Manager) (tasks.Result, error) {
	change := fmt.Sprintf("%s -> %s", st.current, st.version)
	if r.dryRun() {
		return tasks.SkippedResult("", "dry run: would bump "+change), nil
	}
	st.preBump = bytes.Clone(st.manifest.Bytes())
	if err := st.manifest.SetVersion(st.version); err != nil {
		return tasks.Result{}, err
	}
	if err := st.manifest.Write(); err != nil {
		return tasks.Result{}, err
	}
	return tasks.PassResultWithArtifacts("", change, []string{npm.ManifestFile}, nil), nil
}

// restoreManifest puts back the package.json bump when the release stopped
// before the version was committed.
func (r *Releaser) restoreManifest(st *state) {
	if st.preBump == nil || st.committed {
		return
	}
	m, err := npm.ParseManifest(st.manifest.Path, st.preBump)
	if err == nil {
		err = m.Write()
	}
	if err != nil {
		r.Logger.Warn("could not restore package.json; revert the version bump by hand",
			slog.String("version", st.version), slog.Any("error", err))
		return
	}
	r.Logger.Info("restored package.json", slog.String("version", st.current))
}

func (r *Releaser) build(ctx context.Context, _ *state, out *output.Manager) (tasks.Result, error) {
	code, n, err := r.runTasks(ctx, buildSelector, out)
	if err != nil {
		return tasks.Result{}, err
	}
	switch code {
	case 0:
		return tasks.PassResultWithMessage("", fmt.Sprintf("%d task(s) built", n)), nil
	case 1:
		return tasks.FailResult("", "build failed"), nil
	default:
		return tasks.ErrorResult("", fmt.Sprintf("build did not complete (exit code %d)", code)), nil
	}
}

func (r *Releaser) archive(_ context.Context, st *state, _ *output.Manager) (tasks.Result, error) {
	cfg := r.Config
	dst := builtin.ArchivePath(cfg.Project.Root, cfg.Project.TempDir, cfg.Project.Name, st.version)
	entries, err := archive.TarGz(dst, cfg.Path(cfg.Project.DistDir), archivePrefix)
	if err != nil {
		return tasks.Result{}, err
	}
	st.archivePath = dst
	return tasks.PassResultWithArtifacts("",
		fmt.Sprintf("%d file(s) in %s", len(entries), filepath.Base(dst)),
		[]string{relPath(cfg, dst)},
		map[string]any{"files": len(entries)},
	), nil
}

func relPath(cfg *config.Config, p string) string {
	rel, err := filepath.Rel(cfg.Project.Root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(rel)
}

func commitMessage(tag string) string { return "Release " + tag }

func (r *Releaser) commit(ctx context.Context, st *state, _ *output.Manager) (tasks.Result, error) {
	msg := commitMessage(st.tag)
	if r.dryRun() {
		return tasks.SkippedResult("", fmt.Sprintf("dry run: would commit %q", msg)), nil
	}
	paths := []string{npm.ManifestFile}
	if _, err := os.Stat(r.Config.Path(lockFile)); err == nil {
		paths = append(paths, lockFile)
	}
	if err := r.Git.Add(ctx, paths...); err != nil {
		return tasks.Result{}, err
	}
	if err := r.Git.Commit(ctx, msg); err != nil {
		return tasks.Result{}, err
	}
	st.committed = true
	return tasks.PassResultWithMessage("", msg), nil
}

func (r *Releaser) tag(ctx context.Context, st *state, _ *output.Manager) (tasks.Result, error) {
	if r.dryRun() {
		return tasks.SkippedResult("", "dry run: would tag "+st.tag), nil
	}
	if err := r.Git.Tag(ctx, st.tag, commitMessage(st.tag)); err != nil {
		return tasks.Result{}, err
	}
	return tasks.PassResultWithMessage("", st.tag), nil
}

func (r *Releaser) push(ctx context.Context, st *state, _ *output.Manager) (tasks.Result, error) {
	rel := r.Config.Release
	target := fmt.Sprintf("%s %s %s", rel.Remote, rel.Branch, st.tag)
	if r.dryRun() {
		return tasks.SkippedResult("", "dry run: would push "+target), nil
	}
	if err := r.Git.Push(ctx, rel.Remote, rel.Branch, st.tag); err != nil {
		return tasks.Result{}, err
	}
	return tasks.PassResultWithMessage("", target), nil
}

// publishNPM runs npm publish; a dry run hands --dry-run to npm, which packs
// without uploading.
func (r *Releaser) publishNPM(ctx context.Context, st *state, _ *output.Manager) (tasks.Result, error) {
	rel := r.Config.Release
	switch {
	case rel.SkipNPM:
		return tasks.SkippedResult("", "--"+flags.FlagSkipNPM), nil
	case st.manifest.Private():
		return tasks.SkippedResult("", "package is private"), nil
	}
	if err := r.NPM.Publish(ctx, rel.NPMTag, r.dryRun()); err != nil {
		return tasks.Result{}, err
	}
	msg := fmt.Sprintf("%s@%s (%s)", st.manifest.Name(), st.version, rel.NPMTag)
	if r.dryRun() {
		msg = "dry run: " + msg
	}
	return tasks.PassResultWithMessage("", msg), nil
}

func (r *Releaser) publishGitHub(ctx context.Context, st *state, _ *output.Manager) (tasks.Result, error) {
	rel := r.Config.Release
	if rel.SkipGitHub {
		return tasks.SkippedResult("", "--"+flags.FlagSkipGitHub), nil
	}

	commits, err := r.Git.Log(ctx, st.prevTag)
	if err != nil {
		return tasks.Result{}, err
	}
	req := github.Release{
		Repository: st.repository,
		Tag:        st.tag,
		Name:       st.tag,
		Body:       Notes(st.prevTag, commits),
		Draft:      rel.Draft,
		Prerelease: isPrerelease(st.version),
	}
	if st.archivePath != "" {
		req.Assets = []string{st.archivePath}
	}

	if r.dryRun() {
		res := tasks.SkippedResult("", fmt.Sprintf("dry run: would create release %s in %s", st.tag, st.repository))
		res.Metadata = map[string]any{"notes": req.Body, "commits": len(commits)}
		return res, nil
	}
	if st.publisher == nil {
		return tasks.Result{}, errors.New("GitHub publisher is not available")
	}

	published, err := st.publisher.Publish(ctx, req)
	if err != nil {
		if published.URL != "" {
			return tasks.Result{}, fmt.Errorf("release created at %s but incomplete: %w", published.URL, err)
		}
		return tasks.Result{}, err
	}
	res := tasks.PassResultWithMessage("", published.URL)
	res.Metadata = map[string]any{"release_id": published.ID, "assets": published.Assets, "commits": len(commits)}
	return res, nil
}

func isPrerelease(version string) bool {
	v, err := semver.NewVersion(version)
	return err == nil && v.Prerelease() != ""
}

// Notes renders release notes from one-line commit subjects.
func Notes(prevTag string, commits []string) string {
	var b strings.Builder
	if prevTag != "" {
		fmt.Fprintf(&b, "## Changes since %s\n\n", prevTag)
	} else {
		b.WriteString("## Changes\n\n")
	}
	if len(commits) == 0 {
		b.WriteString("No changes recorded.\n")
		return b.String()
	}
	for _, c := range commits {
		fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(c))
	}
	return b.String()
}
