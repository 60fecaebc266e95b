package cli

import (
	"github.com/spf13/cobra"

	"elemforge/internal/engine"
	"elemforge/internal/flags"
	"elemforge/internal/release"
)

const publishLong = `Cut a release of the component.

Steps, in order; the first failure stops the release and the remaining steps
are reported as SKIPPED:
	preflight  clean working tree, release branch, tag and release do not exist yet
	lint       every lint-* task
	bump       write the next version to package.json
	build      module and script builds
	archive    <temp_dir>/<name>-<version>.tgz of dist/
	commit     commit package.json
	tag        annotated tag <tag_prefix><version>
	push       push the branch and the tag
	npm        npm publish --tag <npm-tag>
	github     GitHub release with notes from the commits since the previous tag,
	           with the archive attached

--force downgrades preflight problems and lint failures to warnings.
--dry-run runs the checks, lint and build, passes --dry-run to npm and changes
nothing else.

Authentication:
	The GitHub release uses GITHUB_TOKEN, then GH_TOKEN, then the token of the
	GitHub CLI (gh auth token). npm uses your npm login.

Each step is reported as a result with task ID "release:<step>", between
release.started and release.finished events.

Examples:
	elemforge publish
	elemforge publish --bump minor
	elemforge publish --bump prerelease --preid beta --npm-tag next
	elemforge publish --bump 2.0.0 --draft
	elemforge publish --dry-run --report build/release.md
`

func newPublishCmd(a *app) *cobra.Command {
	cfg := a.cfg
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Version, tag and publish a release to npm and GitHub",
		Long:  publishLong,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := a.load(cmd)
			if err != nil {
				return err
			}

			outMgr, err := engine.SetupOutputManager(a.cfg, a.stdout)
			if err != nil {
				return err
			}
			defer outMgr.Close()

			r := release.New(a.cfg, a.runner, a.newEngine(logger), logger)
			return exitWith(r.Run(cmd.Context(), outMgr).ExitCode)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.Release.Bump, flags.FlagBump, cfg.Release.Bump, "major|minor|patch|prerelease or an explicit version")
	f.StringVar(&cfg.Release.Preid, flags.FlagPreid, cfg.Release.Preid, "Prerelease identifier for --bump prerelease")
	f.StringVar(&cfg.Release.NPMTag, flags.FlagNPMTag, cfg.Release.NPMTag, "npm dist-tag")
	f.StringVar(&cfg.Release.Repository, flags.FlagRepository, "", "GitHub OWNER/REPO (default: from the git remote)")
	f.BoolVar(&cfg.Release.Force, flags.FlagForce, false, "Downgrade preflight and lint failures to warnings")
	f.BoolVar(&cfg.Release.Draft, flags.FlagDraft, false, "Create the GitHub release as a draft")
	f.BoolVar(&cfg.Release.SkipNPM, flags.FlagSkipNPM, false, "Do not publish to npm")
	f.BoolVar(&cfg.Release.SkipGitHub, flags.FlagSkipGitHub, false, "Do not create a GitHub release")
	a.addBuildFlags(cmd)
	return cmd
}
