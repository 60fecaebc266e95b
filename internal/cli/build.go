package cli

import (
	"github.com/spf13/cobra"

	"elemforge/internal/flags"
	"elemforge/internal/tasks/builtin"
)

const outputHelp = `Output:
	Console output is controlled by --console-format (default: text).
	Structured outputs can be written via:
	- --out / --out-format: write an aggregate JSON array or NDJSON stream to a file
	- --emit: write an additional structured stream to stdout (json or ndjson)
	- --report: write a Markdown build report
	- --no-console: suppress the console sink (use with --emit/--out for machine output)

	NDJSON mode emits one JSON object per line. Objects are lifecycle Events with a
	"type" field (run.started, stage.started, task.result, stage.finished,
	run.finished). Task results are task.result events with the result fields
	inlined.`

const defaultBuildSelector = builtin.IDBuildModule + "," + builtin.IDBuildScript

func newBuildCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile the module and script builds",
		Long: `Compile the component into dist/.

The module build bundles <src>/<name>.ts into an ES module. The script build
rewrites the component's imports to reads from the global namespace
(--namespace) and its exports to assignments onto it, then minifies the result
into an IIFE. Both builds inject the HTML template and stylesheet at their
markers.

--tasks selects other tasks by ID or pattern; their dependencies always run
first. See "elemforge tasks list".

` + outputHelp + `

Examples:
	elemforge build
	elemforge build --namespace window.CatalystElements --import-prefix Catalyst
	elemforge build --tasks 'build-*,docs' --report build/report.md

	# Show the plan only
	elemforge build --dry-run

	# AI Agent: stream machine-readable events to stdout
	elemforge build --no-console --emit ndjson
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSelection(cmd, defaultBuildSelector)
		},
	}
	cmd.Flags().StringVar(&a.cfg.Tasks.Selector, flags.FlagTasks, "", "Task selector: comma-separated IDs or patterns (default: "+defaultBuildSelector+")")
	a.addBuildFlags(cmd)
	return cmd
}

func newLintCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Run every linter",
		Long: `Run the import check, eslint and the stylesheet linter.

A linter that is not installed is reported as SKIPPED. Findings are FAIL
results and exit with code 1.

` + outputHelp + `

Examples:
	elemforge lint
	elemforge lint --allow-failure lint-sass
	elemforge lint --set lint-ts.fix=true
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.cfg.Tasks.Selector = "lint-*"
			return a.runSelection(cmd, "")
		},
	}
}

func newDocsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Build the documentation bundle",
		Long: `Build the module and bundle the docs entry (docs.entry) into docs.out_dir.

Examples:
	elemforge docs
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.cfg.Tasks.Selector = builtin.IDDocs
			return a.runSelection(cmd, "")
		},
	}
	a.addBuildFlags(cmd)
	return cmd
}

// runSelection loads the configuration and runs the selected tasks through
// the engine.
func (a *app) runSelection(cmd *cobra.Command, defaultSelector string) error {
	selector := a.cfg.Tasks.Selector
	logger, err := a.load(cmd)
	if err != nil {
		return err
	}
	if selector != "" {
		// Commands with a fixed selection win over a selector from config.
		a.cfg.Tasks.Selector = selector
	}
	if a.cfg.Tasks.Selector == "" {
		a.cfg.Tasks.Selector = defaultSelector
	}
	eng := a.newEngine(logger)
	return exitWith(eng.Run(cmd.Context(), a.cfg))
}
