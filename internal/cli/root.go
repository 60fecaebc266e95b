package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"elemforge/internal/toolexec"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

const rootLong = `elemforge builds, lints and releases a single web-component package.

It compiles the component's TypeScript into an ES module and a legacy script
that reads its imports from a global namespace, injects the HTML template and
stylesheet into the compiled code, runs linters, builds the docs bundle and
publishes releases to npm and GitHub.

Examples:
	# Build dist/<name>.js and dist/<name>.script.js
	elemforge build

	# Rebuild on every change under src/
	elemforge watch

	# Run every linter
	elemforge lint

	# Cut a minor release
	elemforge publish --bump minor

	# Write a starter .elemforge.yaml
	elemforge config init

Configuration:
	Settings come from, lowest precedence first: built-in defaults,
	.elemforge.yaml in the project root, ELEMFORGE_<SECTION>_<KEY> environment
	variables, then command-line flags. The project name defaults to the
	unscoped package.json name.

Exit codes:
	0 = every task passed (or was skipped)
	1 = a task failed (lint findings, compile errors)
	2 = a task errored or the run stopped early
	3 = fatal error (nothing ran)`

// exitCode carries a non-zero process exit code out of a command.
type exitCode int

func (c exitCode) Error() string { return fmt.Sprintf("exit code %d", int(c)) }

func exitWith(code int) error {
	if code == 0 {
		return nil
	}
	return exitCode(code)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "elemforge",
		Short:         "Build and release orchestration for a web-component package",
		Long:          rootLong,
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate),
	}
	root.SetVersionTemplate("{{.Version}}\n")
	a.addPersistentFlags(root)

	root.AddCommand(
		newBuildCmd(a),
		newLintCmd(a),
		newDocsCmd(a),
		newWatchCmd(a),
		newPublishCmd(a),
		newTasksCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr, toolexec.ExecRunner{})
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, runner toolexec.Runner) int {
	a := newApp(stdout, stderr, runner)
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	var code exitCode
	switch {
	case err == nil:
		return 0
	case errors.As(err, &code):
		return int(code)
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 3
	}
}
