package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"elemforge/internal/config"
	"elemforge/internal/engine"
	"elemforge/internal/flags"
	"elemforge/internal/logging"
	"elemforge/internal/npm"
	"elemforge/internal/toolexec"
)

// app is the state shared by one command-line invocation.
type app struct {
	cfg        *config.Config
	configPath string
	// noMinify is applied to cfg.Build.Minify after loading so a config file
	// can still turn minification off.
	noMinify bool

	stdout io.Writer
	stderr io.Writer
	runner toolexec.Runner
}

func newApp(stdout, stderr io.Writer, runner toolexec.Runner) *app {
	if runner == nil {
		runner = toolexec.ExecRunner{}
	}
	return &app{cfg: config.New(), stdout: stdout, stderr: stderr, runner: runner}
}

// MAINTAINER NOTE: flags bind straight into a.cfg. Every flag here needs a
// matching config key so file and environment values can be overridden.
func (a *app) addPersistentFlags(cmd *cobra.Command) {
	cfg := a.cfg
	pf := cmd.PersistentFlags()

	// Project
	pf.StringVar(&cfg.Project.Name, flags.FlagName, "", "Component name (default: unscoped package.json name)")
	pf.StringVar(&cfg.Project.Root, flags.FlagRoot, cfg.Project.Root, "Package root holding package.json")
	pf.StringVar(&a.configPath, flags.FlagConfig, "", "Config file (default: .elemforge.yaml in the package root)")

	// Logging
	pf.StringVar(&cfg.Runtime.LogLevel, flags.FlagLogLevel, cfg.Runtime.LogLevel, "Log level: debug|info|warn|error")
	pf.StringVar(&cfg.Runtime.LogFormat, flags.FlagLogFormat, cfg.Runtime.LogFormat, "Log format: text|json|logfmt")
	pf.BoolVar(&cfg.Runtime.Verbose, flags.FlagVerbose, false, "Verbose output: debug logging, full error details and every GitHub API call")

	// Tasks
	pf.StringSliceVar(&cfg.Tasks.Set, flags.FlagSet, nil, "Per-task options as taskID.option=value (repeatable; comma-separated accepted)")
	pf.StringSliceVar(&cfg.Tasks.AllowFailures, flags.FlagAllowFailure, nil, "Task IDs or patterns whose failures are reported but do not fail the run")
	pf.BoolVar(&cfg.Runtime.DryRun, flags.FlagDryRun, false, "Print what would run without running it")

	// Output
	pf.StringVar(&cfg.Output.ConsoleFormat, flags.FlagConsoleFormat, cfg.Output.ConsoleFormat, "Console output format: text|json|ndjson")
	pf.StringSliceVar(&cfg.Output.ConsoleFilterStatus, flags.FlagConsoleFilterStatus, nil, "Only print results with these statuses (PASS, FAIL, ERROR, SKIPPED)")
	pf.StringVar(&cfg.Output.Report, flags.FlagReport, "", "Write a Markdown build report to this path")
	pf.StringVar(&cfg.Output.Out, flags.FlagOut, "", "Write structured results to this path")
	pf.StringVar(&cfg.Output.OutFormat, flags.FlagOutFormat, "", "Format for --out: json|ndjson (default: inferred from the extension)")
	pf.StringSliceVar(&cfg.Output.Emit, flags.FlagEmit, nil, "Also stream results to stdout: json|ndjson")
	pf.BoolVar(&cfg.Output.NoConsole, flags.FlagNoConsole, false, "Suppress console output (use with --emit/--out/--report)")

	// Runtime
	pf.IntVar(&cfg.Runtime.Concurrency, flags.FlagConcurrency, cfg.Runtime.Concurrency, "Tasks run at once within a stage")
	pf.DurationVar(&cfg.Runtime.Timeout, flags.FlagTimeout, cfg.Runtime.Timeout, "Timeout for one run")
}

// addBuildFlags adds the flags of commands that compile the component.
func (a *app) addBuildFlags(cmd *cobra.Command) {
	cfg := a.cfg
	f := cmd.Flags()
	f.StringVar(&cfg.Build.Namespace, flags.FlagNamespace, cfg.Build.Namespace, "Global object the script build imports from and exports to")
	f.StringVar(&cfg.Build.ImportPrefix, flags.FlagImportPrefix, "", "Require every named import of the script build to start with this prefix")
	f.BoolVar(&a.noMinify, flags.FlagNoMinify, false, "Do not minify the script build and injected templates")
}

// load layers the config file and environment under the flags the user
// passed, fills in the project name and validates the result.
func (a *app) load(cmd *cobra.Command) (*slog.Logger, error) {
	cfg := a.cfg
	err := preservingFlags(cmd.Flags(), func() error {
		_, err := config.Load(cfg, a.configPath)
		return err
	})
	if err != nil {
		return nil, err
	}
	if a.noMinify {
		cfg.Build.Minify = false
	}
	if cfg.Runtime.Verbose && !cmd.Flags().Changed(flags.FlagLogLevel) {
		cfg.Runtime.LogLevel = string(logging.LevelDebug)
	}

	if cfg.Project.Name == "" {
		if m, err := npm.ReadManifest(cfg.Path(npm.ManifestFile)); err == nil {
			cfg.Project.Name = npm.UnscopedName(m.Name())
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(a.stderr, cfg.Runtime.LogLevel, cfg.Runtime.LogFormat)
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// preservingFlags runs fn (which may overwrite flag-bound fields) and then
// restores every flag the user set explicitly.
func preservingFlags(fs *pflag.FlagSet, fn func() error) error {
	type saved struct {
		flag  *pflag.Flag
		value string
		slice []string
	}
	var changed []saved
	fs.Visit(func(f *pflag.Flag) {
		s := saved{flag: f, value: f.Value.String()}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			s.slice = append([]string(nil), sv.GetSlice()...)
		}
		changed = append(changed, s)
	})

	if err := fn(); err != nil {
		return err
	}

	var errs []error
	for _, s := range changed {
		var err error
		if sv, ok := s.flag.Value.(pflag.SliceValue); ok {
			err = sv.Replace(s.slice)
		} else {
			err = s.flag.Value.Set(s.value)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("--%s: %w", s.flag.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (a *app) newEngine(logger *slog.Logger) *engine.Engine {
	eng := engine.NewEngine(a.runner, logger)
	eng.Stdout = a.stdout
	eng.Stderr = a.stderr
	return eng
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
