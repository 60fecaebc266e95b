package flags

// Package flags defines canonical CLI flag names shared across the CLI and engine.
// Keeping these as constants helps avoid drift between Cobra flag wiring and other
// code paths that need to reference flags (e.g. the rerun command printed in
// the build report).
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&cfg.Project.Name, flags.FlagName, "", "...")
//	arg := "--" + flags.FlagName
const (
	// Project
	FlagName   = "name"
	FlagRoot   = "root"
	FlagConfig = "config"

	// Logging
	FlagLogLevel  = "log-level"
	FlagLogFormat = "log-format"
	FlagVerbose   = "verbose"

	// Tasks
	FlagTasks        = "tasks"
	FlagSet          = "set"
	FlagAllowFailure = "allow-failure"
	FlagDryRun       = "dry-run"

	// Build
	FlagNamespace    = "namespace"
	FlagImportPrefix = "import-prefix"
	FlagNoMinify     = "no-minify"

	// Output
	FlagConsoleFormat       = "console-format"
	FlagConsoleFilterStatus = "console-filter-status"
	FlagReport              = "report"
	FlagOut                 = "out"
	FlagOutFormat           = "out-format"
	FlagEmit                = "emit"
	FlagNoConsole           = "no-console"

	// Runtime
	FlagConcurrency = "concurrency"
	FlagTimeout     = "timeout"
	FlagDebounce    = "debounce"

	// Release
	FlagBump       = "bump"
	FlagPreid      = "preid"
	FlagNPMTag     = "npm-tag"
	FlagRepository = "repository"
	FlagForce      = "force"
	FlagDraft      = "draft"
	FlagSkipNPM    = "skip-npm"
	FlagSkipGitHub = "skip-github"
)
