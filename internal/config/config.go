package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields, keep these in sync:
	// - CLI flags in internal/cli
	// - mapstructure keys in load.go and the starter file in starter.go
	Project Project `yaml:"project"`
	Build   Build   `yaml:"build"`
	Inject  Inject  `yaml:"inject"`
	Lint    Lint    `yaml:"lint"`
	Docs    Docs    `yaml:"docs"`
	Release Release `yaml:"release"`
	Tasks   Tasks   `yaml:"tasks"`
	Output  Output  `yaml:"output"`
	Runtime Runtime `yaml:"runtime"`
}

type Project struct {
	// Name is the component name, e.g. "catalyst-tabs". It names the entry
	// file, the template files and the dist outputs.
	Name string `mapstructure:"name" yaml:"name"`

	// Root is the package root holding package.json (see --root).
	Root string `mapstructure:"root" yaml:"root"`

	SrcDir  string `mapstructure:"src_dir" yaml:"src_dir"`
	DistDir string `mapstructure:"dist_dir" yaml:"dist_dir"`
	TempDir string `mapstructure:"temp_dir" yaml:"temp_dir"`

	// Entry is the TypeScript entry file. Defaults to <src_dir>/<name>.ts.
	Entry string `mapstructure:"entry" yaml:"entry"`
}

type Build struct {
	// Namespace is the global object the script build reads imports from and
	// writes exports to.
	Namespace string `mapstructure:"namespace" yaml:"namespace"`

	// ImportPrefix, when set, requires every named import to start with it
	// (case-insensitive).
	ImportPrefix string `mapstructure:"import_prefix" yaml:"import_prefix"`

	ModuleExt string `mapstructure:"module_ext" yaml:"module_ext"`
	ScriptExt string `mapstructure:"script_ext" yaml:"script_ext"`

	// ModuleTarget and ScriptTarget are esbuild targets, e.g. es2017.
	ModuleTarget string `mapstructure:"module_target" yaml:"module_target"`
	ScriptTarget string `mapstructure:"script_target" yaml:"script_target"`

	Minify    bool `mapstructure:"minify" yaml:"minify"`
	Sourcemap bool `mapstructure:"sourcemap" yaml:"sourcemap"`
}

type Inject struct {
	TemplateMarker string `mapstructure:"template_marker" yaml:"template_marker"`
	StyleMarker    string `mapstructure:"style_marker" yaml:"style_marker"`

	// TemplateFile and StyleFile default to <src_dir>/<name>.html and
	// <src_dir>/<name>.scss. Missing files inject an empty string.
	TemplateFile string `mapstructure:"template_file" yaml:"template_file"`
	StyleFile    string `mapstructure:"style_file" yaml:"style_file"`

	// Sass is the sass executable used for .scss/.sass style files.
	Sass string `mapstructure:"sass" yaml:"sass"`
}

type Lint struct {
	ESLint     string   `mapstructure:"eslint" yaml:"eslint"`
	ESLintArgs []string `mapstructure:"eslint_args" yaml:"eslint_args"`
	Stylelint  string   `mapstructure:"stylelint" yaml:"stylelint"`
}

type Docs struct {
	Entry  string `mapstructure:"entry" yaml:"entry"`
	OutDir string `mapstructure:"out_dir" yaml:"out_dir"`
}

type Release struct {
	// Bump is major, minor, patch, prerelease or an explicit version (see --bump).
	Bump string `mapstructure:"bump" yaml:"bump"`

	// Preid is the prerelease identifier used by "prerelease" bumps.
	Preid string `mapstructure:"preid" yaml:"preid"`

	Branch    string `mapstructure:"branch" yaml:"branch"`
	Remote    string `mapstructure:"remote" yaml:"remote"`
	TagPrefix string `mapstructure:"tag_prefix" yaml:"tag_prefix"`

	// NPMTag is the dist-tag passed to npm publish.
	NPMTag string `mapstructure:"npm_tag" yaml:"npm_tag"`

	// Repository is the GitHub OWNER/REPO receiving the release.
	Repository string `mapstructure:"repository" yaml:"repository"`

	Draft      bool `mapstructure:"draft" yaml:"draft"`
	SkipNPM    bool `mapstructure:"skip_npm" yaml:"skip_npm"`
	SkipGitHub bool `mapstructure:"skip_github" yaml:"skip_github"`

	// Force downgrades preflight and lint failures to warnings.
	Force bool `mapstructure:"-" yaml:"-"`
}

type Tasks struct {
	// Selector selects which tasks to run. Empty means the command default.
	Selector string `mapstructure:"selector" yaml:"selector"`

	// Set provides per-task option overrides of the form taskID.option=value.
	Set []string `mapstructure:"set" yaml:"set"`

	// AllowFailures lists task IDs (or path.Match patterns) whose FAIL results
	// are reported as PASS with a note.
	AllowFailures []string `mapstructure:"allow_failures" yaml:"allow_failures"`
}

type Output struct {
	// ConsoleFormat controls the human-facing console sink format (see --console-format).
	// Allowed values: text, json, ndjson.
	ConsoleFormat string `mapstructure:"console_format" yaml:"console_format"`

	// ConsoleFilterStatus filters console output by result status.
	ConsoleFilterStatus []string `mapstructure:"console_filter_status" yaml:"console_filter_status,omitempty"`

	// Report writes a Markdown build report to this path (see --report).
	Report string `mapstructure:"report" yaml:"report,omitempty"`

	// Out writes structured output to this path (see --out).
	Out       string `mapstructure:"out" yaml:"out,omitempty"`
	OutFormat string `mapstructure:"out_format" yaml:"out_format,omitempty"`

	// Emit writes an additional structured event stream to stdout (see --emit).
	Emit []string `mapstructure:"emit" yaml:"emit,omitempty"`

	NoConsole bool `mapstructure:"no_console" yaml:"no_console"`
}

type Runtime struct {
	// Concurrency bounds how many tasks of one stage run at once. Must be >= 1.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`

	// Timeout is the global timeout for the run. Must be > 0.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// DryRun prints the plan (or the release steps) without executing them.
	DryRun bool `mapstructure:"-" yaml:"-"`

	Verbose   bool   `mapstructure:"verbose" yaml:"verbose"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// Debounce is the quiet period watch mode waits for before rebuilding.
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

func New() *Config {
	return &Config{
		Project: Project{
			Root:    ".",
			SrcDir:  "src",
			DistDir: "dist",
			TempDir: ".elemforge",
		},
		Build: Build{
			Namespace:    "window.Elements",
			ModuleExt:    ".js",
			ScriptExt:    ".script.js",
			ModuleTarget: "es2017",
			ScriptTarget: "es2015",
			Minify:       true,
		},
		Inject: Inject{
			TemplateMarker: "[[inject:template]]",
			StyleMarker:    "[[inject:style]]",
			Sass:           "sass",
		},
		Lint: Lint{
			ESLint:    "eslint",
			Stylelint: "stylelint",
		},
		Docs: Docs{
			Entry:  "docs/index.ts",
			OutDir: "docs/dist",
		},
		Release: Release{
			Bump:      "patch",
			Preid:     "rc",
			Branch:    "main",
			Remote:    "origin",
			TagPrefix: "v",
			NPMTag:    "latest",
		},
		Output: Output{
			ConsoleFormat: "text",
		},
		Runtime: Runtime{
			Concurrency: 4,
			Timeout:     15 * time.Minute,
			LogLevel:    "info",
			LogFormat:   "text",
			Debounce:    300 * time.Millisecond,
		},
	}
}

func (c *Config) Validate() error {
	c.Tasks.Set = splitCommaList(c.Tasks.Set)
	c.Tasks.AllowFailures = splitCommaList(c.Tasks.AllowFailures)
	c.Output.ConsoleFilterStatus = splitCommaList(c.Output.ConsoleFilterStatus)
	c.Output.Emit = splitCommaList(c.Output.Emit)

	// Project
	c.Project.Name = strings.TrimSpace(c.Project.Name)
	if c.Project.Name == "" {
		return errors.New("project name is required (set project.name or --name)")
	}
	if strings.ContainsAny(c.Project.Name, `/\ `) {
		return fmt.Errorf("invalid project name %q: must be a single path segment", c.Project.Name)
	}
	if c.Project.Root == "" {
		c.Project.Root = "."
	}
	for _, dir := range []*string{&c.Project.SrcDir, &c.Project.DistDir, &c.Project.TempDir} {
		*dir = strings.TrimSpace(*dir)
	}
	if c.Project.DistDir == "" {
		return errors.New("project.dist_dir must not be empty")
	}
	if c.Project.TempDir == "" {
		return errors.New("project.temp_dir must not be empty")
	}
	if c.Project.Entry == "" {
		c.Project.Entry = filepath.Join(c.Project.SrcDir, c.Project.Name+".ts")
	}
	if c.Inject.TemplateFile == "" {
		c.Inject.TemplateFile = filepath.Join(c.Project.SrcDir, c.Project.Name+".html")
	}
	if c.Inject.StyleFile == "" {
		c.Inject.StyleFile = filepath.Join(c.Project.SrcDir, c.Project.Name+".scss")
	}

	// Build
	c.Build.Namespace = strings.TrimSpace(c.Build.Namespace)
	if c.Build.Namespace == "" {
		return errors.New("build.namespace must not be empty")
	}
	if !strings.HasPrefix(c.Build.ModuleExt, ".") || !strings.HasPrefix(c.Build.ScriptExt, ".") {
		return fmt.Errorf("build extensions must start with '.': module_ext=%q script_ext=%q", c.Build.ModuleExt, c.Build.ScriptExt)
	}
	if c.Build.ModuleExt == c.Build.ScriptExt {
		return fmt.Errorf("build.module_ext and build.script_ext must differ (both %q)", c.Build.ModuleExt)
	}
	if c.Inject.TemplateMarker == "" || c.Inject.StyleMarker == "" {
		return errors.New("inject markers must not be empty")
	}

	// Release
	c.Release.Bump = strings.TrimSpace(c.Release.Bump)
	if c.Release.Bump == "" {
		c.Release.Bump = "patch"
	}
	if c.Release.Repository != "" {
		owner, repo, ok := strings.Cut(c.Release.Repository, "/")
		if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
			return fmt.Errorf("invalid release.repository %q: expected OWNER/REPO", c.Release.Repository)
		}
	}

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		return errors.New("--console-format must be one of: text, json, ndjson")
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}
	for i, emit := range c.Output.Emit {
		v := normalizeEnumValue(emit)
		if v != "json" && v != "ndjson" {
			return fmt.Errorf("unsupported --emit value: %s (must be one of: json, ndjson)", emit)
		}
		c.Output.Emit[i] = v
	}
	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := filepath.Ext(strings.TrimSuffix(strings.ToLower(c.Output.Out), ".gz"))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson", ".jsonl":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
		}
	}

	// Runtime validation
	if c.Runtime.Concurrency <= 0 {
		return errors.New("--concurrency must be >= 1")
	}
	if c.Runtime.Timeout <= 0 {
		return errors.New("--timeout must be > 0")
	}
	if c.Runtime.Debounce < 0 {
		return errors.New("--debounce must be >= 0")
	}

	if len(c.Tasks.Set) > 0 {
		if _, err := ParseTaskOptionAssignments(c.Tasks.Set); err != nil {
			return err
		}
	}
	return nil
}

// Path resolves p against the project root unless it is absolute.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Project.Root, p)
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ParseTaskOptionAssignments parses values of the form "taskID.option=value".
//
// Entries may be provided via repeated flags and/or comma-delimited lists.
// Only syntax is validated here; task IDs and option names are checked by
// the engine. Empty values are allowed ("task.option=").
func ParseTaskOptionAssignments(values []string) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string)
	for _, raw := range splitCommaList(values) {
		left, value, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set entry %q: expected task.option=value", raw)
		}
		taskID, opt, ok := strings.Cut(strings.TrimSpace(left), ".")
		if !ok {
			return nil, fmt.Errorf("invalid --set entry %q: expected task.option=value", raw)
		}
		taskID = strings.TrimSpace(taskID)
		opt = strings.TrimSpace(opt)
		if taskID == "" || opt == "" {
			return nil, fmt.Errorf("invalid --set entry %q: expected non-empty task and option", raw)
		}
		if _, ok := out[taskID]; !ok {
			out[taskID] = make(map[string]string)
		}
		out[taskID][opt] = strings.TrimSpace(value)
	}
	return out, nil
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
