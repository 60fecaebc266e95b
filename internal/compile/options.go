package compile

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"elemforge/internal/config"
)

// Options holds the resolved inputs of a build. Paths are absolute.
type Options struct {
	Name  string
	Root  string
	Entry string

	DistDir string
	TempDir string

	ModuleExt string
	ScriptExt string

	ModuleTarget string
	ScriptTarget string

	Namespace    string
	ImportPrefix string

	Minify    bool
	Sourcemap bool

	DocsEntry  string
	DocsOutDir string
}

// OptionsFromConfig resolves cfg against its project root.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	root, err := filepath.Abs(cfg.Project.Root)
	if err != nil {
		return Options{}, fmt.Errorf("resolve project root: %w", err)
	}
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(root, p)
	}
	return Options{
		Name:         cfg.Project.Name,
		Root:         root,
		Entry:        abs(cfg.Project.Entry),
		DistDir:      abs(cfg.Project.DistDir),
		TempDir:      abs(cfg.Project.TempDir),
		ModuleExt:    cfg.Build.ModuleExt,
		ScriptExt:    cfg.Build.ScriptExt,
		ModuleTarget: cfg.Build.ModuleTarget,
		ScriptTarget: cfg.Build.ScriptTarget,
		Namespace:    cfg.Build.Namespace,
		ImportPrefix: cfg.Build.ImportPrefix,
		Minify:       cfg.Build.Minify,
		Sourcemap:    cfg.Build.Sourcemap,
		DocsEntry:    abs(cfg.Docs.Entry),
		DocsOutDir:   abs(cfg.Docs.OutDir),
	}, nil
}

func (o Options) ModuleOutfile() string {
	return filepath.Join(o.DistDir, o.Name+o.ModuleExt)
}

func (o Options) ScriptOutfile() string {
	return filepath.Join(o.DistDir, o.Name+o.ScriptExt)
}

// ScriptTempfile is where the rewritten, not yet minified script is written.
func (o Options) ScriptTempfile() string {
	return filepath.Join(o.TempDir, o.Name+o.ScriptExt)
}

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es6":    api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

func parseTarget(s string) (api.Target, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return api.ESNext, nil
	}
	t, ok := targets[s]
	if !ok {
		return 0, fmt.Errorf("unsupported build target %q", s)
	}
	return t, nil
}

func sourcemap(enabled bool) api.SourceMap {
	if enabled {
		return api.SourceMapLinked
	}
	return api.SourceMapNone
}
