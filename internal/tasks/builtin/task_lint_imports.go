package builtin

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"elemforge/internal/esm"
	"elemforge/internal/tasks"
)

// LintImportsTask checks that the entry's imports can be served from the
// namespace object: named imports only, each following the prefix rule.
type LintImportsTask struct {
	prefix string
}

func (t *LintImportsTask) ID() string { return IDLintImports }

func (t *LintImportsTask) Title() string { return "Namespace-Compatible Imports" }

func (t *LintImportsTask) Description() string {
	return "Verifies the entry only uses imports the global-script build can rewrite:\n" +
		"named imports whose names start with the import prefix. Default and namespace\n" +
		"imports are reported. Unlike build-script, every violation is listed.\n\n" +
		"Options:\n" +
		"- prefix: required import name prefix (defaults to build.import_prefix)"
}

func (t *LintImportsTask) Dependencies() []string { return nil }

func (t *LintImportsTask) Options() []tasks.Option {
	return []tasks.Option{
		{Name: "prefix", Description: "Required prefix of imported names (case-insensitive)."},
	}
}

func (t *LintImportsTask) Configure(opts map[string]string) error {
	t.prefix = strings.TrimSpace(opts["prefix"])
	return nil
}

func (t *LintImportsTask) Run(ctx context.Context, env *tasks.Env) (tasks.Result, error) {
	entry := env.Path(env.Config.Project.Entry)
	src, err := os.ReadFile(entry)
	if err != nil {
		return tasks.Result{}, fmt.Errorf("read entry: %w", err)
	}

	stripped := api.Transform(string(src), api.TransformOptions{
		Loader:   api.LoaderTS,
		Target:   api.ESNext,
		LogLevel: api.LogLevelSilent,
	})
	if len(stripped.Errors) > 0 {
		return tasks.FailResult(t.ID(), "entry does not compile: "+stripped.Errors[0].Text), nil
	}
	prog, err := esm.Parse(string(stripped.Code))
	if err != nil {
		return tasks.FailResult(t.ID(), err.Error()), nil
	}

	prefix := t.prefix
	if prefix == "" {
		prefix = env.Config.Build.ImportPrefix
	}
	var rule func(string) error
	if prefix != "" {
		rule = esm.PrefixRule(prefix)
	}

	imports := esm.Imports(prog)
	var problems []string
	for _, imp := range imports {
		switch imp.Kind {
		case esm.ImportDefault:
			problems = append(problems, fmt.Sprintf("default import %s from %q", imp.Local, imp.Module))
		case esm.ImportNamespace:
			problems = append(problems, fmt.Sprintf("namespace import * as %s from %q", imp.Local, imp.Module))
		case esm.ImportNamed:
			if rule != nil {
				if err := rule(imp.Imported); err != nil {
					problems = append(problems, fmt.Sprintf("import %s from %q: %v", imp.Imported, imp.Module, err))
				}
			}
		}
	}

	if len(problems) > 0 {
		return tasks.FailResultWithMetadata(t.ID(),
			fmt.Sprintf("%d import(s) cannot be served from the namespace", len(problems)),
			map[string]any{"problems": problems}), nil
	}
	return tasks.PassResultWithMessage(t.ID(), fmt.Sprintf("%d import(s) checked", len(imports))), nil
}

func init() {
	tasks.Register(&LintImportsTask{})
}
