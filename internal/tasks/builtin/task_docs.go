package builtin

import (
	"context"
	"os"

	"elemforge/internal/compile"
	"elemforge/internal/tasks"
)

type DocsTask struct{}

func (t *DocsTask) ID() string { return IDDocs }

func (t *DocsTask) Title() string { return "Documentation Site" }

func (t *DocsTask) Description() string {
	return "Bundles docs.entry into docs.out_dir and copies the index.html next to the entry.\n" +
		"Projects without a docs entry are SKIPPED."
}

func (t *DocsTask) Dependencies() []string { return []string{IDBuildModule} }

func (t *DocsTask) Run(ctx context.Context, env *tasks.Env) (tasks.Result, error) {
	opts, err := compile.OptionsFromConfig(env.Config)
	if err != nil {
		return tasks.Result{}, err
	}
	if _, err := os.Stat(opts.DocsEntry); os.IsNotExist(err) {
		return tasks.SkippedResult(t.ID(), "no docs entry at "+env.Config.Docs.Entry), nil
	}
	res, err := compile.BuildDocs(ctx, opts)
	if err != nil {
		return sourceFailure(t.ID(), err)
	}
	return buildResult(t.ID(), res), nil
}

func init() {
	tasks.Register(&DocsTask{})
}
