package builtin

import (
	"context"

	"elemforge/internal/compile"
	"elemforge/internal/tasks"
)

type BuildModuleTask struct{}

func (t *BuildModuleTask) ID() string { return IDBuildModule }

func (t *BuildModuleTask) Title() string { return "Build ES Module" }

func (t *BuildModuleTask) Description() string {
	return "Injects the component template and stylesheet into the entry and bundles it\n" +
		"as an ES module at <dist_dir>/<name><module_ext>. Package imports stay external."
}

func (t *BuildModuleTask) Dependencies() []string { return []string{IDClean} }

func (t *BuildModuleTask) Run(ctx context.Context, env *tasks.Env) (tasks.Result, error) {
	opts, err := compile.OptionsFromConfig(env.Config)
	if err != nil {
		return tasks.Result{}, err
	}
	source, err := injectedSource(ctx, env)
	if err != nil {
		return tasks.Result{}, err
	}
	res, err := compile.BuildModule(ctx, source, opts)
	if err != nil {
		return sourceFailure(t.ID(), err)
	}
	return buildResult(t.ID(), res), nil
}

func init() {
	tasks.Register(&BuildModuleTask{})
}
