package builtin

import (
	"context"
	"strings"

	"elemforge/internal/compile"
	"elemforge/internal/tasks"
)

// BuildScriptTask builds the global-script variant. Imports are read from and
// exports written to the configured namespace object.
type BuildScriptTask struct {
	namespace string
}

func (t *BuildScriptTask) ID() string { return IDBuildScript }

func (t *BuildScriptTask) Title() string { return "Build Global Script" }

func (t *BuildScriptTask) Description() string {
	return "Builds <dist_dir>/<name><script_ext>: the injected entry with every import replaced\n" +
		"by a read of the namespace object and every export by a write to it, bundled as a\n" +
		"minified IIFE.\n\n" +
		"Options:\n" +
		"- namespace: override build.namespace for this run\n\n" +
		"Examples:\n" +
		"  elemforge build --tasks build-script --set build-script.namespace=window.MyElements"
}

func (t *BuildScriptTask) Dependencies() []string { return []string{IDClean} }

func (t *BuildScriptTask) Options() []tasks.Option {
	return []tasks.Option{
		{Name: "namespace", Description: "Namespace object the script reads and writes (defaults to build.namespace)."},
	}
}

func (t *BuildScriptTask) Configure(opts map[string]string) error {
	t.namespace = strings.TrimSpace(opts["namespace"])
	return nil
}

func (t *BuildScriptTask) Run(ctx context.Context, env *tasks.Env) (tasks.Result, error) {
	opts, err := compile.OptionsFromConfig(env.Config)
	if err != nil {
		return tasks.Result{}, err
	}
	if t.namespace != "" {
		opts.Namespace = t.namespace
	}
	source, err := injectedSource(ctx, env)
	if err != nil {
		return tasks.Result{}, err
	}
	res, err := compile.BuildScript(ctx, source, opts)
	if err != nil {
		return sourceFailure(t.ID(), err)
	}
	out := buildResult(t.ID(), res)
	out.Metadata["namespace"] = opts.Namespace
	return out, nil
}

func init() {
	tasks.Register(&BuildScriptTask{})
}
