package builtin

import (
	"context"
	"fmt"
	"os"

	"elemforge/internal/tasks"
	"elemforge/internal/toolexec"
)

type LintSassTask struct{}

func (t *LintSassTask) ID() string { return IDLintSass }

func (t *LintSassTask) Title() string { return "Stylelint" }

func (t *LintSassTask) Description() string {
	return "Runs stylelint over the component stylesheet (inject.style_file).\n" +
		"Components without a stylesheet, or without stylelint installed, are SKIPPED."
}

func (t *LintSassTask) Dependencies() []string { return nil }

func (t *LintSassTask) Run(ctx context.Context, env *tasks.Env) (tasks.Result, error) {
	cfg := env.Config
	if _, err := os.Stat(env.Path(cfg.Inject.StyleFile)); os.IsNotExist(err) {
		return tasks.SkippedResult(t.ID(), "no stylesheet at "+cfg.Inject.StyleFile), nil
	}
	res, err := env.Runner.Run(ctx, toolexec.Command{
		Name: cfg.Lint.Stylelint,
		Args: []string{cfg.Inject.StyleFile},
		Dir:  cfg.Project.Root,
	})
	if err != nil {
		return toolFailure(t.ID(), cfg.Lint.Stylelint, res, err)
	}
	return tasks.PassResultWithMessage(t.ID(), fmt.Sprintf("%s: no problems", cfg.Lint.Stylelint)), nil
}

func init() {
	tasks.Register(&LintSassTask{})
}
