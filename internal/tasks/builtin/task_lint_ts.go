package builtin

import (
	"context"
	"fmt"

	"elemforge/internal/tasks"
	"elemforge/internal/toolexec"
)

type LintTSTask struct {
	fix bool
}

func (t *LintTSTask) ID() string { return IDLintTS }

func (t *LintTSTask) Title() string { return "ESLint" }

func (t *LintTSTask) Description() string {
	return "Runs eslint over the source directory (or lint.eslint_args when set).\n" +
		"Reported problems FAIL the task; a missing eslint executable SKIPS it.\n\n" +
		"Options:\n" +
		"- fix: pass --fix to eslint (default false)\n\n" +
		"Examples:\n" +
		"  elemforge lint --tasks lint-ts --set lint-ts.fix=true"
}

func (t *LintTSTask) Dependencies() []string { return nil }

func (t *LintTSTask) Options() []tasks.Option {
	return []tasks.Option{
		{Name: "fix", Description: "Let eslint fix problems in place.", Default: "false"},
	}
}

func (t *LintTSTask) Configure(opts map[string]string) error {
	v, err := parseBoolOption("fix", opts["fix"], false)
	t.fix = v
	return err
}

func (t *LintTSTask) Run(ctx context.Context, env *tasks.Env) (tasks.Result, error) {
	cfg := env.Config
	args := append([]string(nil), cfg.Lint.ESLintArgs...)
	if len(args) == 0 {
		args = []string{cfg.Project.SrcDir}
	}
	if t.fix {
		args = append(args, "--fix")
	}
	res, err := env.Runner.Run(ctx, toolexec.Command{
		Name: cfg.Lint.ESLint,
		Args: args,
		Dir:  cfg.Project.Root,
	})
	if err != nil {
		return toolFailure(t.ID(), cfg.Lint.ESLint, res, err)
	}
	return tasks.PassResultWithMessage(t.ID(), fmt.Sprintf("%s: no problems", cfg.Lint.ESLint)), nil
}

func init() {
	tasks.Register(&LintTSTask{})
}
