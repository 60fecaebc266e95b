package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"elemforge/internal/tasks"
)

type CleanTask struct {
	temp bool
}

func (t *CleanTask) ID() string { return IDClean }

func (t *CleanTask) Title() string { return "Clean Output Directories" }

func (t *CleanTask) Description() string {
	return "Removes the dist directory and the temp directory before a build.\n\n" +
		"Options:\n" +
		"- temp: also remove the temp directory (default true)"
}

func (t *CleanTask) Dependencies() []string { return nil }

func (t *CleanTask) Options() []tasks.Option {
	return []tasks.Option{
		{Name: "temp", Description: "Also remove the temp directory.", Default: "true"},
	}
}

func (t *CleanTask) Configure(opts map[string]string) error {
	v, err := parseBoolOption("temp", opts["temp"], true)
	t.temp = v
	return err
}

func (t *CleanTask) Run(ctx context.Context, env *tasks.Env) (tasks.Result, error) {
	root, err := filepath.Abs(env.Config.Project.Root)
	if err != nil {
		return tasks.Result{}, err
	}
	dirs := []string{env.Config.Project.DistDir}
	if t.temp {
		dirs = append(dirs, env.Config.Project.TempDir)
	}

	var removed []string
	for _, d := range dirs {
		abs, err := filepath.Abs(env.Path(d))
		if err != nil {
			return tasks.Result{}, err
		}
		if abs == root || !isWithin(root, abs) {
			return tasks.ErrorResult(t.ID(), fmt.Sprintf("refusing to remove %s: not inside the project root", d)), nil
		}
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(abs); err != nil {
			return tasks.Result{}, fmt.Errorf("remove %s: %w", d, err)
		}
		removed = append(removed, d)
	}
	if len(removed) == 0 {
		return tasks.PassResultWithMessage(t.ID(), "nothing to remove"), nil
	}
	res := tasks.PassResultWithMessage(t.ID(), fmt.Sprintf("removed %d director(ies)", len(removed)))
	res.Metadata = map[string]any{"removed": removed}
	return res, nil
}

func isWithin(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !filepath.IsAbs(rel) && !startsWithDotDot(rel)
}

func startsWithDotDot(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}

func init() {
	tasks.Register(&CleanTask{temp: true})
}
