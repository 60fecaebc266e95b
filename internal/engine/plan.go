package engine

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"elemforge/internal/tasks"
)

// LookupFunc resolves a task ID to a task.
type LookupFunc func(id string) (tasks.Task, bool)

// Plan is the set of tasks to run, grouped into stages. Every task's
// dependencies are in earlier stages; tasks within a stage are independent
// and sorted by ID.
type Plan struct {
	Stages [][]tasks.Task

	// Selected are the tasks that were asked for, before dependencies were
	// added.
	Selected []string
}

// NewPlan closes selected over its dependencies and orders the result into
// stages.
func NewPlan(selected []tasks.Task, lookup LookupFunc) (*Plan, error) {
	if lookup == nil {
		return nil, errors.New("task lookup is nil")
	}

	all := make(map[string]tasks.Task)
	p := &Plan{}

	var visit func(t tasks.Task) error
	visit = func(t tasks.Task) error {
		if _, ok := all[t.ID()]; ok {
			return nil
		}
		all[t.ID()] = t
		for _, dep := range t.Dependencies() {
			dt, ok := lookup(dep)
			if !ok {
				return fmt.Errorf("task %q depends on unknown task %q", t.ID(), dep)
			}
			if err := visit(dt); err != nil {
				return err
			}
		}
		return nil
	}
	for _, t := range selected {
		if t == nil {
			return nil, errors.New("nil task in selection")
		}
		p.Selected = append(p.Selected, t.ID())
		if err := visit(t); err != nil {
			return nil, err
		}
	}

	// Kahn's algorithm, one stage per round.
	placed := make(map[string]bool, len(all))
	for len(placed) < len(all) {
		var stage []tasks.Task
		for id, t := range all {
			if placed[id] {
				continue
			}
			ready := true
			for _, dep := range t.Dependencies() {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				stage = append(stage, t)
			}
		}
		if len(stage) == 0 {
			var stuck []string
			for id := range all {
				if !placed[id] {
					stuck = append(stuck, id)
				}
			}
			sort.Strings(stuck)
			return nil, fmt.Errorf("dependency cycle among tasks: %s", strings.Join(stuck, ", "))
		}
		sort.Slice(stage, func(i, j int) bool { return stage[i].ID() < stage[j].ID() })
		for _, t := range stage {
			placed[t.ID()] = true
		}
		p.Stages = append(p.Stages, stage)
	}

	return p, nil
}

// Len returns the number of tasks in the plan.
func (p *Plan) Len() int {
	n := 0
	for _, s := range p.Stages {
		n += len(s)
	}
	return n
}

// IDs returns every task ID in execution order.
func (p *Plan) IDs() []string {
	ids := make([]string, 0, p.Len())
	for _, s := range p.Stages {
		for _, t := range s {
			ids = append(ids, t.ID())
		}
	}
	return ids
}

// Print writes the plan in a human-readable form.
func (p *Plan) Print(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Execution plan (%d tasks, %d stages):\n", p.Len(), len(p.Stages)); err != nil {
		return err
	}
	for i, stage := range p.Stages {
		ids := make([]string, 0, len(stage))
		for _, t := range stage {
			ids = append(ids, t.ID())
		}
		if _, err := fmt.Fprintf(w, "  stage %d: %s\n", i+1, strings.Join(ids, ", ")); err != nil {
			return err
		}
	}
	return nil
}
