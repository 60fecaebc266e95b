package tasks

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

var (
	registry = make(map[string]Task)
	mu       sync.RWMutex
)

func Register(t Task) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[t.ID()]; exists {
		panic(fmt.Sprintf("task %s already registered", t.ID()))
	}
	// Wrap the task with AllowFailureWrapper to provide allow.failure support
	registry[t.ID()] = &AllowFailureWrapper{Task: t}
}

func List() []Task {
	mu.RLock()
	defer mu.RUnlock()
	return listLocked()
}

func listLocked() []Task {
	tasks := make([]Task, 0, len(registry))
	for _, t := range registry {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].ID() < tasks[j].ID()
	})
	return tasks
}

func Lookup(id string) (Task, bool) {
	mu.RLock()
	defer mu.RUnlock()
	t, ok := registry[id]
	return t, ok
}

// Resolve selects tasks by a comma-separated list of IDs or path.Match
// patterns ("lint-*"). An empty selector selects every task. Each task is
// returned once, in selector order; pattern matches are sorted by ID.
func Resolve(selector string) ([]Task, error) {
	mu.RLock()
	defer mu.RUnlock()

	if strings.TrimSpace(selector) == "" {
		return listLocked(), nil
	}

	seen := make(map[string]bool)
	var selected []Task
	add := func(t Task) {
		if !seen[t.ID()] {
			seen[t.ID()] = true
			selected = append(selected, t)
		}
	}

	for _, id := range strings.Split(selector, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if t, ok := registry[id]; ok {
			add(t)
			continue
		}
		if !strings.ContainsAny(id, "*?[") {
			return nil, fmt.Errorf("task not found: %s", id)
		}
		matched := 0
		for _, t := range listLocked() {
			ok, err := path.Match(id, t.ID())
			if err != nil {
				return nil, fmt.Errorf("invalid task pattern %q: %w", id, err)
			}
			if ok {
				matched++
				add(t)
			}
		}
		if matched == 0 {
			return nil, fmt.Errorf("no task matches pattern: %s", id)
		}
	}
	return selected, nil
}
