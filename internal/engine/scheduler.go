package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"elemforge/internal/settle"
	"elemforge/internal/tasks"
)

// ExecutionKind tells stage boundaries apart from task results.
type ExecutionKind int

const (
	StageStarted ExecutionKind = iota
	TaskFinished
	StageFinished
)

// TaskExecution is one record streamed by the scheduler.
type TaskExecution struct {
	Kind ExecutionKind
	// Stage is 1-based.
	Stage int
	// Tasks is the stage size; set on stage boundaries.
	Tasks int
	// Result is set for TaskFinished.
	Result tasks.Result
	// Err is the error the task returned, if any. Result already carries it
	// as an ERROR.
	Err error
}

type Scheduler struct {
	env         *tasks.Env
	concurrency int
	verbose     bool
}

func NewScheduler(env *tasks.Env, concurrency int) (*Scheduler, error) {
	if env == nil {
		return nil, errors.New("task environment is nil")
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be >= 1, got %d", concurrency)
	}
	verbose := env.Config != nil && env.Config.Runtime.Verbose
	return &Scheduler{env: env, concurrency: concurrency, verbose: verbose}, nil
}

// Execute runs the plan stage by stage and streams what happens.
//
// Channel semantics:
//   - In the normal (non-canceled) case, exactly one TaskFinished record is
//     sent per planned task, bracketed by its stage's StageStarted and
//     StageFinished records.
//   - A task whose dependency did not PASS is not run; it is reported SKIPPED.
//   - On context cancellation, the scheduler stops starting tasks and sends
//     ctx.Err() on the error channel; it may emit fewer records.
//   - The results channel and error channel are both closed reliably.
//     Callers must drain the results channel.
func (s *Scheduler) Execute(ctx context.Context, plan *Plan) (<-chan TaskExecution, <-chan error) {
	resultsCh := make(chan TaskExecution)
	errCh := make(chan error, 1)

	go func() {
		defer close(resultsCh)
		defer close(errCh)

		trySendErr := func(err error) {
			if err == nil {
				return
			}
			select {
			case errCh <- err:
			default:
			}
		}

		if ctx == nil {
			trySendErr(errors.New("context is nil"))
			return
		}
		if plan == nil {
			trySendErr(errors.New("plan is nil"))
			return
		}
		if s == nil {
			trySendErr(errors.New("scheduler is nil"))
			return
		}

		send := func(ex TaskExecution) bool {
			select {
			case resultsCh <- ex:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var mu sync.Mutex
		statuses := make(map[string]tasks.Status)

		sem := make(chan struct{}, s.concurrency)

		for i, stage := range plan.Stages {
			if ctx.Err() != nil {
				break
			}
			stageNo := i + 1
			if !send(TaskExecution{Kind: StageStarted, Stage: stageNo, Tasks: len(stage)}) {
				break
			}

			var wg sync.WaitGroup
		stageLoop:
			for _, t := range stage {
				mu.Lock()
				blocked, blockedStatus := blockingDependency(t, statuses)
				mu.Unlock()
				if blocked != "" {
					res := tasks.SkippedResult(t.ID(), fmt.Sprintf("dependency %s did not pass (%s)", blocked, blockedStatus))
					mu.Lock()
					statuses[t.ID()] = res.Status
					mu.Unlock()
					if !send(TaskExecution{Kind: TaskFinished, Stage: stageNo, Result: res}) {
						break stageLoop
					}
					continue
				}

				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					break stageLoop
				}

				wg.Add(1)
				go func(t tasks.Task) {
					defer wg.Done()
					defer func() { <-sem }()

					res, err := s.runTask(ctx, t)
					mu.Lock()
					statuses[t.ID()] = res.Status
					mu.Unlock()
					// A task that ran is always reported, even when the run
					// was canceled meanwhile.
					resultsCh <- TaskExecution{Kind: TaskFinished, Stage: stageNo, Result: res, Err: err}
				}(t)
			}
			wg.Wait()

			if ctx.Err() != nil {
				break
			}
			if !send(TaskExecution{Kind: StageFinished, Stage: stageNo, Tasks: len(stage)}) {
				break
			}
		}

		trySendErr(ctx.Err())
	}()

	return resultsCh, errCh
}

// runTask runs t, turning returned errors and panics into ERROR results.
func (s *Scheduler) runTask(ctx context.Context, t tasks.Task) (res tasks.Result, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &settle.PanicError{Value: r, Stack: debug.Stack()}
			res = tasks.ErrorResult(t.ID(), presentTaskError(err, s.verbose))
		}
		res.Duration = time.Since(start)
	}()

	res, err = t.Run(ctx, s.env)
	if err != nil {
		return tasks.ErrorResult(t.ID(), presentTaskError(err, s.verbose)), err
	}
	// Tasks usually leave the ID to the engine.
	if res.TaskID == "" {
		res.TaskID = t.ID()
	}
	if res.Status == "" {
		res.Status = tasks.StatusPass
	}
	return res, nil
}

// blockingDependency returns the first dependency of t that did not pass.
func blockingDependency(t tasks.Task, statuses map[string]tasks.Status) (string, tasks.Status) {
	for _, dep := range t.Dependencies() {
		if st, ok := statuses[dep]; ok && st != tasks.StatusPass {
			return dep, st
		}
	}
	return "", ""
}
