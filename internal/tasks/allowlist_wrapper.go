package tasks

import (
	"context"
)

// AllowFailureWrapper wraps a Task to provide allowed-failure support.
type AllowFailureWrapper struct {
	Task
	allow AllowFailure
}

// Unwrap returns the registered task.
func (w *AllowFailureWrapper) Unwrap() Task {
	return w.Task
}

// Run calls the inner task's Run and then applies the allowed-failure policy.
func (w *AllowFailureWrapper) Run(ctx context.Context, env *Env) (Result, error) {
	result, err := w.Task.Run(ctx, env)
	if err != nil {
		return result, err
	}
	return w.allow.CheckResult(result), nil
}

// Options returns the combined options of the policy and the inner task (if configurable).
func (w *AllowFailureWrapper) Options() []Option {
	opts := w.allow.Options()
	if ct, ok := w.Task.(ConfigurableTask); ok {
		opts = append(opts, ct.Options()...)
	}
	return opts
}

// Configure configures the policy and the inner task (if configurable).
func (w *AllowFailureWrapper) Configure(opts map[string]string) error {
	if err := w.allow.Configure(opts); err != nil {
		return err
	}
	if ct, ok := w.Task.(ConfigurableTask); ok {
		return ct.Configure(opts)
	}
	return nil
}
