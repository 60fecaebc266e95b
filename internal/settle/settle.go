// Package settle runs batches of independent operations to completion and
// reports every failure at once instead of aborting on the first one.
package settle

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// Op is one unit of work in a batch.
type Op[T any] func(ctx context.Context) (T, error)

// Settle runs every op concurrently and waits for all of them. The returned
// outcomes are in input order, independent of completion order.
func Settle[T any](ctx context.Context, ops ...Op[T]) []Outcome[T] {
	return SettleWithLimit(ctx, 0, ops...)
}

// SettleWithLimit is Settle with at most limit ops in flight. A limit <= 0
// means unlimited.
//
// No op is canceled because a sibling failed; ctx is handed to every op
// unchanged and it is up to the op to observe cancellation.
func SettleWithLimit[T any](ctx context.Context, limit int, ops ...Op[T]) []Outcome[T] {
	outcomes := make([]Outcome[T], len(ops))
	if len(ops) == 0 {
		return outcomes
	}

	// A plain Group (not WithContext): member functions never return an error,
	// so Wait only synchronizes.
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, op := range ops {
		g.Go(func() error {
			outcomes[i] = run(ctx, op)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func run[T any](ctx context.Context, op Op[T]) (out Outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			out = Failure[T](&PanicError{Value: r, Stack: debug.Stack()})
		}
	}()
	if op == nil {
		return Failure[T](fmt.Errorf("settle: nil operation"))
	}
	v, err := op(ctx)
	if err != nil {
		return Failure[T](err)
	}
	return Value(v)
}

// All settles ops and returns their values in input order, or an
// *AggregateError listing every failure when at least one op failed.
func All[T any](ctx context.Context, ops ...Op[T]) ([]T, error) {
	return Collect(Settle(ctx, ops...))
}

// AllWithLimit is All with a concurrency cap.
func AllWithLimit[T any](ctx context.Context, limit int, ops ...Op[T]) ([]T, error) {
	return Collect(SettleWithLimit(ctx, limit, ops...))
}

// Collect folds settled outcomes into values or an aggregate error. Values of
// successful outcomes are discarded when any outcome failed.
func Collect[T any](outcomes []Outcome[T]) ([]T, error) {
	var errs []error
	for _, o := range outcomes {
		if !o.Ok() {
			errs = append(errs, o.Err())
		}
	}
	if len(errs) > 0 {
		return nil, newAggregateError(len(outcomes), errs)
	}

	values := make([]T, 0, len(outcomes))
	for _, o := range outcomes {
		v, _ := o.Get()
		values = append(values, v)
	}
	return values, nil
}

// PanicError is the failure recorded for an op that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("operation panicked: %v", e.Value)
}

func (e *PanicError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = io.WriteString(s, e.Error())
			_, _ = io.WriteString(s, "\n")
			_, _ = s.Write(e.Stack)
			return
		}
		fallthrough
	case 's':
		_, _ = io.WriteString(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
