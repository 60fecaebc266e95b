package settle

// Outcome is the settled state of a single operation: either a value or an error.
type Outcome[T any] struct {
	value T
	err   error
}

// Value returns a successful Outcome holding v.
func Value[T any](v T) Outcome[T] {
	return Outcome[T]{value: v}
}

// Failure returns a failed Outcome. It panics if err is nil.
func Failure[T any](err error) Outcome[T] {
	if err == nil {
		panic("settle.Failure: err must not be nil")
	}
	return Outcome[T]{err: err}
}

// Ok reports whether the operation succeeded.
func (o Outcome[T]) Ok() bool {
	return o.err == nil
}

// Get returns the value and error. The value is the zero T on failure.
func (o Outcome[T]) Get() (T, error) {
	return o.value, o.err
}

// Err returns the failure, or nil.
func (o Outcome[T]) Err() error {
	return o.err
}
