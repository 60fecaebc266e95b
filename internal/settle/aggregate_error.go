package settle

import (
	"fmt"
	"strings"
)

// AggregateError reports every failed operation of a settled batch.
//
// It is built once, when a batch is found to contain a failure, and never
// changes afterwards: Errors returns a copy of the owned slice.
type AggregateError struct {
	total int
	errs  []error
}

func newAggregateError(total int, errs []error) *AggregateError {
	owned := make([]error, len(errs))
	copy(owned, errs)
	return &AggregateError{total: total, errs: owned}
}

// Total is the number of operations that were attempted.
func (e *AggregateError) Total() int {
	return e.total
}

// Failed is the number of operations that returned an error.
func (e *AggregateError) Failed() int {
	return len(e.errs)
}

// Errors returns the failures in the order of the operations that produced them.
func (e *AggregateError) Errors() []error {
	out := make([]error, len(e.errs))
	copy(out, e.errs)
	return out
}

// Unwrap exposes the constituent errors to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Errors()
}

func (e *AggregateError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d operations failed:", len(e.errs), e.total)
	for i, err := range e.errs {
		text := renderError(err)
		b.WriteString("\n")
		fmt.Fprintf(&b, "  [%d] ", i+1)
		b.WriteString(indent(text, "      "))
	}
	return b.String()
}

// renderError prefers the verbose %+v form, which carries a stack trace for
// errors that record one, and falls back to the plain message otherwise.
func renderError(err error) string {
	if err == nil {
		return "<nil>"
	}
	if _, ok := err.(fmt.Formatter); ok {
		return strings.TrimRight(fmt.Sprintf("%+v", err), "\n")
	}
	return strings.TrimRight(err.Error(), "\n")
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i := 1; i < len(lines); i++ {
		if lines[i] == "" {
			continue
		}
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}
