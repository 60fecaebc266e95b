package esm

import "fmt"

// ProcessingError reports an import or export form the rewriter cannot turn
// into namespace reads/writes.
type ProcessingError struct {
	// Kind is "import" or "export".
	Kind string
	// Name is the offending import/export name as written in the source.
	Name   string
	Reason string
}

func (e *ProcessingError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("unsupported %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("unsupported %s %q: %s", e.Kind, e.Name, e.Reason)
}

func importError(name, reason string) error {
	return &ProcessingError{Kind: "import", Name: name, Reason: reason}
}

func exportError(name, reason string) error {
	return &ProcessingError{Kind: "export", Name: name, Reason: reason}
}
