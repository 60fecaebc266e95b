package output

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// EmitSink writes --emit output to a stream, usually stdout.
//
//   - json: one array of task results, written on Close
//   - ndjson: one Event per line, flushed as it happens
type EmitSink struct {
	mu sync.Mutex
	sw *structuredWriter
}

func NewEmitSink(w io.Writer, format string) (*EmitSink, error) {
	if w == nil {
		return nil, errors.New("emit sink writer must not be nil")
	}
	sw, err := newStructuredWriter(w, format)
	if err != nil {
		return nil, fmt.Errorf("unsupported emit format: %s", format)
	}
	return &EmitSink{sw: sw}, nil
}

func (s *EmitSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sw.write(v)
}

func (s *EmitSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sw.finish()
}
