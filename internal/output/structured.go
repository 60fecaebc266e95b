package output

import (
	"encoding/json"
	"fmt"
	"io"

	"elemforge/internal/tasks"
)

// structuredWriter is the json/ndjson encoding shared by the emit and file
// sinks. Callers serialize access.
type structuredWriter struct {
	format  string
	w       io.Writer
	enc     *json.Encoder
	results []tasks.Result
}

func newStructuredWriter(w io.Writer, format string) (*structuredWriter, error) {
	if format != "json" && format != "ndjson" {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	return &structuredWriter{format: format, w: w, enc: json.NewEncoder(w)}, nil
}

// write buffers results in json mode and streams events in ndjson mode.
// Values of any other type are ignored.
func (s *structuredWriter) write(v any) error {
	if s.format == "json" {
		if r, ok := v.(tasks.Result); ok {
			s.results = append(s.results, r)
		}
		return nil
	}

	var e Event
	switch t := v.(type) {
	case Event:
		e = t
	case tasks.Result:
		e = eventFromResult(t)
	default:
		return nil
	}
	if err := s.enc.Encode(e); err != nil {
		return err
	}
	return flush(s.w)
}

// finish writes the json aggregate. An empty run is "[]", never "null".
func (s *structuredWriter) finish() error {
	if s.format != "json" {
		return nil
	}
	results := s.results
	if results == nil {
		results = []tasks.Result{}
	}
	s.enc.SetIndent("", "  ")
	if err := s.enc.Encode(results); err != nil {
		return err
	}
	return flush(s.w)
}

func flush(w io.Writer) error {
	if f, ok := w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
