package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// FileSink writes --out. A ".gz" suffix compresses the file; compressed
// NDJSON only becomes readable once Close has flushed the gzip trailer.
type FileSink struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	gz     *gzip.Writer
	sw     *structuredWriter
	closed bool
}

// FormatFromPath infers json or ndjson from the file extension, ignoring a
// trailing ".gz".
func FormatFromPath(path string) (string, error) {
	name := strings.TrimSuffix(strings.ToLower(path), ".gz")
	switch ext := filepath.Ext(name); ext {
	case ".json":
		return "json", nil
	case ".ndjson", ".jsonl":
		return "ndjson", nil
	default:
		return "", fmt.Errorf("cannot infer output format from file extension %q", ext)
	}
}

func NewFileSink(path string, format string) (*FileSink, error) {
	if path == "" {
		return nil, errors.New("output path required")
	}
	if format == "" {
		f, err := FormatFromPath(path)
		if err != nil {
			return nil, err
		}
		format = f
	}
	if format != "json" && format != "ndjson" {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	s := &FileSink{path: path, file: f}
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		s.gz = gzip.NewWriter(f)
		s.sw, _ = newStructuredWriter(s.gz, format)
	} else {
		s.sw, _ = newStructuredWriter(f, format)
	}
	return s, nil
}

func (s *FileSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("write to closed file sink")
	}
	return s.sw.write(v)
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	errs := []error{s.sw.finish()}
	if s.gz != nil {
		errs = append(errs, s.gz.Close())
	}
	errs = append(errs, s.file.Close())
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}
