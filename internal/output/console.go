package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"elemforge/internal/tasks"

	"github.com/fatih/color"
)

type ConsoleSink struct {
	writer          io.Writer
	format          string // "text", "json", "ndjson"
	mu              sync.Mutex
	structured      *structuredWriter // json and ndjson
	allowedStatuses map[string]bool
	counts          map[tasks.Status]int
	palette         map[tasks.Status]*color.Color
	bold            *color.Color
}

func NewConsoleSink(w io.Writer, format string, filterStatuses []string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}

	s := &ConsoleSink{
		writer: w,
		format: format,
		counts: make(map[tasks.Status]int),
		palette: map[tasks.Status]*color.Color{
			tasks.StatusPass:    color.New(color.FgGreen),
			tasks.StatusFail:    color.New(color.FgRed, color.Bold),
			tasks.StatusError:   color.New(color.FgMagenta, color.Bold),
			tasks.StatusSkipped: color.New(color.FgYellow),
		},
		bold: color.New(color.Bold),
	}

	if format == "json" || format == "ndjson" {
		s.structured, _ = newStructuredWriter(w, format)
	}

	// Only colorize the real terminal; buffers and files get plain text.
	if f, ok := w.(*os.File); !ok || f != os.Stdout || color.NoColor {
		for _, c := range s.palette {
			c.DisableColor()
		}
		s.bold.DisableColor()
	}

	if len(filterStatuses) > 0 {
		s.allowedStatuses = make(map[string]bool)
		for _, st := range filterStatuses {
			s.allowedStatuses[strings.ToUpper(strings.TrimSpace(st))] = true
		}
	}

	return s
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(v)
}

func (s *ConsoleSink) writeLocked(v any) error {
	if e, ok := v.(Event); ok && e.Type == EventTaskResult && e.Result != nil {
		v = *e.Result
	}

	if r, ok := v.(tasks.Result); ok {
		s.counts[r.Status]++
		if len(s.allowedStatuses) > 0 && !s.allowedStatuses[string(r.Status)] {
			return nil
		}
	}

	if s.structured != nil {
		return s.structured.write(v)
	}
	if s.format != "text" {
		return fmt.Errorf("unsupported console format: %s", s.format)
	}

	switch t := v.(type) {
	case tasks.Result:
		if err := s.writeResultLine(t); err != nil {
			return err
		}
	case Event:
		if err := s.writeEventLine(t); err != nil {
			return err
		}
	default:
		return nil
	}
	return flush(s.writer)
}

func (s *ConsoleSink) writeResultLine(r tasks.Result) error {
	status := s.palette[r.Status]
	if status == nil {
		status = s.bold
	}
	line := status.Sprintf("[%s]", r.Status) + " " + r.TaskID
	if r.Message != "" {
		line += " - " + r.Message
	}
	if r.Duration > 0 {
		line += fmt.Sprintf(" (%s)", r.Duration.Round(time.Millisecond))
	}
	_, err := fmt.Fprintln(s.writer, line)
	return err
}

func (s *ConsoleSink) writeEventLine(e Event) error {
	var line string
	switch e.Type {
	case EventRunFinished:
		line = s.bold.Sprint("Summary:") + fmt.Sprintf(" %d passed, %d failed, %d errored, %d skipped",
			s.counts[tasks.StatusPass], s.counts[tasks.StatusFail], s.counts[tasks.StatusError], s.counts[tasks.StatusSkipped])
	case EventReleaseStarted:
		line = s.bold.Sprint("Releasing") + " " + e.Detail
	case EventReleaseFinished:
		if e.ExitCode == 0 {
			line = s.bold.Sprint("Released") + " " + e.Detail
		} else {
			line = s.palette[tasks.StatusFail].Sprint("Release aborted") + " " + e.Detail
		}
	case EventWatchRebuild:
		line = s.bold.Sprint("Rebuilding") + " " + e.Detail
	default:
		// Stage boundaries are only interesting to machine readers.
		return nil
	}
	_, err := fmt.Fprintln(s.writer, line)
	return err
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.structured != nil {
		return s.structured.finish()
	}
	if s.format != "text" {
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
	return nil
}
