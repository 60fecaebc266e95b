package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"elemforge/internal/tasks"
)

// ReportSink renders a Markdown build report when closed.
type ReportSink struct {
	path         string
	file         *os.File
	mu           sync.Mutex
	results      []tasks.Result
	project      string
	planned      int
	stages       int
	release      string
	exitCode     int
	haveExitCode bool
}

func NewReportSink(path string) (*ReportSink, error) {
	if path == "" {
		return nil, fmt.Errorf("report path required")
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}

	return &ReportSink{path: path, file: f}, nil
}

func (s *ReportSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch t := v.(type) {
	case tasks.Result:
		s.results = append(s.results, t)
	case Event:
		switch t.Type {
		case EventTaskResult:
			if t.Result != nil {
				s.results = append(s.results, *t.Result)
			}
		case EventRunStarted:
			if t.Detail != "" {
				s.project = t.Detail
			}
			s.planned += t.Tasks
			s.stages += t.Stages
		case EventReleaseStarted:
			s.release = t.Detail
		case EventRunFinished, EventReleaseFinished:
			// The last finished event decides the outcome: a publish run
			// finishes its inner build before the release itself.
			s.exitCode = t.ExitCode
			s.haveExitCode = true
		}
	}
	return nil
}

func (s *ReportSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var build, release []tasks.Result
	for _, r := range s.results {
		if isReleaseStep(r) {
			release = append(release, r)
		} else {
			build = append(build, r)
		}
	}
	counts := countStatuses(build)

	var b strings.Builder
	b.WriteString("# elemforge Build Report\n\n")
	if s.project != "" {
		fmt.Fprintf(&b, "**Project:** `%s`\n\n", s.project)
	}
	b.WriteString(s.outcomeLine(counts))
	b.WriteString("\n")

	// --- Summary ---
	b.WriteString("## Summary\n\n")
	if s.planned > 0 {
		fmt.Fprintf(&b, "%d task(s) planned in %d stage(s).\n\n", s.planned, s.stages)
	}
	b.WriteString("| Status | Tasks |\n|---|---|\n")
	for _, st := range statusOrder {
		fmt.Fprintf(&b, "| %s | %d |\n", statusBadge(st), counts[st])
	}
	b.WriteString("\n")

	// --- Tasks ---
	b.WriteString("## Tasks\n\n")
	if len(build) == 0 {
		b.WriteString("No tasks ran.\n\n")
	} else {
		b.WriteString("| Task | Status | Duration | Message |\n|---|---|---|---|\n")
		for _, r := range build {
			fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n",
				r.TaskID, statusBadge(r.Status), formatDuration(r.Duration), escapeCell(normalizeReason(r.Message)))
		}
		b.WriteString("\n")
	}

	// --- Problems ---
	var failed []string
	if counts.problems() > 0 {
		b.WriteString("## Problems\n\n")
		for _, r := range build {
			if r.Status != tasks.StatusFail && r.Status != tasks.StatusError {
				continue
			}
			failed = append(failed, r.TaskID)
			fmt.Fprintf(&b, "### `%s` (%s)\n\n", r.TaskID, r.Status)
			if r.Message != "" {
				b.WriteString(r.Message + "\n\n")
			}
			if len(r.Evidence) > 0 {
				b.WriteString("```text\n")
				for _, k := range sortedKeys(r.Evidence) {
					fmt.Fprintf(&b, "%s:\n%s\n", k, strings.TrimRight(r.Evidence[k], "\n"))
				}
				b.WriteString("```\n\n")
			}
		}
	}

	// --- Skipped ---
	var skipped []string
	for _, r := range build {
		if r.Status == tasks.StatusSkipped {
			skipped = append(skipped, fmt.Sprintf("- `%s`: %s", r.TaskID, normalizeReason(r.Message)))
		}
	}
	if len(skipped) > 0 {
		b.WriteString("## Skipped\n\n")
		b.WriteString(strings.Join(skipped, "\n"))
		b.WriteString("\n\n")
	}

	// --- Artifacts ---
	var artifacts []string
	for _, r := range s.results {
		for _, a := range r.Artifacts {
			artifacts = append(artifacts, fmt.Sprintf("- `%s` (%s)", a, r.TaskID))
		}
	}
	if len(artifacts) > 0 {
		b.WriteString("## Artifacts\n\n")
		b.WriteString(strings.Join(artifacts, "\n"))
		b.WriteString("\n\n")
	}

	// --- Release ---
	if s.release != "" || len(release) > 0 {
		b.WriteString("## Release\n\n")
		if s.release != "" {
			fmt.Fprintf(&b, "Version: `%s`\n\n", s.release)
		}
		b.WriteString("| Step | Status | Message |\n|---|---|---|\n")
		for _, r := range release {
			step := strings.TrimPrefix(r.TaskID, releaseStepTaskPrefix)
			fmt.Fprintf(&b, "| %s | %s | %s |\n", step, statusBadge(r.Status), escapeCell(normalizeReason(r.Message)))
		}
		b.WriteString("\n")
	}

	// --- Next steps ---
	if len(failed) > 0 {
		b.WriteString("## Next steps\n\n")
		fmt.Fprintf(&b, "Fix %s, then re-run them:\n\n", formatTaskList(failed, 5))
		fmt.Fprintf(&b, "```sh\n%s\n```\n", rerunCommand(failed))
	}

	if _, err := s.file.WriteString(b.String()); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}

func (s *ReportSink) outcomeLine(counts statusCounts) string {
	passed := counts.problems() == 0
	if s.haveExitCode {
		passed = s.exitCode == 0
	}
	if passed {
		return "**Outcome:** ✅ passed\n"
	}
	if s.haveExitCode {
		return fmt.Sprintf("**Outcome:** ❌ failed (exit code %d)\n", s.exitCode)
	}
	return "**Outcome:** ❌ failed\n"
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}
