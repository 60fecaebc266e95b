package output

import (
	"fmt"
	"sort"
	"strings"

	"elemforge/internal/flags"
	"elemforge/internal/tasks"
)

var statusOrder = []tasks.Status{
	tasks.StatusPass,
	tasks.StatusFail,
	tasks.StatusError,
	tasks.StatusSkipped,
}

var statusBadges = map[tasks.Status]string{
	tasks.StatusPass:    "✅",
	tasks.StatusFail:    "❌",
	tasks.StatusError:   "💥",
	tasks.StatusSkipped: "⏭️",
}

func statusBadge(st tasks.Status) string {
	if b, ok := statusBadges[st]; ok {
		return b + " " + string(st)
	}
	return string(st)
}

func isReleaseStep(r tasks.Result) bool {
	return strings.HasPrefix(r.TaskID, releaseStepTaskPrefix)
}

// normalizeReason collapses whitespace and truncates long messages for
// single-line table cells.
func normalizeReason(text string) string {
	s := strings.Join(strings.Fields(text), " ")
	if len(s) > 120 {
		return s[:117] + "..."
	}
	return s
}

// escapeCell keeps a value from breaking a Markdown table row.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatTaskList(ids []string, max int) string {
	if len(ids) == 0 {
		return ""
	}
	if len(ids) <= max {
		return fmt.Sprintf("%d tasks (%s)", len(ids), strings.Join(ids, ", "))
	}
	return fmt.Sprintf("%d tasks (%s, +%d more)", len(ids), strings.Join(ids[:max], ", "), len(ids)-max)
}

// rerunCommand builds the command line that re-runs only the given tasks.
func rerunCommand(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return fmt.Sprintf("elemforge build --%s %s", flags.FlagTasks, strings.Join(ids, ","))
}

type statusCounts map[tasks.Status]int

func countStatuses(results []tasks.Result) statusCounts {
	c := make(statusCounts)
	for _, r := range results {
		c[r.Status]++
	}
	return c
}

func (c statusCounts) problems() int {
	return c[tasks.StatusFail] + c[tasks.StatusError]
}
