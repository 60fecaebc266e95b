package tasks

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

const (
	OptionAllowFailure = "allow.failure"
	OptionAllowReason  = "allow.reason"
)

// AllowFailure turns a task's FAIL result into a PASS that keeps the failure
// message. The engine enables it for task IDs listed in tasks.allow_failures.
type AllowFailure struct {
	Enabled bool
	Reason  string
}

// Options returns the standard configuration options for allowed failures.
func (a *AllowFailure) Options() []Option {
	return []Option{
		{
			Name:        OptionAllowFailure,
			Description: "Report FAIL results of this task as PASS (true/false).",
			Default:     "false",
		},
		{
			Name:        OptionAllowReason,
			Description: "Reason recorded with an allowed failure.",
		},
	}
}

// Configure parses the configuration options.
func (a *AllowFailure) Configure(opts map[string]string) error {
	a.Enabled = false
	a.Reason = ""

	if val, ok := opts[OptionAllowFailure]; ok && strings.TrimSpace(val) != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", OptionAllowFailure, val, err)
		}
		a.Enabled = enabled
	}
	a.Reason = strings.TrimSpace(opts[OptionAllowReason])
	return nil
}

// CheckResult applies the policy to result.
func (a *AllowFailure) CheckResult(result Result) Result {
	if result.Status != StatusFail || !a.Enabled {
		return result
	}
	reason := a.Reason
	if reason == "" {
		reason = OptionAllowFailure
	}
	allowed := result
	allowed.Status = StatusPass
	allowed.Message = fmt.Sprintf("Allowed failure: %s (Allowed by policy: %s)", result.Message, reason)
	return allowed
}

// MatchesAny reports whether taskID matches any of the IDs or path.Match
// patterns.
func MatchesAny(taskID string, patterns []string) bool {
	for _, p := range patterns {
		if p == taskID {
			return true
		}
		if ok, _ := path.Match(p, taskID); ok {
			return true
		}
	}
	return false
}
