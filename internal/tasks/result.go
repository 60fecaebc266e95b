package tasks

import "time"

type Status string

const (
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
	StatusSkipped Status = "SKIPPED"
	StatusError   Status = "ERROR"
)

type Result struct {
	TaskID  string `json:"task_id"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	// Artifacts lists the files the task wrote, relative to the project root.
	Artifacts []string `json:"artifacts,omitempty"`
	// Evidence contains simple key-value string pairs supporting the result.
	Evidence map[string]string `json:"evidence,omitempty"`
	// Metadata contains structured data supporting the result (e.g. sizes, counts).
	Metadata map[string]any `json:"metadata,omitempty"`
	Duration time.Duration  `json:"-"`
}
