package tasks

import (
	"encoding/json"
	"testing"
	"time"
)

func TestResultSerialization(t *testing.T) {
	r := Result{
		TaskID:    "build-module",
		Status:    StatusPass,
		Message:   "2 files, 4.1 KiB",
		Artifacts: []string{"dist/x-card.js"},
		Evidence: map[string]string{
			"key": "value",
		},
		Duration: time.Second,
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	expected := `{"task_id":"build-module","status":"PASS","message":"2 files, 4.1 KiB","artifacts":["dist/x-card.js"],"evidence":{"key":"value"}}`
	if string(data) != expected {
		t.Errorf("Expected %s, got %s", expected, string(data))
	}
}
