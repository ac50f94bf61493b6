package telemetry

import "time"

// Status is the outcome of one provider attempt.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusCancelled Status = "cancelled"
)

// AttemptRecord is one attempt against one provider. Records are never
// mutated after they are appended.
type AttemptRecord struct {
	Provider        string `json:"provider"`
	Model           string `json:"model,omitempty"`
	TaskType        string `json:"task_type,omitempty"`
	Attempt         int    `json:"attempt"`
	Status          Status `json:"status"`
	Error           string `json:"error,omitempty"`
	DurationMs      int64  `json:"duration_ms"`
	TimestampMillis int64  `json:"timestamp_ms"`
}

// Success reports whether the attempt produced content.
func (r AttemptRecord) Success() bool { return r.Status == StatusSuccess }

// Time returns the record timestamp as a time.Time.
func (r AttemptRecord) Time() time.Time { return time.UnixMilli(r.TimestampMillis) }

// NowMillis returns the current wall-clock time in Unix milliseconds.
func NowMillis() int64 { return time.Now().UnixMilli() }
