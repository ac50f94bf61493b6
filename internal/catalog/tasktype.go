package catalog

import (
	"fmt"
	"strings"
)

// TaskType selects which ordered provider list applies to a generation.
type TaskType string

const (
	// TaskLongContent covers long-form creative text such as scripts.
	TaskLongContent TaskType = "LONG_CONTENT"
	// TaskPremiumAnalysis covers strategy reports and in-depth analysis.
	TaskPremiumAnalysis TaskType = "PREMIUM_ANALYSIS"
	// TaskChat covers short, latency-sensitive conversational replies.
	TaskChat TaskType = "CHAT"
)

// TaskTypes returns every known task type in a stable order.
func TaskTypes() []TaskType {
	return []TaskType{TaskLongContent, TaskPremiumAnalysis, TaskChat}
}

// Valid reports whether t is one of the known task types.
func (t TaskType) Valid() bool {
	switch t {
	case TaskLongContent, TaskPremiumAnalysis, TaskChat:
		return true
	}
	return false
}

func (t TaskType) String() string {
	return string(t)
}

// ParseTaskType accepts the canonical tag as well as lower-case and
// dash-separated spellings ("long-content", "premium_analysis").
func ParseTaskType(s string) (TaskType, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	t := TaskType(norm)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTaskType, s)
	}
	return t, nil
}
