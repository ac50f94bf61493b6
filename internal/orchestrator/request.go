package orchestrator

import (
	"fmt"
	"strings"

	"github.com/allaspectsdev/genrelay/internal/catalog"
)

// DefaultMaxRetries is the per-provider attempt budget when a request
// leaves MaxRetries unset.
const DefaultMaxRetries = 3

// Request is one generation call.
type Request struct {
	Prompt      string
	TaskType    catalog.TaskType
	Temperature float64
	// MaxRetries is the number of attempts per provider. <= 0 selects the
	// executor default.
	MaxRetries int
	// Observer, if set, is told before each provider is tried.
	Observer Observer
}

// Result is the output of a successful generation.
type Result struct {
	Content  string `json:"content"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (r Request) validate() error {
	if !r.TaskType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTaskType, r.TaskType)
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt is empty", ErrInvalidRequest)
	}
	if !(r.Temperature >= 0 && r.Temperature <= 1) {
		return fmt.Errorf("%w: temperature %.2f outside [0, 1]", ErrInvalidRequest, r.Temperature)
	}
	return nil
}
