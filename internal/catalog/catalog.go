// Package catalog holds the static, per-task-type ordered lists of
// candidate providers consulted by the orchestrator.
package catalog

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrInvalidTaskType is returned for an unrecognised task-type tag.
	ErrInvalidTaskType = errors.New("invalid task type")

	// ErrNoProvidersConfigured is returned when no credentialed provider
	// exists for a task type.
	ErrNoProvidersConfigured = errors.New("no providers configured")
)

// Catalog maps each task type to its ordered candidate list. It is
// immutable after New returns and safe for concurrent use.
type Catalog struct {
	tasks map[TaskType][]ProviderDescriptor
}

// New builds a Catalog from per-task descriptor lists. Each list is sorted
// by ascending priority (ties keep their input order). A task type may not
// list the same provider name twice.
func New(lists map[TaskType][]ProviderDescriptor) (*Catalog, error) {
	tasks := make(map[TaskType][]ProviderDescriptor, len(lists))
	for task, descs := range lists {
		if !task.Valid() {
			return nil, fmt.Errorf("catalog: %w: %q", ErrInvalidTaskType, task)
		}
		seen := make(map[string]bool, len(descs))
		sorted := make([]ProviderDescriptor, 0, len(descs))
		for _, d := range descs {
			if d.Name == "" {
				return nil, fmt.Errorf("catalog: task %s has a provider with no name", task)
			}
			if seen[d.Name] {
				return nil, fmt.Errorf("catalog: task %s lists provider %q more than once", task, d.Name)
			}
			seen[d.Name] = true
			sorted = append(sorted, d)
		}
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Priority < sorted[j].Priority
		})
		tasks[task] = sorted
	}
	return &Catalog{tasks: tasks}, nil
}

// CandidatesFor returns the credentialed providers for task ordered by
// ascending priority. The returned slice is a copy.
func (c *Catalog) CandidatesFor(task TaskType) ([]ProviderDescriptor, error) {
	if !task.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTaskType, task)
	}

	var out []ProviderDescriptor
	for _, d := range c.tasks[task] {
		if d.Available() {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w for task type %s", ErrNoProvidersConfigured, task)
	}
	return out, nil
}

// Providers returns every configured descriptor for task, including those
// without credentials, in priority order.
func (c *Catalog) Providers(task TaskType) []ProviderDescriptor {
	src := c.tasks[task]
	out := make([]ProviderDescriptor, len(src))
	copy(out, src)
	return out
}

// Listing is the catalog view served by the API.
type Listing struct {
	TaskType  TaskType             `json:"task_type"`
	Providers []ProviderDescriptor `json:"providers"`
}

// List returns the full catalog for every known task type.
func (c *Catalog) List() []Listing {
	out := make([]Listing, 0, len(c.tasks))
	for _, t := range TaskTypes() {
		out = append(out, Listing{TaskType: t, Providers: c.Providers(t)})
	}
	return out
}
