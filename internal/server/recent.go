package server

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/allaspectsdev/genrelay/internal/store"
)

// DefaultRecentResults is the number of generations kept in memory for
// lookups by ID.
const DefaultRecentResults = 256

// GenerationView is the API representation of a finished generation.
// Error holds the public message only; provider error text stays in the
// store and logs.
type GenerationView struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	TaskType       string    `json:"task_type"`
	Status         string    `json:"status"`
	Provider       string    `json:"provider,omitempty"`
	Model          string    `json:"model,omitempty"`
	Content        string    `json:"content,omitempty"`
	Error          string    `json:"error,omitempty"`
	LatencyMs      int64     `json:"latency_ms"`
	TokensIn       int64     `json:"tokens_in"`
	TokensOut      int64     `json:"tokens_out"`
	ProvidersTried int       `json:"providers_tried"`
}

// RecentResults is a bounded in-memory index of recent generations in
// front of the SQLite history.
type RecentResults struct {
	cache *lru.Cache[string, GenerationView]
}

// NewRecentResults creates a cache holding up to size generations.
func NewRecentResults(size int) (*RecentResults, error) {
	if size <= 0 {
		size = DefaultRecentResults
	}
	c, err := lru.New[string, GenerationView](size)
	if err != nil {
		return nil, fmt.Errorf("server: creating recent results cache: %w", err)
	}
	return &RecentResults{cache: c}, nil
}

// Add stores v under v.ID, evicting the least recently used entry when
// full.
func (r *RecentResults) Add(v GenerationView) {
	r.cache.Add(v.ID, v)
}

// Get returns the generation with the given ID if it is still cached.
func (r *RecentResults) Get(id string) (GenerationView, bool) {
	return r.cache.Get(id)
}

// Len returns the number of cached generations.
func (r *RecentResults) Len() int {
	return r.cache.Len()
}

func viewFromStore(g *store.Generation) GenerationView {
	ts, _ := time.Parse(time.RFC3339, g.Timestamp)
	return GenerationView{
		ID:             g.ID,
		Timestamp:      ts,
		TaskType:       g.TaskType,
		Status:         g.Status,
		Provider:       g.Provider,
		Model:          g.Model,
		Content:        g.Content,
		Error:          publicMessage(g.Status),
		LatencyMs:      g.LatencyMs,
		TokensIn:       g.TokensIn,
		TokensOut:      g.TokensOut,
		ProvidersTried: g.ProvidersTried,
	}
}

func publicMessage(status string) string {
	switch status {
	case store.GenerationFailed:
		return msgUnavailable
	case store.GenerationCancelled:
		return msgCancelled
	default:
		return ""
	}
}
