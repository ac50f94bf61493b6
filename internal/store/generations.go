package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Generation statuses.
const (
	GenerationSucceeded = "succeeded"
	GenerationFailed    = "failed"
	GenerationCancelled = "cancelled"
)

// Generation is one Generate call as served by the API.
type Generation struct {
	ID             string
	Timestamp      string
	TaskType       string
	Provider       string
	Model          string
	Temperature    float64
	Prompt         string
	Content        string
	Status         string
	ErrorMessage   string
	LatencyMs      int64
	TokensIn       int64
	TokensOut      int64
	ProvidersTried int
}

// GenerationStats holds aggregate statistics for a range of generations.
type GenerationStats struct {
	Total          int64
	Succeeded      int64
	Failed         int64
	Cancelled      int64
	TotalTokensIn  int64
	TotalTokensOut int64
	AvgLatencyMs   float64
}

// InsertGeneration stores a generation. The caller provides a unique ID
// (typically a UUID).
func (s *Store) InsertGeneration(g *Generation) error {
	_, err := s.writer.Exec(`
		INSERT INTO generations (
			id, timestamp, task_type, provider, model, temperature,
			prompt, content, status, error_message, latency_ms,
			tokens_in, tokens_out, providers_tried
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Timestamp, g.TaskType, g.Provider, g.Model, g.Temperature,
		g.Prompt, g.Content, g.Status, g.ErrorMessage, g.LatencyMs,
		g.TokensIn, g.TokensOut, g.ProvidersTried,
	)
	if err != nil {
		return fmt.Errorf("store: insert generation: %w", err)
	}
	return nil
}

// GetGeneration retrieves a generation by ID. The error wraps
// sql.ErrNoRows when it does not exist.
func (s *Store) GetGeneration(id string) (*Generation, error) {
	g := &Generation{}
	err := s.reader.QueryRow(`
		SELECT id, timestamp, task_type, provider, model, temperature,
		       prompt, content, status, error_message, latency_ms,
		       tokens_in, tokens_out, providers_tried
		FROM generations WHERE id = ?`, id,
	).Scan(
		&g.ID, &g.Timestamp, &g.TaskType, &g.Provider, &g.Model, &g.Temperature,
		&g.Prompt, &g.Content, &g.Status, &g.ErrorMessage, &g.LatencyMs,
		&g.TokensIn, &g.TokensOut, &g.ProvidersTried,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get generation %s: %w", id, err)
	}
	return g, nil
}

// ListGenerations returns a page of generations ordered newest first.
// Prompt and content are omitted.
func (s *Store) ListGenerations(limit, offset int) ([]*Generation, error) {
	rows, err := s.reader.Query(`
		SELECT id, timestamp, task_type, provider, model, temperature,
		       status, error_message, latency_ms, tokens_in, tokens_out, providers_tried
		FROM generations
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list generations: %w", err)
	}
	defer rows.Close()

	var results []*Generation
	for rows.Next() {
		g := &Generation{}
		if err := rows.Scan(
			&g.ID, &g.Timestamp, &g.TaskType, &g.Provider, &g.Model, &g.Temperature,
			&g.Status, &g.ErrorMessage, &g.LatencyMs, &g.TokensIn, &g.TokensOut, &g.ProvidersTried,
		); err != nil {
			return nil, fmt.Errorf("store: scan generation row: %w", err)
		}
		results = append(results, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list generations iteration: %w", err)
	}
	return results, nil
}

// GetGenerationStats computes aggregate statistics for every generation
// whose timestamp is >= since.
func (s *Store) GetGenerationStats(since time.Time) (*GenerationStats, error) {
	stats := &GenerationStats{}
	err := s.reader.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'succeeded' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(tokens_in), 0),
			COALESCE(SUM(tokens_out), 0),
			COALESCE(AVG(latency_ms), 0.0)
		FROM generations
		WHERE timestamp >= ?`, since.UTC().Format(time.RFC3339),
	).Scan(
		&stats.Total,
		&stats.Succeeded,
		&stats.Failed,
		&stats.Cancelled,
		&stats.TotalTokensIn,
		&stats.TotalTokensOut,
		&stats.AvgLatencyMs,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return stats, nil
		}
		return nil, fmt.Errorf("store: get generation stats: %w", err)
	}
	return stats, nil
}
