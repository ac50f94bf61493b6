package store

import (
	"fmt"
	"time"

	"github.com/allaspectsdev/genrelay/internal/telemetry"
)

// InsertAttempt stores one attempt record.
func (s *Store) InsertAttempt(r telemetry.AttemptRecord) error {
	_, err := s.writer.Exec(`
		INSERT INTO attempts (
			timestamp_ms, provider, model, task_type,
			attempt, status, error_message, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TimestampMillis, r.Provider, r.Model, r.TaskType,
		r.Attempt, string(r.Status), r.Error, r.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("store: insert attempt: %w", err)
	}
	return nil
}

// Record implements telemetry.Recorder. Write failures are logged and
// dropped so persistence never fails a generation.
func (s *Store) Record(r telemetry.AttemptRecord) {
	if err := s.InsertAttempt(r); err != nil {
		s.logger.Warn().Err(err).Str("provider", r.Provider).Msg("failed to persist attempt record")
	}
}

// ListAttempts returns a page of attempts ordered newest first.
func (s *Store) ListAttempts(limit, offset int) ([]telemetry.AttemptRecord, error) {
	rows, err := s.reader.Query(`
		SELECT timestamp_ms, provider, model, task_type,
		       attempt, status, error_message, duration_ms
		FROM attempts
		ORDER BY timestamp_ms DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list attempts: %w", err)
	}
	defer rows.Close()

	var results []telemetry.AttemptRecord
	for rows.Next() {
		var r telemetry.AttemptRecord
		var status string
		if err := rows.Scan(
			&r.TimestampMillis, &r.Provider, &r.Model, &r.TaskType,
			&r.Attempt, &status, &r.Error, &r.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("store: scan attempt row: %w", err)
		}
		r.Status = telemetry.Status(status)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list attempts iteration: %w", err)
	}
	return results, nil
}

// AttemptStats aggregates every attempt with a timestamp >= since, using
// the same rules as telemetry.ComputeStats.
func (s *Store) AttemptStats(since time.Time) (telemetry.Stats, error) {
	stats := telemetry.Stats{PerProvider: make(map[string]telemetry.ProviderStats)}

	rows, err := s.reader.Query(`
		SELECT provider,
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0)
		FROM attempts
		WHERE timestamp_ms >= ?
		GROUP BY provider`, since.UnixMilli(),
	)
	if err != nil {
		return stats, fmt.Errorf("store: attempt stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var provider string
		var ps telemetry.ProviderStats
		if err := rows.Scan(&provider, &ps.Total, &ps.Successful, &ps.Cancelled); err != nil {
			return stats, fmt.Errorf("store: scan attempt stats: %w", err)
		}
		ps.Failed = ps.Total - ps.Successful - ps.Cancelled
		if ps.Total > 0 {
			ps.SuccessRatePercent = float64(ps.Successful) / float64(ps.Total) * 100
		}
		stats.PerProvider[provider] = ps
		stats.TotalAttempts += ps.Total
		stats.SuccessfulAttempts += ps.Successful
		stats.FailedAttempts += ps.Failed
		stats.CancelledAttempts += ps.Cancelled
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("store: attempt stats iteration: %w", err)
	}
	return stats, nil
}
