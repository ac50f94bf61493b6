package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redisOpTimeout bounds each mirror write so a slow Redis never stalls
// a generation.
const redisOpTimeout = 500 * time.Millisecond

// RedisMirror copies every record onto a capped Redis list so other
// processes can read recent attempts. Newest records are at the tail.
type RedisMirror struct {
	client  *redis.Client
	key     string
	maxSize int64
	logger  zerolog.Logger
}

// NewRedisMirror returns a mirror writing to key, keeping at most maxSize
// entries.
func NewRedisMirror(client *redis.Client, key string, maxSize int, logger zerolog.Logger) *RedisMirror {
	if maxSize <= 0 {
		maxSize = DefaultCapacity
	}
	return &RedisMirror{
		client:  client,
		key:     key,
		maxSize: int64(maxSize),
		logger:  logger,
	}
}

// DialRedisMirror connects to addr and verifies the connection with PING.
func DialRedisMirror(ctx context.Context, addr, key string, maxSize int, logger zerolog.Logger) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("telemetry: connecting to redis %s: %w", addr, err)
	}
	return NewRedisMirror(client, key, maxSize, logger), nil
}

// Record pushes r and trims the list in one pipeline. Failures are logged
// and otherwise ignored.
func (m *RedisMirror) Record(r AttemptRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := m.push(ctx, r); err != nil {
		m.logger.Warn().Err(err).Str("provider", r.Provider).Msg("redis telemetry mirror write failed")
	}
}

func (m *RedisMirror) push(ctx context.Context, r AttemptRecord) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshalling attempt record: %w", err)
	}
	pipe := m.client.Pipeline()
	pipe.RPush(ctx, m.key, data)
	pipe.LTrim(ctx, m.key, -m.maxSize, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pushing attempt record: %w", err)
	}
	return nil
}

// Records reads the mirrored list, oldest first.
func (m *RedisMirror) Records(ctx context.Context) ([]AttemptRecord, error) {
	raw, err := m.client.LRange(ctx, m.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("telemetry: reading redis mirror: %w", err)
	}
	out := make([]AttemptRecord, 0, len(raw))
	for i, s := range raw {
		var r AttemptRecord
		if err := json.Unmarshal([]byte(s), &r); err != nil {
			return nil, fmt.Errorf("telemetry: decoding mirrored record %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Trim enforces the size cap and returns how many entries were dropped.
func (m *RedisMirror) Trim() int {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	n, err := m.client.LLen(ctx, m.key).Result()
	if err != nil {
		m.logger.Warn().Err(err).Msg("redis telemetry mirror trim failed")
		return 0
	}
	if n <= m.maxSize {
		return 0
	}
	if err := m.client.LTrim(ctx, m.key, -m.maxSize, -1).Err(); err != nil {
		m.logger.Warn().Err(err).Msg("redis telemetry mirror trim failed")
		return 0
	}
	return int(n - m.maxSize)
}

// Close releases the Redis connection.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}
