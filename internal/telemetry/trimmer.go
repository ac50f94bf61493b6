package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTrimInterval is how often StartTrimmer trims when no interval is given.
const DefaultTrimInterval = 5 * time.Minute

// StartTrimmer calls t.Trim on every tick until ctx is cancelled. The
// returned channel is closed once the goroutine has exited.
func StartTrimmer(ctx context.Context, t Trimmer, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultTrimInterval
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Error().Interface("panic", r).Msg("telemetry trimmer: recovered from panic")
						}
					}()
					if n := t.Trim(); n > 0 {
						log.Debug().Int("dropped", n).Msg("telemetry log trimmed")
					}
				}()
			}
		}
	}()
	return done
}
