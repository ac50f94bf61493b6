package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/allaspectsdev/genrelay/internal/catalog"
	"github.com/allaspectsdev/genrelay/internal/telemetry"
	"github.com/allaspectsdev/genrelay/internal/tracing"
)

// Runner retries one provider up to the request's attempt budget. It never
// switches providers; that is the Executor's job.
type Runner struct {
	caller        Caller
	backoff       Backoff
	recorder      telemetry.Recorder
	skipPermanent bool
	logger        zerolog.Logger
}

// NewRunner builds a Runner. A nil recorder discards records.
func NewRunner(caller Caller, backoff Backoff, recorder telemetry.Recorder, skipPermanent bool, logger zerolog.Logger) *Runner {
	if recorder == nil {
		recorder = telemetry.Nop
	}
	return &Runner{
		caller:        caller,
		backoff:       backoff,
		recorder:      recorder,
		skipPermanent: skipPermanent,
		logger:        logger,
	}
}

// Run calls p until it returns non-empty content or maxRetries attempts
// have been made. Every attempt that starts produces exactly one telemetry
// record. The final failure is returned as *ProviderAttemptError; a
// cancelled context yields an error matching ErrCancelled instead.
func (r *Runner) Run(ctx context.Context, p catalog.ProviderDescriptor, req Request, maxRetries int) (Result, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	logger := r.logger.With().Str("provider", p.Name).Str("model", p.Model).Logger()

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return Result{}, cancelled(ctx)
		}
		attempts = attempt

		content, elapsed, err := r.call(ctx, p, req, attempt)
		rec := telemetry.AttemptRecord{
			Provider:        p.Name,
			Model:           p.Model,
			TaskType:        req.TaskType.String(),
			Attempt:         attempt,
			DurationMs:      elapsed.Milliseconds(),
			TimestampMillis: telemetry.NowMillis(),
		}

		if err == nil {
			rec.Status = telemetry.StatusSuccess
			r.recorder.Record(rec)
			logger.Debug().Int("attempt", attempt).Dur("elapsed", elapsed).Msg("provider attempt succeeded")
			return Result{Content: content, Provider: p.Name, Model: p.Model}, nil
		}

		if ctx.Err() != nil {
			rec.Status = telemetry.StatusCancelled
			rec.Error = context.Cause(ctx).Error()
			r.recorder.Record(rec)
			return Result{}, cancelled(ctx)
		}

		rec.Status = telemetry.StatusFailure
		rec.Error = err.Error()
		r.recorder.Record(rec)
		lastErr = err

		if r.skipPermanent && IsPermanent(err) {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("permanent provider error, not retrying")
			break
		}
		if attempt == maxRetries {
			break
		}

		delay := r.backoff.DelayFor(attempt)
		logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("provider attempt failed, retrying")
		if err := sleepWithContext(ctx, delay); err != nil {
			return Result{}, cancelled(ctx)
		}
	}

	return Result{}, &ProviderAttemptError{
		Provider: p.Name,
		Model:    p.Model,
		Attempts: attempts,
		Err:      lastErr,
	}
}

// call performs one traced provider call. Blank content is an error.
func (r *Runner) call(ctx context.Context, p catalog.ProviderDescriptor, req Request, attempt int) (string, time.Duration, error) {
	ctx, span := tracing.StartAttemptSpan(ctx, p.Name, p.Model, attempt)
	defer span.End()

	start := time.Now()
	content, err := r.caller.CallProvider(ctx, CallRequest{
		Provider:        p.Name,
		Model:           p.Model,
		Prompt:          req.Prompt,
		Temperature:     req.Temperature,
		MaxOutputTokens: p.MaxOutputTokens,
	})
	elapsed := time.Since(start)

	if err == nil && strings.TrimSpace(content) == "" {
		err = ErrEmptyContent
	}
	tracing.RecordError(ctx, err)
	return content, elapsed, err
}
