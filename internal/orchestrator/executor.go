// Package orchestrator runs a generation request against a prioritised
// list of providers: each provider is retried with backoff, and on
// exhaustion the next one is tried until one returns content.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/allaspectsdev/genrelay/internal/catalog"
	"github.com/allaspectsdev/genrelay/internal/telemetry"
	"github.com/allaspectsdev/genrelay/internal/tracing"
)

// CandidateSource resolves the ordered providers for a task type.
// *catalog.Catalog implements it.
type CandidateSource interface {
	CandidatesFor(task catalog.TaskType) ([]catalog.ProviderDescriptor, error)
}

// Generator is the public generation surface, implemented by *Executor.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// Options configures an Executor. Catalog and Caller are required.
type Options struct {
	Catalog CandidateSource
	Caller  Caller

	// Log is the in-memory attempt log behind Stats and Cleanup. A log
	// with telemetry.DefaultCapacity is created when nil.
	Log *telemetry.Log
	// Recorder receives every record in addition to Log.
	Recorder telemetry.Recorder

	// Backoff defaults to DefaultBackoff when zero.
	Backoff Backoff
	// MaxRetries is used for requests that leave it unset.
	MaxRetries int
	// SkipPermanentRetries fails over immediately on IsPermanent errors.
	SkipPermanentRetries bool
	// RequestTimeout bounds a whole Generate call when positive.
	RequestTimeout time.Duration

	// Breakers enables per-provider circuit breaking when non-nil.
	Breakers *Breakers

	Logger *zerolog.Logger
}

// Executor is the failover orchestrator. It is safe for concurrent use;
// each Generate runs entirely on the calling goroutine.
type Executor struct {
	catalog        CandidateSource
	runner         *Runner
	log            *telemetry.Log
	breakers       *Breakers
	maxRetries     int
	requestTimeout time.Duration
	logger         zerolog.Logger
}

// New builds an Executor from opts.
func New(opts Options) (*Executor, error) {
	if opts.Catalog == nil {
		return nil, errors.New("orchestrator: catalog is required")
	}
	if opts.Caller == nil {
		return nil, errors.New("orchestrator: caller is required")
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str("component", "orchestrator").Logger()

	log := opts.Log
	if log == nil {
		log = telemetry.NewLog(telemetry.DefaultCapacity)
	}
	backoff := opts.Backoff
	if backoff == (Backoff{}) {
		backoff = DefaultBackoff()
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	return &Executor{
		catalog:        opts.Catalog,
		runner:         NewRunner(opts.Caller, backoff, telemetry.Multi(log, opts.Recorder), opts.SkipPermanentRetries, logger),
		log:            log,
		breakers:       opts.Breakers,
		maxRetries:     maxRetries,
		requestTimeout: opts.RequestTimeout,
		logger:         logger,
	}, nil
}

// Generate walks the candidates for req.TaskType in priority order and
// returns the first successful result.
//
// Catalog errors (ErrInvalidTaskType, ErrNoProvidersConfigured) are
// returned before any call is made. If every candidate fails the error is
// an *AllProvidersFailedError. Cancellation returns an error matching
// ErrCancelled and the context error; remaining candidates are skipped.
func (e *Executor) Generate(ctx context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}

	candidates, err := e.catalog.CandidatesFor(req.TaskType)
	if err != nil {
		return Result{}, err
	}

	if e.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.requestTimeout)
		defer cancel()
	}

	ctx, span := tracing.StartGenerateSpan(ctx, req.TaskType.String())
	defer span.End()

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = e.maxRetries
	}
	logger := e.logger.With().Str("task_type", req.TaskType.String()).Logger()

	var lastErr error
	tried := 0
	for i, cand := range candidates {
		if ctx.Err() != nil {
			err := cancelled(ctx)
			tracing.RecordError(ctx, err)
			return Result{}, err
		}

		var breaker *CircuitBreaker
		if e.breakers != nil {
			breaker = e.breakers.Get(cand.Name)
			if !breaker.Allow() {
				logger.Debug().Str("provider", cand.Name).Msg("circuit breaker open, skipping provider")
				if lastErr == nil {
					lastErr = fmt.Errorf("provider %s: %w", cand.Name, ErrCircuitOpen)
				}
				continue
			}
		}

		tried++
		notify(req.Observer, cand.Name, logger)

		res, err := e.runner.Run(ctx, cand, req, maxRetries)
		if err == nil {
			if breaker != nil {
				breaker.RecordSuccess()
			}
			tracing.SetGenerateResult(ctx, res.Provider, res.Model, tried)
			logger.Info().Str("provider", res.Provider).Int("providers_tried", tried).Msg("generation succeeded")
			return res, nil
		}
		if errors.Is(err, ErrCancelled) {
			tracing.RecordError(ctx, err)
			return Result{}, err
		}

		if breaker != nil {
			breaker.RecordFailure()
		}
		lastErr = err
		if i < len(candidates)-1 {
			logger.Warn().Err(err).Str("provider", cand.Name).Str("next", candidates[i+1].Name).Msg("provider exhausted, failing over")
		}
	}

	failure := &AllProvidersFailedError{TaskType: req.TaskType, Tried: tried, LastErr: lastErr}
	tracing.RecordError(ctx, failure)
	logger.Error().Err(lastErr).Int("providers_tried", tried).Msg("all providers failed")
	return Result{}, failure
}

// Stats returns statistics over the in-memory attempt log.
func (e *Executor) Stats() telemetry.Stats {
	return e.log.Stats()
}

// Cleanup trims the attempt log to its capacity and returns how many
// records were dropped.
func (e *Executor) Cleanup() int {
	return e.log.Trim()
}

// Log exposes the in-memory attempt log.
func (e *Executor) Log() *telemetry.Log {
	return e.log
}

// Breakers returns the circuit breaker registry, or nil when disabled.
func (e *Executor) Breakers() *Breakers {
	return e.breakers
}
