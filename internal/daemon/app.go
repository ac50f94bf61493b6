package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/allaspectsdev/genrelay/internal/catalog"
	"github.com/allaspectsdev/genrelay/internal/config"
	"github.com/allaspectsdev/genrelay/internal/metrics"
	"github.com/allaspectsdev/genrelay/internal/orchestrator"
	"github.com/allaspectsdev/genrelay/internal/server"
	"github.com/allaspectsdev/genrelay/internal/store"
	"github.com/allaspectsdev/genrelay/internal/telemetry"
	"github.com/allaspectsdev/genrelay/internal/upstream"
	"github.com/allaspectsdev/genrelay/internal/vault"
)

const dbFilename = "genrelay.db"

// App holds the wired subsystems of a genrelay process. The daemon serves
// it over HTTP; one-shot CLI commands call Executor or Presets directly.
type App struct {
	Config    *config.Config
	Store     *store.Store // nil when telemetry.persist is false
	Vault     *vault.Vault
	Catalog   *catalog.Catalog
	Collector *metrics.Collector
	Executor  *orchestrator.Executor
	Presets   *orchestrator.Presets
	Mirror    *telemetry.RedisMirror // nil unless telemetry.redis_addr is set

	logger zerolog.Logger
}

// BuildOptions overrides pieces of the default wiring.
type BuildOptions struct {
	// Caller replaces the HTTP upstream client.
	Caller orchestrator.Caller
	// Credentials replaces the vault as the catalog's credential check.
	Credentials catalog.CredentialChecker
}

// Build wires every subsystem from cfg. The caller owns the App and must
// Close it.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts BuildOptions) (*App, error) {
	a := &App{
		Config:    cfg,
		Vault:     vault.New(providerNames(cfg)...),
		Collector: metrics.NewCollector(),
		logger:    logger,
	}

	creds := opts.Credentials
	if creds == nil {
		creds = a.Vault
	}
	cat, err := catalog.FromConfig(cfg, creds)
	if err != nil {
		return nil, fmt.Errorf("building provider catalog: %w", err)
	}
	a.Catalog = cat
	for _, l := range cat.List() {
		available := 0
		for _, p := range l.Providers {
			if p.Available() {
				available++
			}
		}
		logger.Info().Str("task_type", l.TaskType.String()).
			Int("configured", len(l.Providers)).Int("available", available).
			Msg("task providers loaded")
	}

	recorders := []telemetry.Recorder{a.Collector}
	if cfg.Telemetry.Persist {
		dataDir := expandHome(cfg.Server.DataDir)
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
		}
		dbPath := filepath.Join(dataDir, dbFilename)
		st, err := store.Open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		st.SetLogger(logger.With().Str("component", "store").Logger())
		a.Store = st
		recorders = append(recorders, st)
		logger.Info().Str("db_path", dbPath).Msg("store opened")
	}
	if cfg.Telemetry.RedisAddr != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		mirror, err := telemetry.DialRedisMirror(dialCtx, cfg.Telemetry.RedisAddr, cfg.Telemetry.RedisKey,
			cfg.Telemetry.Capacity, logger.With().Str("component", "redis_mirror").Logger())
		cancel()
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Mirror = mirror
		recorders = append(recorders, mirror)
		logger.Info().Str("addr", cfg.Telemetry.RedisAddr).Msg("redis telemetry mirror connected")
	}

	caller := opts.Caller
	if caller == nil {
		caller = upstream.NewClient(cfg.Providers, a.Vault, logger)
	}

	var breakers *orchestrator.Breakers
	if cfg.Resilience.CBEnabled {
		breakers = orchestrator.NewBreakers(
			cfg.Resilience.CBFailureThreshold,
			time.Duration(cfg.Resilience.CBResetTimeoutSec)*time.Second,
			cfg.Resilience.CBHalfOpenMax,
		)
	}

	a.Executor, err = orchestrator.New(orchestrator.Options{
		Catalog:  cat,
		Caller:   caller,
		Log:      telemetry.NewLog(cfg.Telemetry.Capacity),
		Recorder: telemetry.Multi(recorders...),
		Backoff: orchestrator.Backoff{
			Base:    cfg.Orchestration.BackoffBase(),
			Ceiling: cfg.Orchestration.BackoffCeiling(),
		},
		MaxRetries:           cfg.Orchestration.MaxRetries,
		SkipPermanentRetries: cfg.Orchestration.SkipPermanentRetries,
		RequestTimeout:       cfg.Orchestration.RequestTimeoutDuration(),
		Breakers:             breakers,
		Logger:               &logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Presets = orchestrator.NewPresets(a.Executor, Temperatures(cfg))
	return a, nil
}

// Server builds the HTTP API over the App.
func (a *App) Server() (*server.Server, error) {
	return server.New(server.Options{
		Executor:     a.Executor,
		Catalog:      a.Catalog,
		Collector:    a.Collector,
		Store:        a.Store,
		Temperatures: Temperatures(a.Config),
		Config:       a.Config,
		Logger:       &a.logger,
	})
}

// StartBackground launches the periodic log trimmers and the store pruner.
// The returned channel closes once all of them have exited after ctx ends.
func (a *App) StartBackground(ctx context.Context) <-chan struct{} {
	var waits []<-chan struct{}
	interval := a.Config.Telemetry.TrimInterval()
	waits = append(waits, telemetry.StartTrimmer(ctx, a.Executor.Log(), interval))
	if a.Mirror != nil {
		waits = append(waits, telemetry.StartTrimmer(ctx, a.Mirror, interval))
	}
	if a.Store != nil {
		pruned := make(chan struct{})
		go func() {
			defer close(pruned)
			runPruner(ctx, a.Store, a.Config.Telemetry.RetentionDays, a.logger)
		}()
		waits = append(waits, pruned)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, w := range waits {
			<-w
		}
	}()
	return done
}

// Close releases the store and the Redis connection.
func (a *App) Close() error {
	var errs []error
	if a.Mirror != nil {
		errs = append(errs, a.Mirror.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

// Temperatures maps the [presets] table onto orchestrator temperatures.
func Temperatures(cfg *config.Config) orchestrator.Temperatures {
	return orchestrator.Temperatures{
		LongContent:     cfg.Presets.LongContentTemperature,
		PremiumAnalysis: cfg.Presets.PremiumAnalysisTemperature,
		Chat:            cfg.Presets.ChatTemperature,
	}
}

func providerNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
