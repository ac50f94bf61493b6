package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/genrelay/internal/config"
	"github.com/allaspectsdev/genrelay/internal/metrics"
	"github.com/allaspectsdev/genrelay/internal/store"
	"github.com/allaspectsdev/genrelay/internal/tracing"
	"github.com/allaspectsdev/genrelay/internal/version"
)

const (
	logFilename   = "genrelay.log"
	shutdownGrace = 30 * time.Second
	stopWait      = 3 * time.Second
)

// Run starts the daemon and blocks until SIGINT or SIGTERM, or until the API
// server fails. In-flight generations get shutdownGrace to finish; any
// still running are then cancelled and recorded before the store closes.
func Run(cfg *config.Config, foreground bool) error {
	dataDir := expandHome(cfg.Server.DataDir)
	logFile, err := setupLogging(dataDir, cfg.Server.LogLevel, foreground)
	if err != nil {
		return err
	}
	defer logFile.Close()
	log.Info().Str("version", version.Version).Str("data_dir", dataDir).
		Bool("foreground", foreground).Msg("genrelay starting")

	if err := AcquirePID(dataDir); err != nil {
		return err
	}
	defer func() {
		if err := RemovePID(dataDir); err != nil {
			log.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flushTraces, err := tracing.Init(ctx, cfg.Tracing, version.Version)
	if err != nil {
		return fmt.Errorf("initialising tracing: %w", err)
	}
	defer func() {
		fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := flushTraces(fctx); err != nil {
			log.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	app, err := Build(ctx, cfg, log.Logger, BuildOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	if w := watchConfig(dataDir); w != nil {
		defer w.Close()
	}

	// Background jobs outlive the signal so they stop only after the server
	// has drained; the store must stay open until then.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	bgDone := app.StartBackground(bgCtx)
	defer func() {
		bgCancel()
		<-bgDone
		log.Info().Msg("genrelay stopped")
	}()

	return serve(ctx, app, foreground)
}

// setupLogging points the global zerolog logger at dataDir/genrelay.log,
// plus a console writer in the foreground.
func setupLogging(dataDir, level string, foreground bool) (io.Closer, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	path := filepath.Join(dataDir, logFilename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", path, err)
	}

	var out io.Writer = f
	if foreground {
		out = zerolog.MultiLevelWriter(f, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	}
	zerolog.SetGlobalLevel(ParseLogLevel(level))
	log.Logger = zerolog.New(out).With().Timestamp().Str("service", "genrelay").Logger()
	return f, nil
}

// watchConfig hot-reloads the log level. Providers and tasks are fixed for
// the life of the catalog, so their changes wait for a restart.
func watchConfig(dataDir string) *config.Watcher {
	path := config.ConfigFilePath()
	if path == "" {
		path = filepath.Join(dataDir, config.DefaultConfigFilename)
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	w, err := config.Watch(path, log.Logger, func(_, next *config.Config) {
		zerolog.SetGlobalLevel(ParseLogLevel(next.Server.LogLevel))
		log.Info().Str("log_level", next.Server.LogLevel).Msg("provider changes apply on restart")
	})
	if err != nil {
		log.Warn().Err(err).Msg("config hot-reload disabled")
		return nil
	}
	log.Info().Str("file", path).Msg("config watcher started")
	return w
}

// serve runs the API server until ctx ends or the listener fails.
func serve(ctx context.Context, app *App, foreground bool) error {
	srv, err := app.Server()
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	sc := app.Config.Server

	errCh := make(chan error, 1)
	go func() {
		if sc.TLSEnabled {
			errCh <- srv.StartTLS(sc.CertFile, sc.KeyFile)
		} else {
			errCh <- srv.Start()
		}
	}()

	log.Info().Str("addr", srv.Addr()).Bool("tls", sc.TLSEnabled).Msg("genrelay is ready")
	if foreground {
		fmt.Printf("\n  genrelay is running!\n  API: %s/api\n\n", localURL(app.Config))
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("fatal server error")
			return err
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("API server shutdown error")
	}
	return nil
}

func localURL(cfg *config.Config) string {
	scheme := "http"
	if cfg.Server.TLSEnabled {
		scheme = "https"
	}
	return fmt.Sprintf("%s://localhost:%d", scheme, cfg.Server.APIPort)
}

// Stop sends SIGTERM to the daemon named by the PID file and waits
// briefly for it to exit.
func Stop() error {
	dataDir := expandHome(config.Get().Server.DataDir)
	pid, err := ReadPID(dataDir)
	if err != nil {
		return fmt.Errorf("genrelay does not appear to be running: %w", err)
	}
	if !isProcessAlive(pid) {
		if rmErr := RemovePID(dataDir); rmErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to remove stale PID file: %v\n", rmErr)
		}
		return fmt.Errorf("genrelay is not running (stale PID file removed)")
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signalling PID %d: %w", pid, err)
	}
	fmt.Printf("Sent SIGTERM to genrelay (PID %d)\n", pid)

	deadline := time.Now().Add(stopWait)
	for isProcessAlive(pid) && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

// Status checks if the daemon is running and prints a summary.
func Status() error {
	cfg := config.Get()
	dataDir := expandHome(cfg.Server.DataDir)

	if !IsRunning(dataDir) {
		fmt.Println("genrelay is not running")
		return nil
	}

	pid, _ := ReadPID(dataDir)
	fmt.Printf("genrelay is running (PID %d)\n", pid)

	stats, err := FetchStats(cfg)
	if err != nil {
		fmt.Println("  (API unreachable)")
		return nil
	}
	PrintStats(os.Stdout, stats)
	return nil
}

// FetchStats reads /api/stats from the local daemon.
func FetchStats(cfg *config.Config) (*metrics.Stats, error) {
	req, err := http.NewRequest(http.MethodGet, localURL(cfg)+"/api/stats", nil)
	if err != nil {
		return nil, err
	}
	if cfg.Auth.Enabled && cfg.Auth.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Auth.Token)
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stats endpoint returned %d", resp.StatusCode)
	}

	var stats metrics.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decoding stats: %w", err)
	}
	return &stats, nil
}

// PrintStats writes a human-readable summary of stats to w.
func PrintStats(w io.Writer, stats *metrics.Stats) {
	fmt.Fprintf(w, "\n  Uptime:       %s\n", stats.Uptime)
	fmt.Fprintf(w, "  Generations:  %d (%d succeeded, %d failed, %d cancelled)\n",
		stats.TotalGenerations, stats.Succeeded, stats.Failed, stats.Cancelled)
	fmt.Fprintf(w, "  Success rate: %.1f%%\n", stats.SuccessRate)
	fmt.Fprintf(w, "  Failovers:    %d\n", stats.Failovers)
	fmt.Fprintf(w, "  Tokens:       %d in / %d out\n", stats.TokensIn, stats.TokensOut)
	fmt.Fprintf(w, "  Cost:         $%.4f\n", stats.CostUSD)
	fmt.Fprintf(w, "  Active:       %d\n", stats.ActiveGenerations)
}

// runPruner periodically deletes persisted history older than
// retentionDays.
func runPruner(ctx context.Context, st *store.Store, retentionDays int, logger zerolog.Logger) {
	if retentionDays <= 0 {
		return
	}

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruneOnce(st, retentionDays, logger)
		}
	}
}

func pruneOnce(st *store.Store, retentionDays int, logger zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("data pruner: recovered from panic")
		}
	}()
	n, err := st.Prune(retentionDays)
	if err != nil {
		logger.Error().Err(err).Msg("data pruning failed")
	} else if n > 0 {
		logger.Info().Int64("rows", n).Int("retention_days", retentionDays).Msg("pruned old data")
	}
}

// ParseLogLevel converts a string log level to a zerolog.Level.
func ParseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
