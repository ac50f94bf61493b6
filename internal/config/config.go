package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

var (
	current          atomic.Pointer[Config]
	loadedConfigFile atomic.Value // string
)

// Get returns the current Config, or the defaults before the first Load.
func Get() *Config {
	if c := current.Load(); c != nil {
		return c
	}
	d := DefaultConfig()
	current.Store(d)
	return d
}

func set(cfg *Config) {
	current.Store(cfg)
}

// Config is the top-level configuration for genrelay.
type Config struct {
	Server        ServerConfig              `mapstructure:"server"        toml:"server"`
	Auth          AuthConfig                `mapstructure:"auth"          toml:"auth"`
	Providers     map[string]ProviderConfig `mapstructure:"providers"     toml:"providers"`
	Tasks         map[string]TaskConfig     `mapstructure:"tasks"         toml:"tasks"`
	Orchestration OrchestrationConfig       `mapstructure:"orchestration" toml:"orchestration"`
	Presets       PresetsConfig             `mapstructure:"presets"       toml:"presets"`
	Telemetry     TelemetryConfig           `mapstructure:"telemetry"     toml:"telemetry"`
	Resilience    ResilienceConfig          `mapstructure:"resilience"    toml:"resilience"`
	Tracing       TracingConfig             `mapstructure:"tracing"       toml:"tracing"`
}

// ServerConfig holds the daemon and API listener settings.
type ServerConfig struct {
	BindAddress  string `mapstructure:"bind_address"  toml:"bind_address"`
	APIPort      int    `mapstructure:"api_port"      toml:"api_port"`
	LogLevel     string `mapstructure:"log_level"     toml:"log_level"`
	DataDir      string `mapstructure:"data_dir"      toml:"data_dir"`
	TLSEnabled   bool   `mapstructure:"tls_enabled"   toml:"tls_enabled"`
	CertFile     string `mapstructure:"cert_file"     toml:"cert_file"`
	KeyFile      string `mapstructure:"key_file"      toml:"key_file"`
	ReadTimeout  int    `mapstructure:"read_timeout"  toml:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout" toml:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"  toml:"idle_timeout"`
	MaxBodySize  int64  `mapstructure:"max_body_size" toml:"max_body_size"`
}

// AuthConfig holds the API bearer-token settings.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
	Token   string `mapstructure:"token"   toml:"token"`
}

// ProviderConfig describes one generation backend.
type ProviderConfig struct {
	Model           string `mapstructure:"model"             toml:"model"`
	APIBase         string `mapstructure:"api_base"          toml:"api_base"`
	Format          string `mapstructure:"format"            toml:"format"` // "openai" or "anthropic"
	KeyRef          string `mapstructure:"key_ref"           toml:"key_ref"`
	Enabled         bool   `mapstructure:"enabled"           toml:"enabled"`
	MaxOutputTokens int    `mapstructure:"max_output_tokens" toml:"max_output_tokens"`
	Timeout         int    `mapstructure:"timeout"           toml:"timeout"` // seconds
	// RateLimit caps outbound requests per second to this provider; 0 disables it.
	RateLimit float64 `mapstructure:"rate_limit" toml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" toml:"rate_burst"`
}

// TimeoutDuration returns the provider timeout as a time.Duration.
func (p ProviderConfig) TimeoutDuration() time.Duration {
	if p.Timeout <= 0 {
		return DefaultProviderTimeout * time.Second
	}
	return time.Duration(p.Timeout) * time.Second
}

// MaxOutputTokensOrDefault returns the configured output cap, falling back
// to DefaultMaxOutputTokens.
func (p ProviderConfig) MaxOutputTokensOrDefault() int {
	if p.MaxOutputTokens <= 0 {
		return DefaultMaxOutputTokens
	}
	return p.MaxOutputTokens
}

// TaskConfig is the ranked provider list for one task type.
type TaskConfig struct {
	Providers []TaskProvider `mapstructure:"providers" toml:"providers"`
}

// TaskProvider ranks a provider within a task. Lower priority is tried first.
type TaskProvider struct {
	Name     string `mapstructure:"name"     toml:"name"`
	Priority int    `mapstructure:"priority" toml:"priority"`
}

// OrchestrationConfig controls retries and backoff of the failover executor.
type OrchestrationConfig struct {
	MaxRetries           int  `mapstructure:"max_retries"            toml:"max_retries"`
	BackoffBaseMs        int  `mapstructure:"backoff_base_ms"        toml:"backoff_base_ms"`
	BackoffCeilingMs     int  `mapstructure:"backoff_ceiling_ms"     toml:"backoff_ceiling_ms"`
	SkipPermanentRetries bool `mapstructure:"skip_permanent_retries" toml:"skip_permanent_retries"`
	RequestTimeout       int  `mapstructure:"request_timeout"        toml:"request_timeout"` // seconds, 0 = none
}

// BackoffBase returns the backoff base as a time.Duration.
func (o OrchestrationConfig) BackoffBase() time.Duration {
	return time.Duration(o.BackoffBaseMs) * time.Millisecond
}

// BackoffCeiling returns the backoff ceiling as a time.Duration.
func (o OrchestrationConfig) BackoffCeiling() time.Duration {
	return time.Duration(o.BackoffCeilingMs) * time.Millisecond
}

// RequestTimeoutDuration returns the whole-request deadline, or zero when unset.
func (o OrchestrationConfig) RequestTimeoutDuration() time.Duration {
	if o.RequestTimeout <= 0 {
		return 0
	}
	return time.Duration(o.RequestTimeout) * time.Second
}

// PresetsConfig pins the sampling temperature per convenience wrapper.
type PresetsConfig struct {
	LongContentTemperature     float64 `mapstructure:"long_content_temperature"     toml:"long_content_temperature"`
	PremiumAnalysisTemperature float64 `mapstructure:"premium_analysis_temperature" toml:"premium_analysis_temperature"`
	ChatTemperature            float64 `mapstructure:"chat_temperature"             toml:"chat_temperature"`
}

// TelemetryConfig controls the attempt log and its mirrors.
type TelemetryConfig struct {
	Capacity            int    `mapstructure:"capacity"              toml:"capacity"`
	TrimIntervalSeconds int    `mapstructure:"trim_interval_seconds" toml:"trim_interval_seconds"`
	Persist             bool   `mapstructure:"persist"               toml:"persist"`
	RetentionDays       int    `mapstructure:"retention_days"        toml:"retention_days"`
	RedisAddr           string `mapstructure:"redis_addr"            toml:"redis_addr"`
	RedisKey            string `mapstructure:"redis_key"             toml:"redis_key"`
}

// TrimInterval returns the periodic trim interval.
func (t TelemetryConfig) TrimInterval() time.Duration {
	return time.Duration(t.TrimIntervalSeconds) * time.Second
}

// TracingConfig controls OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"      toml:"enabled"`
	Exporter    string  `mapstructure:"exporter"     toml:"exporter"`     // "stdout", "otlp-grpc", "otlp-http"
	Endpoint    string  `mapstructure:"endpoint"     toml:"endpoint"`     // e.g. "localhost:4317"
	ServiceName string  `mapstructure:"service_name" toml:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"  toml:"sample_rate"` // 0.0 to 1.0
	Insecure    bool    `mapstructure:"insecure"     toml:"insecure"`
}

// ResilienceConfig controls the per-provider circuit breaker.
type ResilienceConfig struct {
	CBEnabled          bool `mapstructure:"circuit_breaker_enabled"  toml:"circuit_breaker_enabled"`
	CBFailureThreshold int  `mapstructure:"cb_failure_threshold"     toml:"cb_failure_threshold"`
	CBResetTimeoutSec  int  `mapstructure:"cb_reset_timeout_seconds" toml:"cb_reset_timeout_seconds"`
	CBHalfOpenMax      int  `mapstructure:"cb_half_open_max_calls"   toml:"cb_half_open_max_calls"`
}

// Load resolves the configuration and makes it current. Sources, highest
// precedence first: GENRELAY_* environment variables (GENRELAY_SERVER_API_PORT
// sets server.api_port), explicitPath when given, otherwise the first of
// ~/.genrelay/genrelay.toml and ./genrelay.toml, then built-in defaults.
// An invalid result is rejected and the previous config stays current.
func Load(explicitPath string) (*Config, error) {
	v, err := newViper(explicitPath)
	if err != nil {
		return nil, err
	}
	if cf := v.ConfigFileUsed(); cf != "" {
		loadedConfigFile.Store(cf)
	}

	cfg := DefaultConfig()
	if v.IsSet("tasks") {
		// A file that declares [tasks.*] owns the whole table.
		cfg.Tasks = map[string]TaskConfig{}
	}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Server.DataDir = expandHome(cfg.Server.DataDir)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	set(cfg)
	return cfg, nil
}

func newViper(explicitPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := setViperDefaults(v); err != nil {
		return nil, err
	}
	v.SetEnvPrefix("GENRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		v.SetConfigName("genrelay")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".genrelay"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

// InitConfig writes the defaults to ~/.genrelay/genrelay.toml unless a file
// is already there.
func InitConfig() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}
	path := filepath.Join(home, ".genrelay", DefaultConfigFilename)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}
	if err := writeTOML(path, DefaultConfig()); err != nil {
		return err
	}
	fmt.Printf("Config written to %s\n", path)
	return nil
}

// ExportConfig writes the current config to path as TOML. The file may hold
// the API token, so it is created 0600.
func ExportConfig(path string) error {
	return writeTOML(path, Get())
}

func writeTOML(path string, cfg *Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ImportConfig validates a TOML file, makes it current, and copies it over
// the loaded config file so it survives a restart.
func ImportConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.Server.DataDir = expandHome(cfg.Server.DataDir)
	if err := validate(cfg); err != nil {
		return err
	}
	set(cfg)

	if dest := ConfigFilePath(); dest != "" {
		return writeTOML(dest, cfg)
	}
	return nil
}

// ConfigFilePath returns the path of the config file that was loaded, or
// empty if no file was found.
func ConfigFilePath() string {
	if v, ok := loadedConfigFile.Load().(string); ok {
		return v
	}
	return ""
}

// setViperDefaults registers every scalar key of DefaultConfig so env vars
// bind even without a config file. The providers and tasks tables are maps
// and come from DefaultConfig directly.
func setViperDefaults(v *viper.Viper) error {
	var tree map[string]any
	if err := mapstructure.Decode(DefaultConfig(), &tree); err != nil {
		return fmt.Errorf("flattening defaults: %w", err)
	}
	delete(tree, "providers")
	delete(tree, "tasks")
	setDefaults(v, "", tree)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := prefix + k
		if sub, ok := val.(map[string]any); ok {
			setDefaults(v, key+".", sub)
			continue
		}
		v.SetDefault(key, val)
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
