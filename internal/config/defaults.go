package config

// DefaultBindAddress is the default bind address (localhost only).
const DefaultBindAddress = "127.0.0.1"

// DefaultAPIPort is the default port for the local JSON API.
const DefaultAPIPort = 7690

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// DefaultDataDir is the default data directory (before tilde expansion).
const DefaultDataDir = "~/.genrelay"

// DefaultConfigFilename is the name of the config file.
const DefaultConfigFilename = "genrelay.toml"

// DefaultProviderTimeout is the default per-call provider timeout in seconds.
const DefaultProviderTimeout = 60

// DefaultMaxOutputTokens is used when a provider omits max_output_tokens.
const DefaultMaxOutputTokens = 4096

// DefaultReadTimeout is the default HTTP server read timeout in seconds.
const DefaultReadTimeout = 10

// DefaultWriteTimeout is the default HTTP server write timeout in seconds.
// A full failover chain with backoff can take minutes.
const DefaultWriteTimeout = 300

// DefaultRequestTimeout bounds one generation in seconds. It stays below
// DefaultWriteTimeout so the error response still reaches the client.
const DefaultRequestTimeout = 280

// DefaultIdleTimeout is the default HTTP server idle timeout in seconds.
const DefaultIdleTimeout = 120

// DefaultMaxBodySize is the default maximum request body size in bytes (1 MB).
const DefaultMaxBodySize = 1 << 20

// DefaultMaxRetries is the default number of attempts per provider.
const DefaultMaxRetries = 3

// DefaultBackoffBaseMs is the backoff base in milliseconds.
const DefaultBackoffBaseMs = 1000

// DefaultBackoffCeilingMs is the backoff ceiling in milliseconds.
const DefaultBackoffCeilingMs = 10000

// Preset temperatures.
const (
	DefaultLongContentTemperature     = 0.9
	DefaultPremiumAnalysisTemperature = 0.8
	DefaultChatTemperature            = 0.7
)

// DefaultTelemetryCapacity is the maximum number of attempt records kept in memory.
const DefaultTelemetryCapacity = 100

// DefaultTrimIntervalSeconds is how often the telemetry log is trimmed (5 min).
const DefaultTrimIntervalSeconds = 300

// DefaultRetentionDays is how long persisted attempts and generations are kept.
const DefaultRetentionDays = 30

// DefaultRedisKey is the list key used by the Redis telemetry mirror.
const DefaultRedisKey = "genrelay:attempts"

// DefaultCBFailureThreshold is the number of consecutive failed provider
// runs before the circuit opens.
const DefaultCBFailureThreshold = 5

// DefaultCBResetTimeout is the circuit breaker reset timeout in seconds.
const DefaultCBResetTimeout = 60

// DefaultCBHalfOpenMax is the number of successful calls in half-open state to close the circuit.
const DefaultCBHalfOpenMax = 1

// DefaultTracingExporter is the default tracing exporter type.
const DefaultTracingExporter = "otlp-grpc"

// DefaultTracingEndpoint is the default OTLP collector endpoint.
const DefaultTracingEndpoint = "localhost:4317"

// DefaultTracingServiceName is the default service name for traces.
const DefaultTracingServiceName = "genrelay"

// DefaultTracingSampleRate is the default sampling rate (1.0 = 100%).
const DefaultTracingSampleRate = 1.0

// ValidLogLevels lists the allowed log level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// ValidProviderFormats lists the wire formats the upstream caller speaks.
var ValidProviderFormats = []string{"openai", "anthropic"}

// ValidTaskNames lists the [tasks.*] table keys.
var ValidTaskNames = []string{"long_content", "premium_analysis", "chat"}

// ValidTracingExporters lists the span exporters tracing.Init can build.
var ValidTracingExporters = []string{"stdout", "otlp-grpc", "otlp-http"}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:  DefaultBindAddress,
			APIPort:      DefaultAPIPort,
			LogLevel:     DefaultLogLevel,
			DataDir:      DefaultDataDir,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
		},
		Providers: map[string]ProviderConfig{
			"anthropic": {
				Model:           "claude-sonnet-4-20250514",
				APIBase:         "https://api.anthropic.com/v1",
				Format:          "anthropic",
				KeyRef:          "keyring://genrelay/anthropic",
				Enabled:         true,
				MaxOutputTokens: 8192,
				Timeout:         DefaultProviderTimeout,
			},
			"openai": {
				Model:           "gpt-4o",
				APIBase:         "https://api.openai.com/v1",
				Format:          "openai",
				KeyRef:          "keyring://genrelay/openai",
				Enabled:         true,
				MaxOutputTokens: 4096,
				Timeout:         DefaultProviderTimeout,
			},
			"gemini": {
				Model:           "gemini-2.0-flash",
				APIBase:         "https://generativelanguage.googleapis.com/v1beta/openai",
				Format:          "openai",
				KeyRef:          "keyring://genrelay/gemini",
				Enabled:         true,
				MaxOutputTokens: 8192,
				Timeout:         DefaultProviderTimeout,
			},
		},
		Tasks: map[string]TaskConfig{
			"long_content": {Providers: []TaskProvider{
				{Name: "gemini", Priority: 1},
				{Name: "anthropic", Priority: 2},
				{Name: "openai", Priority: 3},
			}},
			"premium_analysis": {Providers: []TaskProvider{
				{Name: "anthropic", Priority: 1},
				{Name: "openai", Priority: 2},
				{Name: "gemini", Priority: 3},
			}},
			"chat": {Providers: []TaskProvider{
				{Name: "openai", Priority: 1},
				{Name: "gemini", Priority: 2},
				{Name: "anthropic", Priority: 3},
			}},
		},
		Orchestration: OrchestrationConfig{
			MaxRetries:           DefaultMaxRetries,
			BackoffBaseMs:        DefaultBackoffBaseMs,
			BackoffCeilingMs:     DefaultBackoffCeilingMs,
			SkipPermanentRetries: true,
			RequestTimeout:       DefaultRequestTimeout,
		},
		Presets: PresetsConfig{
			LongContentTemperature:     DefaultLongContentTemperature,
			PremiumAnalysisTemperature: DefaultPremiumAnalysisTemperature,
			ChatTemperature:            DefaultChatTemperature,
		},
		Telemetry: TelemetryConfig{
			Capacity:            DefaultTelemetryCapacity,
			TrimIntervalSeconds: DefaultTrimIntervalSeconds,
			Persist:             true,
			RetentionDays:       DefaultRetentionDays,
			RedisKey:            DefaultRedisKey,
		},
		Resilience: ResilienceConfig{
			CBEnabled:          false,
			CBFailureThreshold: DefaultCBFailureThreshold,
			CBResetTimeoutSec:  DefaultCBResetTimeout,
			CBHalfOpenMax:      DefaultCBHalfOpenMax,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    DefaultTracingExporter,
			Endpoint:    DefaultTracingEndpoint,
			ServiceName: DefaultTracingServiceName,
			SampleRate:  DefaultTracingSampleRate,
		},
	}
}
