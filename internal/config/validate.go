package config

import (
	"fmt"
	"slices"
	"strings"
)

// problems collects every validation failure so one error reports them all.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p *problems) nonNegative(key string, v int64) {
	if v < 0 {
		p.addf("%s must be non-negative, got %d", key, v)
	}
}

func (p *problems) atLeastOne(key string, v int) {
	if v < 1 {
		p.addf("%s must be at least 1, got %d", key, v)
	}
}

func (p *problems) unitInterval(key string, v float64) {
	if !(v >= 0 && v <= 1) {
		p.addf("%s must be between 0 and 1, got %g", key, v)
	}
}

func (p *problems) oneOf(key, v string, allowed []string) {
	if !isValidEnum(v, allowed) {
		p.addf("%s must be one of %v, got %q", key, allowed, v)
	}
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed:\n  - %s", strings.Join(p, "\n  - "))
}

// validate rejects out-of-range values and dangling provider references.
func validate(cfg *Config) error {
	var p problems

	s := cfg.Server
	if s.APIPort < 1 || s.APIPort > 65535 {
		p.addf("server.api_port must be between 1 and 65535, got %d", s.APIPort)
	}
	p.oneOf("server.log_level", s.LogLevel, ValidLogLevels)
	if s.DataDir == "" {
		p.addf("server.data_dir must not be empty")
	}
	if s.TLSEnabled && (s.CertFile == "" || s.KeyFile == "") {
		p.addf("server.cert_file and server.key_file must be set when tls_enabled is true")
	}
	p.nonNegative("server.read_timeout", int64(s.ReadTimeout))
	p.nonNegative("server.write_timeout", int64(s.WriteTimeout))
	p.nonNegative("server.idle_timeout", int64(s.IdleTimeout))
	p.nonNegative("server.max_body_size", s.MaxBodySize)

	if cfg.Auth.Enabled && cfg.Auth.Token == "" {
		p.addf("auth.token must be set when auth.enabled is true")
	}

	validateProviders(&p, cfg.Providers)
	validateTasks(&p, cfg)

	o := cfg.Orchestration
	p.nonNegative("orchestration.max_retries", int64(o.MaxRetries))
	p.nonNegative("orchestration.backoff_base_ms", int64(o.BackoffBaseMs))
	p.nonNegative("orchestration.request_timeout", int64(o.RequestTimeout))
	if o.RequestTimeout > 0 && s.WriteTimeout > 0 && o.RequestTimeout >= s.WriteTimeout {
		p.addf("orchestration.request_timeout (%d) must be less than server.write_timeout (%d)", o.RequestTimeout, s.WriteTimeout)
	}
	if o.BackoffCeilingMs < o.BackoffBaseMs {
		p.addf("orchestration.backoff_ceiling_ms (%d) must be >= backoff_base_ms (%d)", o.BackoffCeilingMs, o.BackoffBaseMs)
	}

	p.unitInterval("presets.long_content_temperature", cfg.Presets.LongContentTemperature)
	p.unitInterval("presets.premium_analysis_temperature", cfg.Presets.PremiumAnalysisTemperature)
	p.unitInterval("presets.chat_temperature", cfg.Presets.ChatTemperature)

	t := cfg.Telemetry
	p.atLeastOne("telemetry.capacity", t.Capacity)
	p.atLeastOne("telemetry.trim_interval_seconds", t.TrimIntervalSeconds)
	p.atLeastOne("telemetry.retention_days", t.RetentionDays)
	if t.RedisAddr != "" && t.RedisKey == "" {
		p.addf("telemetry.redis_key must be set when redis_addr is set")
	}

	r := cfg.Resilience
	p.atLeastOne("resilience.cb_failure_threshold", r.CBFailureThreshold)
	p.atLeastOne("resilience.cb_reset_timeout_seconds", r.CBResetTimeoutSec)
	p.atLeastOne("resilience.cb_half_open_max_calls", r.CBHalfOpenMax)

	if cfg.Tracing.Enabled {
		p.oneOf("tracing.exporter", cfg.Tracing.Exporter, ValidTracingExporters)
		if cfg.Tracing.ServiceName == "" {
			p.addf("tracing.service_name must not be empty when tracing is enabled")
		}
	}
	p.unitInterval("tracing.sample_rate", cfg.Tracing.SampleRate)

	return p.err()
}

func validateProviders(p *problems, providers map[string]ProviderConfig) {
	for name, pc := range providers {
		key := "providers." + name
		if pc.APIBase == "" {
			p.addf("%s.api_base must not be empty", key)
		}
		if pc.Model == "" {
			p.addf("%s.model must not be empty", key)
		}
		if pc.Format != "" {
			p.oneOf(key+".format", pc.Format, ValidProviderFormats)
		}
		p.nonNegative(key+".max_output_tokens", int64(pc.MaxOutputTokens))
		p.nonNegative(key+".timeout", int64(pc.Timeout))
		p.nonNegative(key+".rate_burst", int64(pc.RateBurst))
		if pc.RateLimit < 0 {
			p.addf("%s.rate_limit must be non-negative, got %g", key, pc.RateLimit)
		}
	}
}

// validateTasks checks each ranked list names known, distinct providers.
func validateTasks(p *problems, cfg *Config) {
	for task, tc := range cfg.Tasks {
		if !isValidEnum(normalizeTaskName(task), ValidTaskNames) {
			p.addf("tasks.%s is not a known task type (want one of %v)", task, ValidTaskNames)
			continue
		}
		seen := make(map[string]bool, len(tc.Providers))
		for i, ref := range tc.Providers {
			switch {
			case ref.Name == "":
				p.addf("tasks.%s.providers[%d].name must not be empty", task, i)
				continue
			case seen[ref.Name]:
				p.addf("tasks.%s lists provider %q more than once", task, ref.Name)
			}
			if _, ok := cfg.Providers[ref.Name]; !ok {
				p.addf("tasks.%s.providers[%d] references unknown provider %q", task, i, ref.Name)
			}
			seen[ref.Name] = true
		}
	}
}

// normalizeTaskName maps "LONG-CONTENT" and friends onto the table key form.
func normalizeTaskName(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}

// isValidEnum matches val against allowed, ignoring case.
func isValidEnum(val string, allowed []string) bool {
	return slices.ContainsFunc(allowed, func(a string) bool { return strings.EqualFold(a, val) })
}
