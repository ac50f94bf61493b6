package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// PrometheusHandler serves the collector in the Prometheus text exposition
// format, version 0.0.4.
func PrometheusHandler(c *Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := c.Stats()
		var e exposition

		e.scalar("genrelay_generations_total", "counter", "Total number of generation requests.", s.TotalGenerations)
		e.scalar("genrelay_generations_succeeded_total", "counter", "Generations that returned content.", s.Succeeded)
		e.scalar("genrelay_generations_failed_total", "counter", "Generations where every provider failed.", s.Failed)
		e.scalar("genrelay_generations_cancelled_total", "counter", "Generations cancelled by the caller.", s.Cancelled)
		e.scalar("genrelay_failovers_total", "counter", "Successful generations served by a fallback provider.", s.Failovers)
		e.scalar("genrelay_tokens_in_total", "counter", "Total prompt tokens sent to providers.", s.TokensIn)
		e.scalar("genrelay_tokens_out_total", "counter", "Total completion tokens received.", s.TokensOut)
		e.scalar("genrelay_cost_usd_total", "counter", "Estimated provider cost in USD.", s.CostUSD)
		e.scalar("genrelay_active_generations", "gauge", "Number of generations currently in flight.", s.ActiveGenerations)
		e.scalar("genrelay_uptime_seconds", "gauge", "Seconds since the service started.", time.Since(c.startTime).Seconds())

		e.counters("genrelay_provider_attempts_total", "Provider attempts by provider and status.", c.attempts)
		e.histograms("genrelay_provider_attempt_duration_seconds", "Provider attempt duration in seconds.", c.attemptLatency)
		e.counters("genrelay_task_generations_total", "Generations by task type and outcome.", c.generationsByTask)
		e.histograms("genrelay_generation_duration_seconds", "End-to-end generation duration in seconds by task type.", c.generationLatency)
		e.gauges("genrelay_provider_circuit_state", "Circuit breaker state per provider (0=closed, 1=open, 2=half-open).", c.circuitState)

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.Write(e.buf.Bytes()) //nolint:errcheck
	}
}

// exposition accumulates one scrape so a slow client never holds a vec lock.
type exposition struct {
	buf bytes.Buffer
}

func (e *exposition) header(name, kind, help string) {
	fmt.Fprintf(&e.buf, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

func (e *exposition) sample(name, labels string, value string) {
	e.buf.WriteString(name)
	e.buf.WriteString(labels)
	e.buf.WriteByte(' ')
	e.buf.WriteString(value)
	e.buf.WriteByte('\n')
}

func (e *exposition) scalar(name, kind, help string, value any) {
	e.header(name, kind, help)
	e.sample(name, "", formatValue(value))
}

func (e *exposition) counters(name, help string, v *counterVec) {
	entries := v.snapshot()
	if len(entries) == 0 {
		return
	}
	e.header(name, "counter", help)
	for _, c := range entries {
		e.sample(name, labelSet(c.labels, ""), strconv.FormatInt(c.value, 10))
	}
}

func (e *exposition) gauges(name, help string, v *gaugeVec) {
	entries := v.snapshot()
	if len(entries) == 0 {
		return
	}
	e.header(name, "gauge", help)
	for _, g := range entries {
		e.sample(name, labelSet(g.labels, ""), formatValue(g.value))
	}
}

// histograms writes cumulative buckets; observe stores per-bucket counts.
func (e *exposition) histograms(name, help string, v *histogramVec) {
	hs := v.snapshot()
	if len(hs) == 0 {
		return
	}
	e.header(name, "histogram", help)
	for _, h := range hs {
		var cumulative int64
		for i, bound := range h.buckets {
			cumulative += h.counts[i]
			e.sample(name+"_bucket", labelSet(h.labels, formatValue(bound)), strconv.FormatInt(cumulative, 10))
		}
		e.sample(name+"_bucket", labelSet(h.labels, "+Inf"), strconv.FormatInt(h.count, 10))
		e.sample(name+"_sum", labelSet(h.labels, ""), formatValue(h.sum))
		e.sample(name+"_count", labelSet(h.labels, ""), strconv.FormatInt(h.count, 10))
	}
}

// labelSet renders labels in key order, with le appended last when set.
func labelSet(labels map[string]string, le string) string {
	if len(labels) == 0 && le == "" {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		pairs = append(pairs, k+"="+strconv.Quote(labels[k]))
	}
	if le != "" {
		pairs = append(pairs, "le="+strconv.Quote(le))
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

func formatValue(v any) string {
	switch n := v.(type) {
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64)
	default:
		return fmt.Sprint(n)
	}
}
