// Package metrics keeps live, in-memory counters for generations and
// provider attempts and exposes them as JSON and Prometheus text.
package metrics

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/allaspectsdev/genrelay/internal/telemetry"
)

// Generation outcome labels.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Collector tracks live metrics using atomic counters for lock-free,
// concurrent-safe updates, plus labeled vectors for per-provider series.
type Collector struct {
	totalGenerations int64
	succeeded        int64
	failed           int64
	cancelled        int64
	failovers        int64

	totalTokensIn  int64
	totalTokensOut int64

	// Float64 counter stored as uint64 via math.Float64bits/Float64frombits.
	totalCostUSD uint64

	activeGenerations int64

	attempts          *counterVec
	attemptLatency    *histogramVec
	generationsByTask *counterVec
	generationLatency *histogramVec
	circuitState      *gaugeVec

	startTime time.Time
}

// Stats is a point-in-time snapshot of the collector's counters.
type Stats struct {
	Uptime            string  `json:"uptime"`
	TotalGenerations  int64   `json:"total_generations"`
	Succeeded         int64   `json:"succeeded"`
	Failed            int64   `json:"failed"`
	Cancelled         int64   `json:"cancelled"`
	Failovers         int64   `json:"failovers"`
	SuccessRate       float64 `json:"success_rate"`
	TokensIn          int64   `json:"tokens_in"`
	TokensOut         int64   `json:"tokens_out"`
	CostUSD           float64 `json:"cost_usd"`
	ActiveGenerations int64   `json:"active_generations"`
}

// Generation describes one finished Generate call.
type Generation struct {
	TaskType       string
	Provider       string
	Outcome        string
	TokensIn       int
	TokensOut      int
	CostUSD        float64
	Latency        time.Duration
	ProvidersTried int
}

// NewCollector creates a Collector with all counters at zero and the start
// time set to now.
func NewCollector() *Collector {
	return &Collector{
		startTime:         time.Now(),
		totalCostUSD:      math.Float64bits(0),
		attempts:          newCounterVec("provider", "status"),
		attemptLatency:    newHistogramVec(defaultBuckets, "provider"),
		generationsByTask: newCounterVec("task_type", "outcome"),
		generationLatency: newHistogramVec(defaultBuckets, "task_type"),
		circuitState:      newGaugeVec("provider"),
	}
}

// Record counts one provider attempt. It implements telemetry.Recorder.
func (c *Collector) Record(r telemetry.AttemptRecord) {
	c.attempts.inc(r.Provider, string(r.Status))
	c.attemptLatency.observe(float64(r.DurationMs)/1000, r.Provider)
}

// RecordGeneration updates the generation counters.
func (c *Collector) RecordGeneration(g Generation) {
	atomic.AddInt64(&c.totalGenerations, 1)
	switch g.Outcome {
	case OutcomeSucceeded:
		atomic.AddInt64(&c.succeeded, 1)
		if g.ProvidersTried > 1 {
			atomic.AddInt64(&c.failovers, 1)
		}
	case OutcomeCancelled:
		atomic.AddInt64(&c.cancelled, 1)
	default:
		atomic.AddInt64(&c.failed, 1)
	}
	atomic.AddInt64(&c.totalTokensIn, int64(g.TokensIn))
	atomic.AddInt64(&c.totalTokensOut, int64(g.TokensOut))
	addFloat64(&c.totalCostUSD, g.CostUSD)

	c.generationsByTask.inc(g.TaskType, g.Outcome)
	c.generationLatency.observe(g.Latency.Seconds(), g.TaskType)
}

// IncrementActive marks a generation as started.
func (c *Collector) IncrementActive() {
	atomic.AddInt64(&c.activeGenerations, 1)
}

// DecrementActive marks a generation as finished, whatever its outcome.
func (c *Collector) DecrementActive() {
	atomic.AddInt64(&c.activeGenerations, -1)
}

// SetCircuitState records a provider's breaker state
// (0=closed, 1=open, 2=half-open).
func (c *Collector) SetCircuitState(provider string, state float64) {
	c.circuitState.set(state, provider)
}

// Stats returns a point-in-time snapshot of all scalar metrics.
func (c *Collector) Stats() *Stats {
	total := atomic.LoadInt64(&c.totalGenerations)
	succeeded := atomic.LoadInt64(&c.succeeded)

	var rate float64
	if total > 0 {
		rate = float64(succeeded) / float64(total) * 100
	}

	return &Stats{
		Uptime:            formatDuration(time.Since(c.startTime)),
		TotalGenerations:  total,
		Succeeded:         succeeded,
		Failed:            atomic.LoadInt64(&c.failed),
		Cancelled:         atomic.LoadInt64(&c.cancelled),
		Failovers:         atomic.LoadInt64(&c.failovers),
		SuccessRate:       rate,
		TokensIn:          atomic.LoadInt64(&c.totalTokensIn),
		TokensOut:         atomic.LoadInt64(&c.totalTokensOut),
		CostUSD:           loadFloat64(&c.totalCostUSD),
		ActiveGenerations: atomic.LoadInt64(&c.activeGenerations),
	}
}

// addFloat64 atomically adds delta to the float64 stored in addr using a CAS loop.
func addFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		newVal := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(addr, old, math.Float64bits(newVal)) {
			return
		}
	}
}

// loadFloat64 atomically loads a float64 stored in addr.
func loadFloat64(addr *uint64) float64 {
	return math.Float64frombits(atomic.LoadUint64(addr))
}

// formatDuration produces a human-readable duration string like "2d 5h 32m".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return formatWithUnits(days, "d", hours, "h", minutes, "m")
	}
	if hours > 0 {
		return formatWithUnits(hours, "h", minutes, "m", 0, "")
	}
	return formatWithUnits(minutes, "m", 0, "", 0, "")
}

// formatWithUnits builds a compact duration string from up to three components.
func formatWithUnits(v1 int, u1 string, v2 int, u2 string, v3 int, u3 string) string {
	s := ""
	if v1 > 0 {
		s += intStr(v1) + u1
	}
	if v2 > 0 {
		if s != "" {
			s += " "
		}
		s += intStr(v2) + u2
	}
	if v3 > 0 && u3 != "" {
		if s != "" {
			s += " "
		}
		s += intStr(v3) + u3
	}
	if s == "" {
		return "0m"
	}
	return s
}

// intStr converts an int to its string representation without importing strconv.
func intStr(n int) string {
	if n == 0 {
		return "0"
	}
	if n < 0 {
		return "-" + intStr(-n)
	}
	digits := make([]byte, 0, 10)
	for n > 0 {
		digits = append(digits, byte('0'+n%10))
		n /= 10
	}
	// reverse
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits)
}
