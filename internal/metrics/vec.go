package metrics

import (
	"sort"
	"strings"
	"sync"
)

// labelKey builds a stable map key from label values in name order.
func labelKey(names, values []string) string {
	var b strings.Builder
	for i := range names {
		if i > 0 {
			b.WriteByte(0)
		}
		b.WriteString(values[i])
	}
	return b.String()
}

func labelMap(names, values []string) map[string]string {
	m := make(map[string]string, len(names))
	for i, n := range names {
		m[n] = values[i]
	}
	return m
}

type counterEntry struct {
	labels map[string]string
	value  int64
}

// counterVec is a set of integer counters keyed by label values.
type counterVec struct {
	mu      sync.Mutex
	names   []string
	entries map[string]*counterEntry
}

func newCounterVec(names ...string) *counterVec {
	return &counterVec{names: names, entries: make(map[string]*counterEntry)}
}

func (v *counterVec) add(delta int64, values ...string) {
	key := labelKey(v.names, values)
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.entries[key]
	if !ok {
		e = &counterEntry{labels: labelMap(v.names, values)}
		v.entries[key] = e
	}
	e.value += delta
}

func (v *counterVec) inc(values ...string) { v.add(1, values...) }

// snapshot returns copies of all entries sorted by label key.
func (v *counterVec) snapshot() []counterEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	keys := sortedKeys(v.entries)
	out := make([]counterEntry, 0, len(keys))
	for _, k := range keys {
		e := v.entries[k]
		out = append(out, counterEntry{labels: e.labels, value: e.value})
	}
	return out
}

type gaugeEntry struct {
	labels map[string]string
	value  float64
}

// gaugeVec is a set of float gauges keyed by label values.
type gaugeVec struct {
	mu      sync.Mutex
	names   []string
	entries map[string]*gaugeEntry
}

func newGaugeVec(names ...string) *gaugeVec {
	return &gaugeVec{names: names, entries: make(map[string]*gaugeEntry)}
}

func (v *gaugeVec) set(value float64, values ...string) {
	key := labelKey(v.names, values)
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.entries[key]
	if !ok {
		e = &gaugeEntry{labels: labelMap(v.names, values)}
		v.entries[key] = e
	}
	e.value = value
}

func (v *gaugeVec) snapshot() []gaugeEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	keys := sortedKeys(v.entries)
	out := make([]gaugeEntry, 0, len(keys))
	for _, k := range keys {
		e := v.entries[k]
		out = append(out, gaugeEntry{labels: e.labels, value: e.value})
	}
	return out
}

// defaultBuckets are latency bucket bounds in seconds. Generations are
// slow, so the tail reaches two minutes.
var defaultBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

type histogram struct {
	labels  map[string]string
	buckets []float64
	counts  []int64
	count   int64
	sum     float64
}

// histogramVec is a set of histograms keyed by label values.
type histogramVec struct {
	mu      sync.Mutex
	names   []string
	buckets []float64
	entries map[string]*histogram
}

func newHistogramVec(buckets []float64, names ...string) *histogramVec {
	return &histogramVec{names: names, buckets: buckets, entries: make(map[string]*histogram)}
}

func (v *histogramVec) observe(value float64, values ...string) {
	key := labelKey(v.names, values)
	v.mu.Lock()
	defer v.mu.Unlock()
	h, ok := v.entries[key]
	if !ok {
		h = &histogram{
			labels:  labelMap(v.names, values),
			buckets: v.buckets,
			counts:  make([]int64, len(v.buckets)),
		}
		v.entries[key] = h
	}
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
	h.count++
	h.sum += value
}

func (v *histogramVec) snapshot() []histogram {
	v.mu.Lock()
	defer v.mu.Unlock()
	keys := sortedKeys(v.entries)
	out := make([]histogram, 0, len(keys))
	for _, k := range keys {
		h := v.entries[k]
		counts := make([]int64, len(h.counts))
		copy(counts, h.counts)
		out = append(out, histogram{labels: h.labels, buckets: h.buckets, counts: counts, count: h.count, sum: h.sum})
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
