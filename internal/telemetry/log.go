// Package telemetry records provider attempt outcomes and derives
// per-provider reliability statistics from them.
package telemetry

import "sync"

// DefaultCapacity is the number of records a Log keeps by default.
const DefaultCapacity = 100

// Log is a bounded, mutex-guarded attempt log. The oldest records are
// dropped first once the capacity is exceeded.
type Log struct {
	mu       sync.Mutex
	capacity int
	records  []AttemptRecord
}

// NewLog creates a Log that keeps at most capacity records. A non-positive
// capacity selects DefaultCapacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		records:  make([]AttemptRecord, 0, capacity+1),
	}
}

// Record appends r and drops the oldest entry when the log overflows.
func (l *Log) Record(r AttemptRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r)
	if len(l.records) > l.capacity {
		l.trimLocked()
	}
}

// Trim keeps only the most recent capacity records, in order, and returns
// how many were dropped.
func (l *Log) Trim() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trimLocked()
}

func (l *Log) trimLocked() int {
	excess := len(l.records) - l.capacity
	if excess <= 0 {
		return 0
	}
	n := copy(l.records, l.records[excess:])
	clear(l.records[n:])
	l.records = l.records[:n]
	return excess
}

// Records returns a copy of the log contents, oldest first.
func (l *Log) Records() []AttemptRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AttemptRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of records currently held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Capacity returns the configured cap.
func (l *Log) Capacity() int { return l.capacity }

// Stats computes statistics over the current contents.
func (l *Log) Stats() Stats {
	return ComputeStats(l.Records())
}

// Reset drops every record.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.records)
	l.records = l.records[:0]
}
