// Package telemetry implements the latency ring buffer and percentile
// rollup from spec.md §4.11, generalizing the teacher's
// strategy.FlowTracker fixed-capacity rolling state (there: a
// time-windowed slice of fills feeding a toxicity score; here: a
// fixed-capacity ring of LatencySamples feeding a percentile summary).
package telemetry

import (
	"log/slog"
	"sort"
	"sync"

	"copytrader/pkg/types"
)

const capacity = 5000

// Recorder is a fixed-capacity ring buffer of LatencySamples.
type Recorder struct {
	mu      sync.Mutex
	samples []types.LatencySample
	next    int
	count   int
	total   int64 // total samples ever recorded, used for statsEvery cadence

	statsEvery int
	logger     *slog.Logger
}

// NewRecorder creates a Recorder. statsEvery controls how often Record
// triggers an automatic summary emission (0 disables automatic emission).
func NewRecorder(statsEvery int, logger *slog.Logger) *Recorder {
	return &Recorder{
		samples:    make([]types.LatencySample, capacity),
		statsEvery: statsEvery,
		logger:     logger.With("component", "telemetry"),
	}
}

// Record appends a sample, overwriting the oldest entry once the buffer
// is full, and emits a percentile summary every statsEvery samples.
func (r *Recorder) Record(s types.LatencySample) {
	r.mu.Lock()
	r.samples[r.next] = s
	r.next = (r.next + 1) % capacity
	if r.count < capacity {
		r.count++
	}
	r.total++
	shouldEmit := r.statsEvery > 0 && r.total%int64(r.statsEvery) == 0
	r.mu.Unlock()

	if shouldEmit {
		r.LogSummary()
	}
}

// Summary is the percentile rollup described in spec.md §4.11.
type Summary struct {
	Count          int
	TotalP50       int64
	TotalP90       int64
	TotalP99       int64
	DecisionP50    int64
	DecisionP90    int64
	SubmitP50      int64
	AckP50         int64
}

// Snapshot computes the current percentile summary without mutating
// state.
func (r *Recorder) Snapshot() Summary {
	r.mu.Lock()
	n := r.count
	buf := make([]types.LatencySample, n)
	for i := 0; i < n; i++ {
		idx := (r.next - n + i + capacity) % capacity
		buf[i] = r.samples[idx]
	}
	r.mu.Unlock()

	if n == 0 {
		return Summary{}
	}

	totals := make([]int64, n)
	decisions := make([]int64, n)
	submits := make([]int64, n)
	acks := make([]int64, n)
	for i, s := range buf {
		totals[i] = s.TotalMs()
		decisions[i] = s.DecisionMs()
		submits[i] = s.SubmitMs()
		acks[i] = s.AckMs()
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i] < totals[j] })
	sort.Slice(decisions, func(i, j int) bool { return decisions[i] < decisions[j] })
	sort.Slice(submits, func(i, j int) bool { return submits[i] < submits[j] })
	sort.Slice(acks, func(i, j int) bool { return acks[i] < acks[j] })

	return Summary{
		Count:       n,
		TotalP50:    percentile(totals, 0.50),
		TotalP90:    percentile(totals, 0.90),
		TotalP99:    percentile(totals, 0.99),
		DecisionP50: percentile(decisions, 0.50),
		DecisionP90: percentile(decisions, 0.90),
		SubmitP50:   percentile(submits, 0.50),
		AckP50:      percentile(acks, 0.50),
	}
}

// LogSummary emits the current summary as a structured log line.
func (r *Recorder) LogSummary() {
	sum := r.Snapshot()
	r.logger.Info("latency summary",
		"count", sum.Count,
		"total_p50_ms", sum.TotalP50,
		"total_p90_ms", sum.TotalP90,
		"total_p99_ms", sum.TotalP99,
		"decision_p50_ms", sum.DecisionP50,
		"decision_p90_ms", sum.DecisionP90,
		"submit_p50_ms", sum.SubmitP50,
		"ack_p50_ms", sum.AckP50,
	)
}

// percentile returns the p-th percentile (p in [0,1]) of a sorted slice:
// the element at index floor(p*(n-1)), with no interpolation.
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
