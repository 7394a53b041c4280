package observer

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/drblury/ledgerflow/internal/runtime/models"
)

const (
	latencySampleSize    = 256
	throughputWindowSize = time.Minute
)

// Stats is a point-in-time view of processor progress.
type Stats struct {
	TransactionsReceived uint64 `json:"transactions_received"`
	TransactionsHandled  uint64 `json:"transactions_handled"`
	TransactionsSkipped  uint64 `json:"transactions_skipped"`
	TransactionRetries   uint64 `json:"transaction_retries"`
	EventsHandled        uint64 `json:"events_handled"`
	EventRetries         uint64 `json:"event_retries"`
	UnrecoverableErrors  uint64 `json:"unrecoverable_errors"`

	LastStateVersion uint64    `json:"last_state_version"`
	LastIntentHash   string    `json:"last_intent_hash,omitempty"`
	LastConfirmedAt  time.Time `json:"last_confirmed_at"`
	// LedgerLagMillis is the distance between the wall clock and the ledger
	// confirmation time of the last finished transaction, or -1 if unknown.
	LedgerLagMillis int64     `json:"ledger_lag_millis"`
	LastError       string    `json:"last_error,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	LastFinishedAt  time.Time `json:"last_finished_at"`

	Latency    LatencyMetrics    `json:"latency"`
	Throughput ThroughputMetrics `json:"throughput"`
	Resource   ResourceUsage     `json:"resource"`
}

// LatencyMetrics summarises how long dispatchable transactions took from
// first receipt to finish, retries included.
type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

type ThroughputMetrics struct {
	CurrentTPS       float64 `json:"current_tps"`
	WindowSeconds    float64 `json:"window_seconds"`
	FinishedInWindow uint64  `json:"finished_in_window"`
	TotalFinished    uint64  `json:"total_finished"`
}

// StatsProvider is implemented by observers that keep running statistics.
type StatsProvider interface {
	Stats() Stats
}

// statsCollector accumulates Stats from lifecycle notifications.
type statsCollector struct {
	mu    sync.Mutex
	now   func() time.Time
	stats Stats

	txStartedAt      time.Time
	totalLatency     int64
	latencyWindow    *latencyWindow
	throughputWindow *throughputWindow
	resources        *resourceTracker
}

func newStatsCollector(now func() time.Time) *statsCollector {
	if now == nil {
		now = time.Now
	}
	return &statsCollector{
		now:              now,
		stats:            Stats{StartedAt: now().UTC(), LedgerLagMillis: -1},
		latencyWindow:    newLatencyWindow(latencySampleSize),
		throughputWindow: newThroughputWindow(throughputWindowSize),
		resources:        newResourceTracker(),
	}
}

func (c *statsCollector) receiveTransaction(dispatchable, isRetry bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if isRetry {
		return
	}
	c.stats.TransactionsReceived++
	if !dispatchable {
		c.stats.TransactionsSkipped++
		return
	}
	c.txStartedAt = c.now()
}

func (c *statsCollector) finishTransaction(tx *models.Transaction, handled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.stats.LastStateVersion = tx.StateVersion
	c.stats.LastIntentHash = tx.IntentHash
	c.stats.LastConfirmedAt = tx.ConfirmedAt
	c.stats.LastFinishedAt = now.UTC()
	if tx.ConfirmedAt.IsZero() {
		c.stats.LedgerLagMillis = -1
	} else {
		c.stats.LedgerLagMillis = max(now.Sub(tx.ConfirmedAt).Milliseconds(), 0)
	}

	snapshot := c.throughputWindow.AddAndSnapshot(now)
	c.stats.Throughput.CurrentTPS = snapshot.CurrentTPS
	c.stats.Throughput.WindowSeconds = snapshot.WindowSeconds
	c.stats.Throughput.FinishedInWindow = uint64(snapshot.Count)
	c.stats.Throughput.TotalFinished++

	if !handled || c.txStartedAt.IsZero() {
		return
	}
	c.stats.TransactionsHandled++
	elapsed := now.Sub(c.txStartedAt)
	c.txStartedAt = time.Time{}
	c.totalLatency += int64(elapsed)
	c.latencyWindow.Add(elapsed)
	latency := c.latencyWindow.Snapshot()
	latency.AverageNs = c.totalLatency / int64(c.stats.TransactionsHandled)
	c.stats.Latency = latency
}

func (c *statsCollector) transactionRetry(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.TransactionRetries++
	c.stats.LastError = errorString(err)
}

func (c *statsCollector) finishEvent(handled bool) {
	if !handled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.EventsHandled++
}

func (c *statsCollector) eventRetry(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.EventRetries++
	c.stats.LastError = errorString(err)
}

func (c *statsCollector) unrecoverable(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.UnrecoverableErrors++
	c.stats.LastError = errorString(err)
}

func (c *statsCollector) snapshot() Stats {
	usage := c.resources.Snapshot()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.stats
	out.Resource = usage
	return out
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	metrics := LatencyMetrics{LastNs: lw.last}
	if lw.filled == 0 {
		return metrics
	}
	samples := make([]int64, lw.filled)
	for i := range lw.filled {
		idx := lw.next - lw.filled + i
		if idx < 0 {
			idx += len(lw.samples)
		}
		samples[i] = lw.samples[idx]
	}
	slices.Sort(samples)
	metrics.SampleSize = lw.filled
	metrics.P50Ns = percentile(samples, 0.50)
	metrics.P95Ns = percentile(samples, 0.95)
	metrics.P99Ns = percentile(samples, 0.99)
	return metrics
}

func percentile(sorted []int64, quantile float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	if quantile <= 0 {
		return sorted[0]
	}
	if quantile >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := quantile * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + int64(float64(sorted[upper]-sorted[lower])*frac)
}

type throughputWindow struct {
	horizon time.Duration
	samples []time.Time
}

type throughputSnapshot struct {
	Count         int
	WindowSeconds float64
	CurrentTPS    float64
}

func newThroughputWindow(horizon time.Duration) *throughputWindow {
	return &throughputWindow{horizon: horizon, samples: make([]time.Time, 0, 64)}
}

func (tw *throughputWindow) AddAndSnapshot(now time.Time) throughputSnapshot {
	tw.samples = append(tw.samples, now)
	cutoff := now.Add(-tw.horizon)
	idx := 0
	for idx < len(tw.samples) && tw.samples[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		tw.samples = slices.Delete(tw.samples, 0, idx)
	}

	span := now.Sub(tw.samples[0])
	if span <= 0 {
		span = time.Second
	}
	count := len(tw.samples)
	return throughputSnapshot{
		Count:         count,
		WindowSeconds: span.Seconds(),
		CurrentTPS:    float64(count) / span.Seconds(),
	}
}
