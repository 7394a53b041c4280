package observer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/ledgerflow/internal/runtime/models"
)

const metricsNamespace = "ledgerflow"

// PrometheusLogger exports processor progress as Prometheus collectors.
type PrometheusLogger struct {
	NopLogger

	mu          sync.Mutex
	txStartedAt time.Time
	evStartedAt time.Time

	transactionsTotal   *prometheus.CounterVec
	transactionRetries  prometheus.Counter
	eventsTotal         *prometheus.CounterVec
	eventRetries        *prometheus.CounterVec
	unrecoverableErrors prometheus.Counter
	stateVersion        prometheus.Gauge
	ledgerLag           prometheus.Gauge
	txDuration          prometheus.Histogram
	eventDuration       *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

var _ Logger = (*PrometheusLogger)(nil)

// NewPrometheusLogger creates the collectors. Call Register to expose them
// through registerer, which defaults to prometheus.DefaultRegisterer.
func NewPrometheusLogger(registerer prometheus.Registerer) *PrometheusLogger {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &PrometheusLogger{
		registerer: registerer,
		transactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "processor", Name: "transactions_total",
			Help: "Transactions finished by the processor, by outcome (handled or skipped).",
		}, []string{"outcome"}),
		transactionRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "processor", Name: "transaction_retries_total",
			Help: "Transaction handler invocations that asked for a transaction retry.",
		}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "processor", Name: "events_handled_total",
			Help: "Events handled successfully, by event name.",
		}, []string{"event"}),
		eventRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "processor", Name: "event_retries_total",
			Help: "Event handler invocations that asked for an event retry, by event name.",
		}, []string{"event"}),
		unrecoverableErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "processor", Name: "unrecoverable_errors_total",
			Help: "Unrecoverable errors that stopped the processor.",
		}),
		stateVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: "processor", Name: "state_version",
			Help: "State version of the last finished transaction.",
		}),
		ledgerLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: "processor", Name: "ledger_lag_seconds",
			Help: "Seconds between ledger confirmation and finishing the last transaction.",
		}),
		txDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "processor", Name: "transaction_duration_seconds",
			Help:    "Time from first receipt to finish of dispatchable transactions, retries included.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
		}),
		eventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "processor", Name: "event_duration_seconds",
			Help:    "Time from first receipt to finish of handled events, retries included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"event"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *PrometheusLogger) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	for _, c := range m.collectors() {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *PrometheusLogger) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.transactionsTotal,
		m.transactionRetries,
		m.eventsTotal,
		m.eventRetries,
		m.unrecoverableErrors,
		m.stateVersion,
		m.ledgerLag,
		m.txDuration,
		m.eventDuration,
	}
}

func (m *PrometheusLogger) ReceiveTransaction(_ context.Context, _ *models.Transaction, dispatchable, isRetry bool) {
	if !dispatchable || isRetry {
		return
	}
	m.mu.Lock()
	m.txStartedAt = time.Now()
	m.mu.Unlock()
}

func (m *PrometheusLogger) FinishTransaction(_ context.Context, tx *models.Transaction, handled bool) {
	outcome := "skipped"
	if handled {
		outcome = "handled"
		m.mu.Lock()
		if !m.txStartedAt.IsZero() {
			m.txDuration.Observe(time.Since(m.txStartedAt).Seconds())
			m.txStartedAt = time.Time{}
		}
		m.mu.Unlock()
	}
	m.transactionsTotal.WithLabelValues(outcome).Inc()
	m.stateVersion.Set(float64(tx.StateVersion))
	if !tx.ConfirmedAt.IsZero() {
		m.ledgerLag.Set(max(time.Since(tx.ConfirmedAt).Seconds(), 0))
	}
}

func (m *PrometheusLogger) TransactionRetryError(context.Context, *models.Transaction, error, time.Duration) {
	m.transactionRetries.Inc()
}

func (m *PrometheusLogger) ReceiveEvent(_ context.Context, _ *models.Transaction, _ *models.Event, _, isRetry bool) {
	if isRetry {
		return
	}
	m.mu.Lock()
	m.evStartedAt = time.Now()
	m.mu.Unlock()
}

func (m *PrometheusLogger) FinishEvent(_ context.Context, _ *models.Transaction, event *models.Event, handled bool) {
	if !handled {
		return
	}
	m.eventsTotal.WithLabelValues(event.Name).Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.evStartedAt.IsZero() {
		m.eventDuration.WithLabelValues(event.Name).Observe(time.Since(m.evStartedAt).Seconds())
		m.evStartedAt = time.Time{}
	}
}

func (m *PrometheusLogger) EventRetryError(_ context.Context, _ *models.Transaction, event *models.Event, _ error, _ time.Duration) {
	m.eventRetries.WithLabelValues(event.Name).Inc()
}

func (m *PrometheusLogger) UnrecoverableError(context.Context, error) {
	m.unrecoverableErrors.Inc()
}
