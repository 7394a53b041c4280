package observer

import (
	"context"
	"time"

	"github.com/drblury/ledgerflow/internal/runtime/logging"
	"github.com/drblury/ledgerflow/internal/runtime/models"
)

// DefaultReportInterval is how often DefaultLogger writes a progress report.
const DefaultReportInterval = time.Minute

// DefaultLogger writes every notification to a ServiceLogger and keeps
// running statistics. Receive and finish notifications are logged at debug
// level, retries and unrecoverable errors at error level and the periodic
// report at info level.
type DefaultLogger struct {
	log      logging.ServiceLogger
	interval time.Duration
	stats    *statsCollector

	lastReportTotal uint64
	lastReportAt    time.Time
}

var (
	_ Logger        = (*DefaultLogger)(nil)
	_ StatsProvider = (*DefaultLogger)(nil)
)

// NewDefaultLogger reports every DefaultReportInterval.
func NewDefaultLogger(log logging.ServiceLogger) *DefaultLogger {
	return NewDefaultLoggerWithInterval(log, DefaultReportInterval)
}

// NewDefaultLoggerWithInterval reports every interval. A non-positive interval
// disables the periodic report.
func NewDefaultLoggerWithInterval(log logging.ServiceLogger, interval time.Duration) *DefaultLogger {
	if log == nil {
		log = logging.Discard()
	}
	return &DefaultLogger{
		log:      log.With(logging.LogFields{"component": "processor"}),
		interval: interval,
		stats:    newStatsCollector(time.Now),
	}
}

// Stats returns a snapshot of the running statistics.
func (l *DefaultLogger) Stats() Stats {
	return l.stats.snapshot()
}

func (l *DefaultLogger) ReceiveTransaction(_ context.Context, tx *models.Transaction, dispatchable, isRetry bool) {
	l.stats.receiveTransaction(dispatchable, isRetry)
	if !dispatchable {
		l.log.Trace("Skipping transaction without registered handlers", txFields(tx))
		return
	}
	fields := txFields(tx)
	fields["is_retry"] = isRetry
	l.log.Debug("Received transaction", fields)
}

func (l *DefaultLogger) FinishTransaction(_ context.Context, tx *models.Transaction, handled bool) {
	l.stats.finishTransaction(tx, handled)
	if !handled {
		return
	}
	l.log.Debug("Handled transaction", txFields(tx))
}

func (l *DefaultLogger) TransactionRetryError(_ context.Context, tx *models.Transaction, err error, delay time.Duration) {
	l.stats.transactionRetry(err)
	fields := txFields(tx)
	fields["retry_in"] = delay.String()
	l.log.Error("Transaction handler failed, retrying", err, fields)
}

func (l *DefaultLogger) ReceiveEvent(_ context.Context, tx *models.Transaction, event *models.Event, _, isRetry bool) {
	fields := eventFields(tx, event)
	fields["is_retry"] = isRetry
	l.log.Debug("Received event", fields)
}

func (l *DefaultLogger) FinishEvent(_ context.Context, tx *models.Transaction, event *models.Event, handled bool) {
	l.stats.finishEvent(handled)
	l.log.Debug("Handled event", eventFields(tx, event))
}

func (l *DefaultLogger) EventRetryError(_ context.Context, tx *models.Transaction, event *models.Event, err error, delay time.Duration) {
	l.stats.eventRetry(err)
	fields := eventFields(tx, event)
	fields["retry_in"] = delay.String()
	l.log.Error("Event handler failed, retrying", err, fields)
}

func (l *DefaultLogger) UnrecoverableError(_ context.Context, err error) {
	l.stats.unrecoverable(err)
	l.log.Error("Unrecoverable error, stopping", err, nil)
}

func (l *DefaultLogger) PeriodicReport(context.Context) {
	stats := l.Stats()
	now := time.Now()

	var rate float64
	if !l.lastReportAt.IsZero() {
		if elapsed := now.Sub(l.lastReportAt).Seconds(); elapsed > 0 {
			rate = float64(stats.Throughput.TotalFinished-l.lastReportTotal) / elapsed
		}
	}
	l.lastReportAt = now
	l.lastReportTotal = stats.Throughput.TotalFinished

	l.log.Info("Transaction stream progress", logging.LogFields{
		"transactions_received": stats.TransactionsReceived,
		"transactions_handled":  stats.TransactionsHandled,
		"transactions_skipped":  stats.TransactionsSkipped,
		"transaction_retries":   stats.TransactionRetries,
		"events_handled":        stats.EventsHandled,
		"event_retries":         stats.EventRetries,
		"state_version":         stats.LastStateVersion,
		"ledger_lag_ms":         stats.LedgerLagMillis,
		"tx_per_second":         rate,
		"latency_p95_ms":        time.Duration(stats.Latency.P95Ns).Milliseconds(),
		"goroutines":            stats.Resource.Goroutines,
		"memory_bytes":          stats.Resource.MemoryBytes,
		"cpu_percent":           stats.Resource.CPUPercent,
	})
}

func (l *DefaultLogger) PeriodicReportInterval() time.Duration {
	return l.interval
}

func txFields(tx *models.Transaction) logging.LogFields {
	return logging.LogFields(tx.LogFields())
}

func eventFields(tx *models.Transaction, event *models.Event) logging.LogFields {
	return logging.LogFields{
		"intent_hash":   tx.IntentHash,
		"state_version": tx.StateVersion,
		"event_name":    event.Name,
		"emitter":       event.Emitter.String(),
	}
}
