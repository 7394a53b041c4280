// Package observer defines the lifecycle notifications emitted by the
// transaction processor and ships the stock implementations: structured
// logging, callback hooks, Prometheus metrics and cursor checkpointing.
package observer

import (
	"context"
	"time"

	"github.com/drblury/ledgerflow/internal/runtime/models"
)

// Logger receives processor lifecycle notifications. Calls are made inline on
// the consumer goroutine, so implementations should return quickly. None of
// the methods can fail the run.
//
// The processor holds its observer lock while notifying. Implementations must
// not call back into the processor (Logger, Status or the With* methods) from
// a notification; doing so deadlocks.
type Logger interface {
	ReceiveTransaction(ctx context.Context, tx *models.Transaction, dispatchable, isRetry bool)
	FinishTransaction(ctx context.Context, tx *models.Transaction, handled bool)
	TransactionRetryError(ctx context.Context, tx *models.Transaction, err error, delay time.Duration)

	ReceiveEvent(ctx context.Context, tx *models.Transaction, event *models.Event, dispatchable, isRetry bool)
	FinishEvent(ctx context.Context, tx *models.Transaction, event *models.Event, handled bool)
	EventRetryError(ctx context.Context, tx *models.Transaction, event *models.Event, err error, delay time.Duration)

	UnrecoverableError(ctx context.Context, err error)

	// PeriodicReport is called from a separate goroutine every
	// PeriodicReportInterval. A non-positive interval disables reporting.
	PeriodicReport(ctx context.Context)
	PeriodicReportInterval() time.Duration
}

// NopLogger ignores every notification. Embed it to implement only the
// notifications you care about.
type NopLogger struct{}

var _ Logger = NopLogger{}

func (NopLogger) ReceiveTransaction(context.Context, *models.Transaction, bool, bool)              {}
func (NopLogger) FinishTransaction(context.Context, *models.Transaction, bool)                     {}
func (NopLogger) TransactionRetryError(context.Context, *models.Transaction, error, time.Duration) {}
func (NopLogger) ReceiveEvent(context.Context, *models.Transaction, *models.Event, bool, bool)     {}
func (NopLogger) FinishEvent(context.Context, *models.Transaction, *models.Event, bool)            {}
func (NopLogger) EventRetryError(context.Context, *models.Transaction, *models.Event, error, time.Duration) {
}
func (NopLogger) UnrecoverableError(context.Context, error) {}
func (NopLogger) PeriodicReport(context.Context)            {}
func (NopLogger) PeriodicReportInterval() time.Duration     { return 0 }

// Multi fans every notification out to loggers in order. The periodic report
// runs at the smallest positive interval of the wrapped loggers and calls
// every logger that reports.
func Multi(loggers ...Logger) Logger {
	filtered := make(multiLogger, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			filtered = append(filtered, l)
		}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return filtered
}

type multiLogger []Logger

func (m multiLogger) ReceiveTransaction(ctx context.Context, tx *models.Transaction, dispatchable, isRetry bool) {
	for _, l := range m {
		l.ReceiveTransaction(ctx, tx, dispatchable, isRetry)
	}
}

func (m multiLogger) FinishTransaction(ctx context.Context, tx *models.Transaction, handled bool) {
	for _, l := range m {
		l.FinishTransaction(ctx, tx, handled)
	}
}

func (m multiLogger) TransactionRetryError(ctx context.Context, tx *models.Transaction, err error, delay time.Duration) {
	for _, l := range m {
		l.TransactionRetryError(ctx, tx, err, delay)
	}
}

func (m multiLogger) ReceiveEvent(ctx context.Context, tx *models.Transaction, event *models.Event, dispatchable, isRetry bool) {
	for _, l := range m {
		l.ReceiveEvent(ctx, tx, event, dispatchable, isRetry)
	}
}

func (m multiLogger) FinishEvent(ctx context.Context, tx *models.Transaction, event *models.Event, handled bool) {
	for _, l := range m {
		l.FinishEvent(ctx, tx, event, handled)
	}
}

func (m multiLogger) EventRetryError(ctx context.Context, tx *models.Transaction, event *models.Event, err error, delay time.Duration) {
	for _, l := range m {
		l.EventRetryError(ctx, tx, event, err, delay)
	}
}

func (m multiLogger) UnrecoverableError(ctx context.Context, err error) {
	for _, l := range m {
		l.UnrecoverableError(ctx, err)
	}
}

func (m multiLogger) PeriodicReport(ctx context.Context) {
	for _, l := range m {
		if l.PeriodicReportInterval() > 0 {
			l.PeriodicReport(ctx)
		}
	}
}

func (m multiLogger) PeriodicReportInterval() time.Duration {
	var interval time.Duration
	for _, l := range m {
		if d := l.PeriodicReportInterval(); d > 0 && (interval == 0 || d < interval) {
			interval = d
		}
	}
	return interval
}

// StatsOf returns the statistics of the first StatsProvider found in l,
// looking through loggers combined with Multi.
func StatsOf(l Logger) (Stats, bool) {
	switch v := l.(type) {
	case StatsProvider:
		return v.Stats(), true
	case multiLogger:
		for _, inner := range v {
			if stats, ok := StatsOf(inner); ok {
				return stats, true
			}
		}
	}
	return Stats{}, false
}
