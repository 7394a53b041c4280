package observer

import (
	"context"
	"time"

	"github.com/drblury/ledgerflow/internal/runtime/models"
)

// Hooks adapts plain callbacks to Logger. All hooks are optional; nil hooks
// are simply not called.
type Hooks struct {
	OnTransactionReceived func(ctx context.Context, tx *models.Transaction, dispatchable, isRetry bool)
	OnTransactionFinished func(ctx context.Context, tx *models.Transaction, handled bool)
	OnTransactionRetry    func(ctx context.Context, tx *models.Transaction, err error, delay time.Duration)

	OnEventReceived func(ctx context.Context, tx *models.Transaction, event *models.Event, dispatchable, isRetry bool)
	OnEventFinished func(ctx context.Context, tx *models.Transaction, event *models.Event, handled bool)
	OnEventRetry    func(ctx context.Context, tx *models.Transaction, event *models.Event, err error, delay time.Duration)

	OnUnrecoverable func(ctx context.Context, err error)

	// OnReport runs every ReportInterval when both are set.
	OnReport       func(ctx context.Context)
	ReportInterval time.Duration
}

var _ Logger = Hooks{}

// Merge combines two Hooks, creating a new Hooks that calls both.
// The hooks from 'other' are called after the hooks from 'h'. The merged
// report interval is the smaller positive one.
func (h Hooks) Merge(other Hooks) Hooks {
	interval := h.ReportInterval
	if other.ReportInterval > 0 && (interval <= 0 || other.ReportInterval < interval) {
		interval = other.ReportInterval
	}
	return Hooks{
		OnTransactionReceived: chain3(h.OnTransactionReceived, other.OnTransactionReceived),
		OnTransactionFinished: chain2(h.OnTransactionFinished, other.OnTransactionFinished),
		OnTransactionRetry:    chain3(h.OnTransactionRetry, other.OnTransactionRetry),
		OnEventReceived:       chain4(h.OnEventReceived, other.OnEventReceived),
		OnEventFinished:       chain3(h.OnEventFinished, other.OnEventFinished),
		OnEventRetry:          chain4(h.OnEventRetry, other.OnEventRetry),
		OnUnrecoverable:       chain1(h.OnUnrecoverable, other.OnUnrecoverable),
		OnReport:              chain0(h.OnReport, other.OnReport),
		ReportInterval:        interval,
	}
}

func chain0(a, b func(context.Context)) func(context.Context) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context) {
		a(ctx)
		b(ctx)
	}
}

func chain1[T any](a, b func(context.Context, T)) func(context.Context, T) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, v T) {
		a(ctx, v)
		b(ctx, v)
	}
}

func chain2[T, U any](a, b func(context.Context, T, U)) func(context.Context, T, U) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, v T, w U) {
		a(ctx, v, w)
		b(ctx, v, w)
	}
}

func chain3[T, U, V any](a, b func(context.Context, T, U, V)) func(context.Context, T, U, V) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, v T, w U, x V) {
		a(ctx, v, w, x)
		b(ctx, v, w, x)
	}
}

func chain4[T, U, V, W any](a, b func(context.Context, T, U, V, W)) func(context.Context, T, U, V, W) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, v T, w U, x V, y W) {
		a(ctx, v, w, x, y)
		b(ctx, v, w, x, y)
	}
}

func (h Hooks) ReceiveTransaction(ctx context.Context, tx *models.Transaction, dispatchable, isRetry bool) {
	if h.OnTransactionReceived != nil {
		h.OnTransactionReceived(ctx, tx, dispatchable, isRetry)
	}
}

func (h Hooks) FinishTransaction(ctx context.Context, tx *models.Transaction, handled bool) {
	if h.OnTransactionFinished != nil {
		h.OnTransactionFinished(ctx, tx, handled)
	}
}

func (h Hooks) TransactionRetryError(ctx context.Context, tx *models.Transaction, err error, delay time.Duration) {
	if h.OnTransactionRetry != nil {
		h.OnTransactionRetry(ctx, tx, err, delay)
	}
}

func (h Hooks) ReceiveEvent(ctx context.Context, tx *models.Transaction, event *models.Event, dispatchable, isRetry bool) {
	if h.OnEventReceived != nil {
		h.OnEventReceived(ctx, tx, event, dispatchable, isRetry)
	}
}

func (h Hooks) FinishEvent(ctx context.Context, tx *models.Transaction, event *models.Event, handled bool) {
	if h.OnEventFinished != nil {
		h.OnEventFinished(ctx, tx, event, handled)
	}
}

func (h Hooks) EventRetryError(ctx context.Context, tx *models.Transaction, event *models.Event, err error, delay time.Duration) {
	if h.OnEventRetry != nil {
		h.OnEventRetry(ctx, tx, event, err, delay)
	}
}

func (h Hooks) UnrecoverableError(ctx context.Context, err error) {
	if h.OnUnrecoverable != nil {
		h.OnUnrecoverable(ctx, err)
	}
}

func (h Hooks) PeriodicReport(ctx context.Context) {
	if h.OnReport != nil {
		h.OnReport(ctx)
	}
}

func (h Hooks) PeriodicReportInterval() time.Duration {
	if h.OnReport == nil {
		return 0
	}
	return h.ReportInterval
}
