package observer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/drblury/ledgerflow/internal/runtime/models"
)

func TestHooksNilCallbacksAreIgnored(t *testing.T) {
	var h Hooks
	ctx := context.Background()
	tx := sampleTransaction(1)
	ev := &tx.Events[0]

	assert.NotPanics(t, func() {
		h.ReceiveTransaction(ctx, tx, true, false)
		h.FinishTransaction(ctx, tx, true)
		h.TransactionRetryError(ctx, tx, errors.New("x"), time.Second)
		h.ReceiveEvent(ctx, tx, ev, true, false)
		h.FinishEvent(ctx, tx, ev, true)
		h.EventRetryError(ctx, tx, ev, errors.New("x"), time.Second)
		h.UnrecoverableError(ctx, errors.New("x"))
		h.PeriodicReport(ctx)
	})
}

func TestHooksReportIntervalRequiresCallback(t *testing.T) {
	assert.Zero(t, Hooks{ReportInterval: time.Second}.PeriodicReportInterval())
	assert.Equal(t, time.Second, Hooks{ReportInterval: time.Second, OnReport: func(context.Context) {}}.PeriodicReportInterval())
}

func TestHooksMerge(t *testing.T) {
	var calls []string
	first := Hooks{
		OnEventRetry: func(_ context.Context, _ *models.Transaction, ev *models.Event, err error, delay time.Duration) {
			calls = append(calls, "first:"+ev.Name+":"+err.Error()+":"+delay.String())
		},
		OnTransactionFinished: func(context.Context, *models.Transaction, bool) { calls = append(calls, "first:finish") },
		ReportInterval:        time.Minute,
	}
	second := Hooks{
		OnEventRetry: func(_ context.Context, _ *models.Transaction, ev *models.Event, _ error, _ time.Duration) {
			calls = append(calls, "second:"+ev.Name)
		},
		OnReport:       func(context.Context) { calls = append(calls, "second:report") },
		ReportInterval: time.Second,
	}

	merged := first.Merge(second)
	ctx := context.Background()
	tx := sampleTransaction(3)

	merged.EventRetryError(ctx, tx, &tx.Events[0], errors.New("busy"), 10*time.Millisecond)
	merged.FinishTransaction(ctx, tx, true)
	merged.PeriodicReport(ctx)

	assert.Equal(t, []string{
		"first:DepositEvent:busy:10ms",
		"second:DepositEvent",
		"first:finish",
		"second:report",
	}, calls)
	assert.Equal(t, time.Second, merged.PeriodicReportInterval())
}

func TestHooksMergeKeepsPositiveInterval(t *testing.T) {
	merged := Hooks{ReportInterval: 5 * time.Second}.Merge(Hooks{})
	assert.Equal(t, 5*time.Second, merged.ReportInterval)
}
