package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/ledgerflow/internal/runtime/errors"
	"github.com/drblury/ledgerflow/internal/runtime/handlers"
	"github.com/drblury/ledgerflow/internal/runtime/models"
	"github.com/drblury/ledgerflow/internal/runtime/observer"
)

// EventProcessor dispatches the events of one transaction. The processor
// hands a fresh one to every transaction handler invocation; custom
// transaction handlers pass it to ProcessEvents.
type EventProcessor struct {
	tx         *models.Transaction
	retryDelay time.Duration
	observer   *observerCell
	tracer     trace.Tracer
}

// Transaction returns the transaction whose events are dispatched.
func (p *EventProcessor) Transaction() *models.Transaction {
	return p.tx
}

// RetryDelay returns the pause between attempts of a failing event handler.
func (p *EventProcessor) RetryDelay() time.Duration {
	return p.retryDelay
}

// ProcessEvents calls the registered handler of every event in the
// transaction, in order. Events without a handler are skipped silently.
//
// A handler returning errors.RetryEvent is invoked again after the event retry
// delay, indefinitely. Transaction retry and unrecoverable errors are returned
// unchanged and stop the iteration; any other error is returned wrapped as
// unrecoverable. Cancelling ctx during a retry delay returns ctx.Err().
//
// Handlers must have been registered with the same S and C types; a mismatch
// panics.
func ProcessEvents[S any, C any](ctx context.Context, p *EventProcessor, state *S, registry *handlers.Registry, txCtx *C) error {
	tx := p.tx
	for i := range tx.Events {
		event := &tx.Events[i]
		key := event.Emitter.Key()
		if !registry.HandlerExists(key, event.Name) {
			continue
		}
		p.observer.notify(func(l observer.Logger) { l.ReceiveEvent(ctx, tx, event, true, false) })

		handler, ok := handlers.GetHandler[S, C](registry, key, event.Name)
		if !ok {
			panic(fmt.Sprintf("ledgerflow: handler for %s/%s disappeared between lookup and resolution", key, event.Name))
		}

		evCtx := handlers.EventContext[S, C]{
			State:       state,
			Transaction: tx,
			Event:       event,
			Registry:    registry,
			TxContext:   txCtx,
		}
		if err := dispatchEvent(ctx, p, handler, evCtx); err != nil {
			return err
		}
		p.observer.notify(func(l observer.Logger) { l.FinishEvent(ctx, tx, event, true) })
	}
	return nil
}

func dispatchEvent[S any, C any](ctx context.Context, p *EventProcessor, handler handlers.EventHandler[S, C], evCtx handlers.EventContext[S, C]) error {
	tx, event := evCtx.Transaction, evCtx.Event
	for attempt := 1; ; attempt++ {
		spanCtx, span := startEventSpan(ctx, p.tracer, tx, event, attempt)
		evCtx.Context = spanCtx
		err := handler.HandleEvent(evCtx)
		endSpan(span, err)
		if err == nil {
			return nil
		}

		var retry *errspkg.EventRetryError
		if errspkg.Classify(err) != errspkg.ClassEventRetry || !errors.As(err, &retry) {
			return propagateEventError(err)
		}

		p.observer.notify(func(l observer.Logger) { l.EventRetryError(ctx, tx, event, retry.Cause, p.retryDelay) })
		if err := sleepContext(ctx, p.retryDelay); err != nil {
			return err
		}
		p.observer.notify(func(l observer.Logger) { l.ReceiveEvent(ctx, tx, event, true, true) })
	}
}

func propagateEventError(err error) error {
	switch errspkg.Classify(err) {
	case errspkg.ClassTransactionRetry:
		return err
	default:
		return errspkg.Unrecoverable(err)
	}
}
