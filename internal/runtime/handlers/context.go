package handlers

import (
	"context"

	"github.com/drblury/ledgerflow/internal/runtime/models"
)

// EventContext is handed to an event handler for every matching event.
// State lives for the whole processor run, TxContext only for the current
// transaction. Handlers may register or unregister handlers through Registry.
type EventContext[S any, C any] struct {
	Context     context.Context
	State       *S
	Transaction *models.Transaction
	Event       *models.Event
	Registry    *Registry
	TxContext   *C
}

// Payload returns the opaque event data.
func (c EventContext[S, C]) Payload() []byte {
	if c.Event == nil {
		return nil
	}
	return c.Event.Data
}

// EventHandler processes a single event. Return errors.RetryEvent to have the
// event retried, errors.Unrecoverable (or any other error) to stop the run.
type EventHandler[S any, C any] interface {
	HandleEvent(ctx EventContext[S, C]) error
}

// EventHandlerFunc adapts a plain function to EventHandler.
type EventHandlerFunc[S any, C any] func(ctx EventContext[S, C]) error

func (f EventHandlerFunc[S, C]) HandleEvent(ctx EventContext[S, C]) error {
	return f(ctx)
}
