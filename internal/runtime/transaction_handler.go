package runtime

import (
	"context"

	"github.com/drblury/ledgerflow/internal/runtime/handlers"
	"github.com/drblury/ledgerflow/internal/runtime/models"
)

// TransactionContext is handed to the transaction handler once per attempt.
type TransactionContext[S any] struct {
	Context     context.Context
	State       *S
	Transaction *models.Transaction
	Events      *EventProcessor
	Registry    *handlers.Registry
}

// TransactionHandler is invoked for every transaction with at least one
// registered event handler. Return errors.RetryTransaction to have the whole
// transaction handled again after the transaction retry delay; any other error
// stops the run.
type TransactionHandler[S any] interface {
	HandleTransaction(ctx TransactionContext[S]) error
}

// TransactionHandlerFunc adapts a plain function to TransactionHandler.
type TransactionHandlerFunc[S any] func(ctx TransactionContext[S]) error

func (f TransactionHandlerFunc[S]) HandleTransaction(ctx TransactionContext[S]) error {
	return f(ctx)
}

// DefaultTransactionHandler dispatches the events with an empty transaction
// context and no further logic.
type DefaultTransactionHandler[S any] struct{}

func (DefaultTransactionHandler[S]) HandleTransaction(ctx TransactionContext[S]) error {
	return ProcessEvents(ctx.Context, ctx.Events, ctx.State, ctx.Registry, &struct{}{})
}
