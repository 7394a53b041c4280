package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrStreamRequired      = sterrors.New("ledgerflow: transaction stream is required")
	ErrRegistryRequired    = sterrors.New("ledgerflow: handler registry is required")
	ErrHandlerRequired     = sterrors.New("ledgerflow: handler is required")
	ErrEventNameRequired   = sterrors.New("ledgerflow: event name is required")
	ErrPublisherRequired   = sterrors.New("ledgerflow: publisher is required")
	ErrSubscriberRequired  = sterrors.New("ledgerflow: subscriber is required")
	ErrTopicRequired       = sterrors.New("ledgerflow: topic is required")
	ErrCursorStoreRequired = sterrors.New("ledgerflow: cursor store is required")
	ErrStreamStarted       = sterrors.New("ledgerflow: transaction stream already started")
	ErrProcessorRunning    = sterrors.New("ledgerflow: processor is already running")
	ErrOutOfOrder          = sterrors.New("ledgerflow: transaction arrived out of order")
)

// EventRetryError asks the event processor to invoke the same event handler
// again after the configured event retry delay.
type EventRetryError struct {
	Cause error
}

// RetryEvent wraps cause so the failing event is retried.
func RetryEvent(cause error) *EventRetryError {
	return &EventRetryError{Cause: cause}
}

func (e *EventRetryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ledgerflow: retry event: %v", e.Cause)
	}
	return "ledgerflow: retry event"
}

func (e *EventRetryError) Unwrap() error {
	return e.Cause
}

// TransactionRetryError asks the processor to invoke the transaction handler
// again after the configured transaction retry delay.
type TransactionRetryError struct {
	Cause error
}

// RetryTransaction wraps cause so the whole transaction is retried.
func RetryTransaction(cause error) *TransactionRetryError {
	return &TransactionRetryError{Cause: cause}
}

func (e *TransactionRetryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ledgerflow: retry transaction: %v", e.Cause)
	}
	return "ledgerflow: retry transaction"
}

func (e *TransactionRetryError) Unwrap() error {
	return e.Cause
}

// UnrecoverableError terminates the processor run. The cause is returned to
// the caller of Run.
type UnrecoverableError struct {
	Cause error
}

// Unrecoverable wraps cause as a fatal error. An error that already is
// unrecoverable is returned unchanged.
func Unrecoverable(cause error) *UnrecoverableError {
	var existing *UnrecoverableError
	if sterrors.As(cause, &existing) {
		return existing
	}
	return &UnrecoverableError{Cause: cause}
}

func (e *UnrecoverableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ledgerflow: unrecoverable: %v", e.Cause)
	}
	return "ledgerflow: unrecoverable"
}

func (e *UnrecoverableError) Unwrap() error {
	return e.Cause
}

// Classification describes how the engine reacts to a handler error.
type Classification int

const (
	// ClassNone means the handler succeeded.
	ClassNone Classification = iota
	// ClassEventRetry retries the current event.
	ClassEventRetry
	// ClassTransactionRetry retries the current transaction.
	ClassTransactionRetry
	// ClassUnrecoverable aborts the run.
	ClassUnrecoverable
)

func (c Classification) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassEventRetry:
		return "event_retry"
	case ClassTransactionRetry:
		return "transaction_retry"
	default:
		return "unrecoverable"
	}
}

// Classify maps a handler error onto the engine's reaction. The outermost
// retry or unrecoverable wrapper in the chain decides, so
// RetryTransaction(RetryEvent(err)) retries the transaction. Unknown errors are
// unrecoverable; there is no "skip" outcome.
func Classify(err error) Classification {
	if err == nil {
		return ClassNone
	}
	if class, ok := outermost(err); ok {
		return class
	}
	return ClassUnrecoverable
}

// outermost walks the chain in the order errors.As does.
func outermost(err error) (Classification, bool) {
	for err != nil {
		switch err.(type) {
		case *UnrecoverableError:
			return ClassUnrecoverable, true
		case *EventRetryError:
			return ClassEventRetry, true
		case *TransactionRetryError:
			return ClassTransactionRetry, true
		}
		switch x := err.(type) {
		case interface{ Unwrap() error }:
			err = x.Unwrap()
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				if class, ok := outermost(inner); ok {
					return class, true
				}
			}
			return ClassNone, false
		default:
			return ClassNone, false
		}
	}
	return ClassNone, false
}
