/*
Package runtime provides the dispatch-and-retry engine behind ledgerflow.

# Architecture Overview

A Processor pulls committed transactions from a TransactionStream one at a
time, in stream order. Transactions that carry no event with a registered
handler are skipped. Every other transaction is handed to the configured
TransactionHandler, which usually calls ProcessEvents to dispatch the events
in their original order.

# Package Structure

## Processor (processor.go)

The Processor owns the user state and wires together:
  - the transaction stream (stream.go)
  - the handler registry (handlers subpackage)
  - the transaction handler (transaction_handler.go)
  - an observer.Logger for notifications and periodic reports
  - an OpenTelemetry tracer for per-transaction and per-event spans

## Event Dispatch (events.go)

ProcessEvents looks up the handler for each event by emitter key and event
name, checks its state and transaction context types, and invokes it. Event
retries loop on the same handler until it succeeds or returns a different
error.

## Retry Semantics

Handlers control the engine through error values from the errors subpackage:
  - RetryEvent: invoke the same event handler again after the event delay
  - RetryTransaction: run the whole transaction handler again after the
    transaction delay
  - anything else: the run ends with an UnrecoverableError

There is no skip outcome. A transaction is only left behind once every
handler for it has succeeded.

## HTTP (server.go, status.go)

HTTPServers groups handlers by port. StatusHandler serves a JSON snapshot of
the registered handlers for dashboards.

# Subpackages

  - config: YAML/environment configuration
  - errors: retry and unrecoverable error types
  - handlers: the typed handler registry
  - ids: ULID helpers
  - jsoncodec: JSON encoding used by handlers and codecs
  - logging: ServiceLogger adapters for slog and watermill
  - metadata: message metadata keys for relayed transactions
  - models: transactions, events and emitters
  - observer: default, Prometheus, hook and checkpointing observers
  - wirecodec: transaction wire encodings
*/
package runtime
