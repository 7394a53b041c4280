// Package ledgerflow dispatches the events of an ordered transaction log, such
// as the Radix ledger, to typed handlers and retries failed work until it
// succeeds or fails unrecoverably.
//
// A Processor reads transactions from a TransactionStream in state version
// order. For every transaction with at least one handler registered for one
// of its (emitter, event name) pairs it runs the transaction handler, which by
// default dispatches the events one by one through ProcessEvents. Handlers
// signal failure with RetryEvent, RetryTransaction or Unrecoverable; there is
// no retry ceiling and no way to skip work, so a transaction is either fully
// handled or the run stops.
//
// # Sources
//
// Streams live under source/ and register themselves by name:
//   - gateway: polls the Radix Gateway API /stream/transactions endpoint
//   - pubsub: reads transactions relayed onto a Watermill topic
//   - memory: an in-process stream fed by Push
//
// Import source/sources to register all of them together with every pub/sub
// transport (channel, kafka, nats, rabbitmq, aws, http). A cursor.Store
// (memory, SQLite or PostgreSQL) lets a restarted source resume after the
// last processed state version; NewCheckpointer keeps it current.
//
// # Observers
//
// Lifecycle notifications go to a Logger. The default one writes through a
// ServiceLogger and reports progress periodically; NewPrometheusLogger
// exports the same as metrics and MultiLogger fans out to several.
//
// # Minimal setup
//
//	registry := ledgerflow.NewRegistry()
//	_ = ledgerflow.RegisterFunc(registry, ledgerflow.MethodKey("account_rdx..."), "DepositEvent",
//		func(ctx ledgerflow.EventContext[MyState, struct{}]) error {
//			ctx.State.Deposits++
//			return nil
//		})
//
//	stream := gateway.New(gateway.Config{FromStateVersion: 1}, logger)
//	err := ledgerflow.NewProcessor(stream, registry, MyState{}).Run(ctx)
package ledgerflow
