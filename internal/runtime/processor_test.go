package runtime

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	errspkg "github.com/drblury/ledgerflow/internal/runtime/errors"
	"github.com/drblury/ledgerflow/internal/runtime/handlers"
	"github.com/drblury/ledgerflow/internal/runtime/logging"
	"github.com/drblury/ledgerflow/internal/runtime/models"
	"github.com/drblury/ledgerflow/internal/runtime/observer"
)

type ledgerState struct {
	Seen []string
}

type handlerFn = func(handlers.EventContext[ledgerState, struct{}]) error

func register(t *testing.T, r *handlers.Registry, event string, fn handlerFn) {
	t.Helper()
	require.NoError(t, handlers.RegisterFunc(r, models.MethodKey(testAccount), event, fn))
}

func recordingHandler(extra ...func(handlers.EventContext[ledgerState, struct{}]) error) handlerFn {
	return func(ctx handlers.EventContext[ledgerState, struct{}]) error {
		ctx.State.Seen = append(ctx.State.Seen, fmt.Sprintf("%d:%s", ctx.Transaction.StateVersion, ctx.Event.Name))
		for _, fn := range extra {
			if err := fn(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func newTestProcessor(stream TransactionStream, registry *handlers.Registry, log *callLog) *Processor[ledgerState] {
	return NewProcessor(stream, registry, ledgerState{}).
		WithLogger(log.hooks()).
		WithTracer(noop.NewTracerProvider().Tracer("test")).
		WithEventRetryDelay(10 * time.Millisecond).
		WithTransactionRetryDelay(10 * time.Millisecond)
}

func TestNewProcessorDefaults(t *testing.T) {
	p := NewProcessor[ledgerState](newSliceStream(), nil, ledgerState{})

	assert.Equal(t, DefaultTransactionRetryDelay, p.txRetryDelay)
	assert.Equal(t, DefaultEventRetryDelay, p.eventRetryDelay)
	assert.IsType(t, DefaultTransactionHandler[ledgerState]{}, p.txHandler)
	assert.NotNil(t, p.Registry())
	require.IsType(t, &observer.DefaultLogger{}, p.Logger())
	assert.Equal(t, observer.DefaultReportInterval, p.Logger().PeriodicReportInterval())
}

func TestProcessorLoggerBuilders(t *testing.T) {
	p := NewProcessor[ledgerState](newSliceStream(), nil, ledgerState{})

	p.WithDefaultLoggerReportInterval(time.Second)
	assert.Equal(t, time.Second, p.Logger().PeriodicReportInterval())

	rec := logging.NewRecorder()
	p.WithServiceLogger(rec)
	require.IsType(t, &observer.DefaultLogger{}, p.Logger())
	assert.Equal(t, time.Second, p.Logger().PeriodicReportInterval())

	p.DisableLogging()
	assert.Nil(t, p.Logger())
	p.WithServiceLogger(rec)
	assert.Nil(t, p.Logger(), "service logger must not re-enable a disabled observer")

	hooks := observer.Hooks{}
	p.WithLogger(hooks)
	assert.Equal(t, observer.Logger(hooks), p.Logger())
	p.WithServiceLogger(rec)
	assert.Equal(t, observer.Logger(hooks), p.Logger(), "service logger only feeds the default logger")
}

func TestSkipsTransactionsWithoutHandlers(t *testing.T) {
	registry := handlers.NewRegistry()
	invoked := false
	register(t, registry, "DepositEvent", func(handlers.EventContext[ledgerState, struct{}]) error {
		invoked = true
		return nil
	})

	log := &callLog{}
	other := models.Event{Name: "DepositEvent", Emitter: models.MethodEmitter("account_other")}
	stream := newSliceStream(transaction(1, methodEvent("WithdrawEvent"), other))
	p := newTestProcessor(stream, registry, log)

	require.NoError(t, p.Run(context.Background()))
	assert.False(t, invoked)
	assert.Equal(t, []call{
		{Kind: "receive_tx", StateVersion: 1, Dispatchable: false},
		{Kind: "finish_tx", StateVersion: 1, Handled: false},
	}, log.all())
	assert.Equal(t, int32(1), stream.stops.Load())
}

func TestMethodAndFunctionKeysDoNotCollide(t *testing.T) {
	registry := handlers.NewRegistry()
	register(t, registry, "DepositEvent", recordingHandler())

	fnEvent := models.Event{Name: "DepositEvent", Emitter: models.FunctionEmitter(testAccount, "Account")}
	p := newTestProcessor(newSliceStream(), registry, &callLog{})

	tx := transaction(1, fnEvent)
	handled, err := p.ProcessTransaction(context.Background(), &tx)
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestRunDispatchesEventsInOrder(t *testing.T) {
	registry := handlers.NewRegistry()
	register(t, registry, "WithdrawEvent", recordingHandler())
	register(t, registry, "DepositEvent", recordingHandler())
	require.NoError(t, handlers.RegisterFunc(registry, models.FunctionKey(testPackage, "Pool"), "SwapEvent", recordingHandler()))

	swap := models.Event{Name: "SwapEvent", Emitter: models.FunctionEmitter(testPackage, "Pool")}
	stream := newSliceStream(
		transaction(1, methodEvent("WithdrawEvent"), methodEvent("FeeEvent"), methodEvent("DepositEvent")),
		transaction(2, methodEvent("FeeEvent")),
		transaction(3, swap, methodEvent("DepositEvent")),
	)
	log := &callLog{}
	p := newTestProcessor(stream, registry, log)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []string{"1:WithdrawEvent", "1:DepositEvent", "3:SwapEvent", "3:DepositEvent"}, p.State().Seen)
	assert.Equal(t, 3, log.count("finish_tx"))
	assert.Equal(t, 4, log.count("finish_event"))
	assert.Zero(t, log.count("unrecoverable"))
}

func TestEventRetriedUntilSuccess(t *testing.T) {
	registry := handlers.NewRegistry()
	attempts := 0
	var seenTxCtx []*struct{}
	register(t, registry, "DepositEvent", func(ctx handlers.EventContext[ledgerState, struct{}]) error {
		attempts++
		seenTxCtx = append(seenTxCtx, ctx.TxContext)
		if attempts <= 3 {
			return errspkg.RetryEvent(fmt.Errorf("gateway busy %d", attempts))
		}
		return nil
	})

	log := &callLog{}
	p := newTestProcessor(newSliceStream(transaction(7, methodEvent("DepositEvent"))), registry, log)

	start := time.Now()
	require.NoError(t, p.Run(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	assert.Equal(t, 4, attempts)
	for _, txCtx := range seenTxCtx {
		assert.Same(t, seenTxCtx[0], txCtx, "every attempt shares the transaction context")
	}
	assert.Equal(t, []string{
		"receive_tx",
		"receive_event",
		"retry_event", "receive_event",
		"retry_event", "receive_event",
		"retry_event", "receive_event",
		"finish_event",
		"finish_tx",
	}, log.kinds())

	calls := log.all()
	assert.EqualError(t, calls[2].Err, "gateway busy 1")
	assert.Equal(t, 10*time.Millisecond, calls[2].Delay)
	assert.True(t, calls[3].IsRetry)
	assert.False(t, calls[1].IsRetry)
	assert.True(t, calls[9].Handled)
}

func TestTransactionRetriedWithFreshInvocation(t *testing.T) {
	registry := handlers.NewRegistry()
	register(t, registry, "DepositEvent", recordingHandler())

	invocations := 0
	handler := TransactionHandlerFunc[ledgerState](func(ctx TransactionContext[ledgerState]) error {
		invocations++
		if err := ProcessEvents(ctx.Context, ctx.Events, ctx.State, ctx.Registry, &struct{}{}); err != nil {
			return err
		}
		if invocations < 3 {
			return errspkg.RetryTransaction(errors.New("db deadlock"))
		}
		return nil
	})

	log := &callLog{}
	p := newTestProcessor(newSliceStream(transaction(9, methodEvent("DepositEvent"))), registry, log).
		WithTransactionHandler(handler)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 3, invocations)
	assert.Equal(t, []string{"9:DepositEvent", "9:DepositEvent", "9:DepositEvent"}, p.State().Seen)
	assert.Equal(t, 2, log.count("retry_tx"))

	var retries []call
	for _, c := range log.all() {
		if c.Kind == "receive_tx" {
			retries = append(retries, c)
		}
	}
	require.Len(t, retries, 3)
	assert.False(t, retries[0].IsRetry)
	assert.True(t, retries[1].IsRetry)
	assert.True(t, retries[2].IsRetry)
}

func TestEventHandlerCanRequestTransactionRetry(t *testing.T) {
	registry := handlers.NewRegistry()
	attempts := 0
	register(t, registry, "DepositEvent", func(handlers.EventContext[ledgerState, struct{}]) error {
		attempts++
		if attempts == 1 {
			return errspkg.RetryTransaction(errors.New("stale read"))
		}
		return nil
	})

	log := &callLog{}
	p := newTestProcessor(newSliceStream(transaction(1, methodEvent("DepositEvent"))), registry, log)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, log.count("retry_tx"))
	assert.Zero(t, log.count("retry_event"))
}

func TestUnrecoverableErrorStopsRun(t *testing.T) {
	registry := handlers.NewRegistry()
	register(t, registry, "DepositEvent", recordingHandler(func(ctx handlers.EventContext[ledgerState, struct{}]) error {
		if ctx.Transaction.StateVersion == 2 {
			return errspkg.Unrecoverable(errBoom)
		}
		return nil
	}))

	log := &callLog{}
	stream := newSliceStream(
		transaction(1, methodEvent("DepositEvent")),
		transaction(2, methodEvent("DepositEvent"), methodEvent("DepositEvent")),
		transaction(3, methodEvent("DepositEvent")),
	)
	p := newTestProcessor(stream, registry, log)

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	var fatal *errspkg.UnrecoverableError
	require.ErrorAs(t, err, &fatal)
	assert.Same(t, errBoom, fatal.Cause)

	assert.Equal(t, []string{"1:DepositEvent", "2:DepositEvent"}, p.State().Seen)
	assert.Equal(t, 1, log.count("unrecoverable"))
	assert.Equal(t, 1, log.count("finish_tx"))
	assert.Equal(t, int32(1), stream.stops.Load())
}

func TestPlainErrorsBecomeUnrecoverable(t *testing.T) {
	registry := handlers.NewRegistry()
	register(t, registry, "DepositEvent", func(handlers.EventContext[ledgerState, struct{}]) error {
		return errBoom
	})

	p := newTestProcessor(newSliceStream(transaction(1, methodEvent("DepositEvent"))), registry, &callLog{})
	err := p.Run(context.Background())

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, errspkg.ClassUnrecoverable, errspkg.Classify(err))
}

func TestTransactionHandlerPlainErrorIsUnrecoverable(t *testing.T) {
	registry := handlers.NewRegistry()
	register(t, registry, "DepositEvent", recordingHandler())

	log := &callLog{}
	p := newTestProcessor(newSliceStream(), registry, log).
		WithTransactionHandler(TransactionHandlerFunc[ledgerState](func(TransactionContext[ledgerState]) error {
			return errspkg.RetryEvent(errBoom)
		}))

	tx := transaction(1, methodEvent("DepositEvent"))
	handled, err := p.ProcessTransaction(context.Background(), &tx)
	assert.False(t, handled)
	var fatal *errspkg.UnrecoverableError
	require.ErrorAs(t, err, &fatal)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, log.count("unrecoverable"))
}

func TestTransactionHandlerRetryWrappingEventRetryRetriesTransaction(t *testing.T) {
	registry := handlers.NewRegistry()
	register(t, registry, "DepositEvent", recordingHandler())

	calls := 0
	log := &callLog{}
	p := newTestProcessor(newSliceStream(), registry, log).
		WithTransactionHandler(TransactionHandlerFunc[ledgerState](func(TransactionContext[ledgerState]) error {
			calls++
			if calls == 1 {
				return errspkg.RetryTransaction(errspkg.RetryEvent(errors.New("inner")))
			}
			return nil
		}))

	tx := transaction(1, methodEvent("DepositEvent"))
	handled, err := p.ProcessTransaction(context.Background(), &tx)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, log.count("retry_tx"))
	assert.Zero(t, log.count("unrecoverable"))
}

func TestZeroEventTransactionIsSkippedAndFinished(t *testing.T) {
	registry := handlers.NewRegistry()
	register(t, registry, "DepositEvent", recordingHandler())

	invoked := 0
	log := &callLog{}
	stream := &committingStream{sliceStream: newSliceStream(
		transaction(1),
		transaction(2, methodEvent("DepositEvent")),
	)}
	p := newTestProcessor(stream, registry, log).
		WithTransactionHandler(TransactionHandlerFunc[ledgerState](func(ctx TransactionContext[ledgerState]) error {
			invoked++
			return DefaultTransactionHandler[ledgerState]{}.HandleTransaction(ctx)
		}))

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 1, invoked, "the empty transaction must not reach the handler")
	assert.Equal(t, []string{"2:DepositEvent"}, p.State().Seen)

	calls := log.all()
	require.GreaterOrEqual(t, len(calls), 2)
	assert.Equal(t, call{Kind: "receive_tx", StateVersion: 1, Dispatchable: false}, calls[0])
	assert.Equal(t, call{Kind: "finish_tx", StateVersion: 1, Handled: false}, calls[1])
	assert.Equal(t, call{Kind: "finish_tx", StateVersion: 2, Handled: true}, calls[len(calls)-1])
	assert.Equal(t, []uint64{1, 2}, stream.versions())
}

func TestTransactionHandlerUnrecoverableEndsRun(t *testing.T) {
	registry := handlers.NewRegistry()
	register(t, registry, "DepositEvent", recordingHandler())

	var seen []uint64
	log := &callLog{}
	stream := &committingStream{sliceStream: newSliceStream(
		transaction(1, methodEvent("DepositEvent")),
		transaction(2, methodEvent("DepositEvent")),
		transaction(3, methodEvent("DepositEvent")),
	)}
	p := newTestProcessor(stream, registry, log).
		WithTransactionHandler(TransactionHandlerFunc[ledgerState](func(ctx TransactionContext[ledgerState]) error {
			seen = append(seen, ctx.Transaction.StateVersion)
			if ctx.Transaction.StateVersion == 2 {
				return errspkg.Unrecoverable(errors.New("boom"))
			}
			return nil
		}))

	err := p.Run(context.Background())
	var fatal *errspkg.UnrecoverableError
	require.ErrorAs(t, err, &fatal)
	assert.EqualError(t, fatal.Cause, "boom")

	assert.Equal(t, []uint64{1, 2}, seen, "no transaction after the failure is processed")
	assert.Equal(t, 1, log.count("unrecoverable"))
	assert.Equal(t, 1, log.count("finish_tx"))
	assert.Equal(t, []uint64{1}, stream.versions(), "the failed transaction is never committed")
	assert.Equal(t, int32(1), stream.stops.Load())
}

func TestChannelCloseEndsRunCleanly(t *testing.T) {
	stream := newSliceStream()
	p := newTestProcessor(stream, handlers.NewRegistry(), &callLog{})

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, int32(1), stream.stops.Load())
}

func TestStreamStartFailureIsUnrecoverable(t *testing.T) {
	stream := newSliceStream()
	stream.startErr = errors.New("gateway unreachable")
	log := &callLog{}
	p := newTestProcessor(stream, handlers.NewRegistry(), log)

	err := p.Run(context.Background())
	var fatal *errspkg.UnrecoverableError
	require.ErrorAs(t, err, &fatal)
	assert.ErrorIs(t, err, stream.startErr)
	assert.Contains(t, err.Error(), "start transaction stream")
	assert.Equal(t, 1, log.count("unrecoverable"))
	assert.Zero(t, stream.stops.Load())
}

func TestRunRequiresStream(t *testing.T) {
	p := NewProcessor[ledgerState](nil, nil, ledgerState{})
	assert.ErrorIs(t, p.Run(context.Background()), errspkg.ErrStreamRequired)
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	stream := newSliceStream()
	stream.keepOpen = true
	p := newTestProcessor(stream, handlers.NewRegistry(), &callLog{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return p.running.Load() }, time.Second, time.Millisecond)
	assert.ErrorIs(t, p.Run(context.Background()), errspkg.ErrProcessorRunning)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestCancelDuringEventRetryDelay(t *testing.T) {
	registry := handlers.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	register(t, registry, "DepositEvent", func(handlers.EventContext[ledgerState, struct{}]) error {
		cancel()
		return errspkg.RetryEvent(errors.New("busy"))
	})

	stream := newSliceStream(transaction(1, methodEvent("DepositEvent")))
	log := &callLog{}
	p := newTestProcessor(stream, registry, log).WithEventRetryDelay(time.Hour)

	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, log.count("unrecoverable"))
	assert.Equal(t, int32(1), stream.stops.Load())
}

func TestCancelDuringTransactionRetryDelay(t *testing.T) {
	registry := handlers.NewRegistry()
	register(t, registry, "DepositEvent", recordingHandler())

	ctx, cancel := context.WithCancel(context.Background())
	p := newTestProcessor(newSliceStream(), registry, &callLog{}).
		WithTransactionRetryDelay(time.Hour).
		WithTransactionHandler(TransactionHandlerFunc[ledgerState](func(TransactionContext[ledgerState]) error {
			cancel()
			return errspkg.RetryTransaction(errors.New("busy"))
		}))

	tx := transaction(1, methodEvent("DepositEvent"))
	handled, err := p.ProcessTransaction(ctx, &tx)
	assert.False(t, handled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandlerTypeMismatchPanics(t *testing.T) {
	registry := handlers.NewRegistry()
	require.NoError(t, handlers.RegisterFunc(registry, models.MethodKey(testAccount), "DepositEvent",
		func(handlers.EventContext[int, struct{}]) error { return nil }))

	p := newTestProcessor(newSliceStream(), registry, &callLog{})
	tx := transaction(1, methodEvent("DepositEvent"))

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		_, _ = p.ProcessTransaction(context.Background(), &tx)
	}()

	msg, ok := recovered.(string)
	require.True(t, ok, "expected a string panic, got %v", recovered)
	assert.Contains(t, msg, "method:"+testAccount+"/DepositEvent")
	assert.Contains(t, msg, "registered with state int")
	assert.Contains(t, msg, "requested with state runtime.ledgerState")
}

func TestLastRegistrationWins(t *testing.T) {
	registry := handlers.NewRegistry()
	var got []string
	register(t, registry, "DepositEvent", func(handlers.EventContext[ledgerState, struct{}]) error {
		got = append(got, "first")
		return nil
	})
	register(t, registry, "DepositEvent", func(handlers.EventContext[ledgerState, struct{}]) error {
		got = append(got, "second")
		return nil
	})

	p := newTestProcessor(newSliceStream(transaction(1, methodEvent("DepositEvent"))), registry, &callLog{})
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []string{"second"}, got)
}

func TestHandlersCanRegisterMidStream(t *testing.T) {
	registry := handlers.NewRegistry()
	register(t, registry, "PoolCreatedEvent", recordingHandler(func(ctx handlers.EventContext[ledgerState, struct{}]) error {
		return handlers.RegisterFunc(ctx.Registry, models.MethodKey(testAccount), "SwapEvent", recordingHandler())
	}))

	stream := newSliceStream(
		transaction(1, methodEvent("SwapEvent")),
		transaction(2, methodEvent("PoolCreatedEvent"), methodEvent("SwapEvent")),
		transaction(3, methodEvent("SwapEvent")),
	)
	p := newTestProcessor(stream, registry, &callLog{})

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []string{"2:PoolCreatedEvent", "2:SwapEvent", "3:SwapEvent"}, p.State().Seen)
}

func TestPeriodicReportRunsAndStops(t *testing.T) {
	reports := make(chan struct{}, 16)
	hooks := observer.Hooks{
		OnReport: func(context.Context) {
			select {
			case reports <- struct{}{}:
			default:
			}
		},
		ReportInterval: 5 * time.Millisecond,
	}

	stream := newSliceStream()
	stream.keepOpen = true
	p := NewProcessor[ledgerState](stream, nil, ledgerState{}).WithLogger(hooks)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-reports:
	case <-time.After(time.Second):
		t.Fatal("expected a periodic report")
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	for len(reports) > 0 {
		<-reports
	}
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, len(reports), "report goroutine must stop with Run")
}

func TestDisabledLoggingSendsNothing(t *testing.T) {
	registry := handlers.NewRegistry()
	register(t, registry, "DepositEvent", recordingHandler())
	p := NewProcessor(newSliceStream(transaction(1, methodEvent("DepositEvent"))), registry, ledgerState{}).DisableLogging()

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []string{"1:DepositEvent"}, p.State().Seen)
}

func TestDispatchOrderProperty(t *testing.T) {
	names := []string{"A", "B", "C", "D"}
	registered := map[string]bool{"A": true, "C": true}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("handlers run in stream order and only for registered events", prop.ForAll(
		func(layout [][]int) bool {
			registry := handlers.NewRegistry()
			for name := range registered {
				if err := handlers.RegisterFunc(registry, models.MethodKey(testAccount), name, recordingHandler()); err != nil {
					return false
				}
			}

			var txs []models.Transaction
			var want []string
			for i, eventIdx := range layout {
				version := uint64(i + 1)
				var events []models.Event
				for _, idx := range eventIdx {
					name := names[idx]
					events = append(events, methodEvent(name))
					if registered[name] {
						want = append(want, fmt.Sprintf("%d:%s", version, name))
					}
				}
				txs = append(txs, transaction(version, events...))
			}

			p := NewProcessor(newSliceStream(txs...), registry, ledgerState{}).DisableLogging()
			if err := p.Run(context.Background()); err != nil {
				return false
			}
			if len(want) == 0 {
				return len(p.State().Seen) == 0
			}
			return assert.ObjectsAreEqual(want, p.State().Seen)
		},
		gen.SliceOf(gen.SliceOf(gen.IntRange(0, len(names)-1))),
	))

	properties.TestingRun(t)
}

func TestTransactionRetryIsUnbounded(t *testing.T) {
	registry := handlers.NewRegistry()
	register(t, registry, "DepositEvent", recordingHandler())

	const failures = 25
	invocations := 0
	p := newTestProcessor(newSliceStream(), registry, &callLog{}).
		WithTransactionRetryDelay(0).
		WithTransactionHandler(TransactionHandlerFunc[ledgerState](func(TransactionContext[ledgerState]) error {
			invocations++
			if invocations <= failures {
				return errspkg.RetryTransaction(errors.New("again"))
			}
			return nil
		}))

	tx := transaction(1, methodEvent("DepositEvent"))
	handled, err := p.ProcessTransaction(context.Background(), &tx)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, failures+1, invocations)
}
