package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/ledgerflow/internal/runtime/errors"
	"github.com/drblury/ledgerflow/internal/runtime/handlers"
	"github.com/drblury/ledgerflow/internal/runtime/logging"
	"github.com/drblury/ledgerflow/internal/runtime/models"
	"github.com/drblury/ledgerflow/internal/runtime/observer"
)

const (
	DefaultTransactionRetryDelay = 10 * time.Second
	DefaultEventRetryDelay       = 10 * time.Second
)

// Processor consumes a TransactionStream and dispatches every transaction with
// at least one registered event handler, strictly in stream order. State is
// owned by the processor and handed to handlers by pointer.
//
// Configure the processor with the With* methods before calling Run; they are
// not safe to call concurrently with Run.
type Processor[S any] struct {
	stream   TransactionStream
	registry *handlers.Registry
	state    S

	txHandler       TransactionHandler[S]
	txRetryDelay    time.Duration
	eventRetryDelay time.Duration

	observer       *observerCell
	log            logging.ServiceLogger
	reportInterval time.Duration
	customLogger   bool
	loggingOff     bool

	tracer  trace.Tracer
	running atomic.Bool
}

// NewProcessor creates a processor reading from stream and dispatching through
// registry. It starts with the default transaction handler, 10s retry delays
// and an observer.DefaultLogger writing to slog.Default().
func NewProcessor[S any](stream TransactionStream, registry *handlers.Registry, state S) *Processor[S] {
	if registry == nil {
		registry = handlers.NewRegistry()
	}
	p := &Processor[S]{
		stream:          stream,
		registry:        registry,
		state:           state,
		txHandler:       DefaultTransactionHandler[S]{},
		txRetryDelay:    DefaultTransactionRetryDelay,
		eventRetryDelay: DefaultEventRetryDelay,
		observer:        &observerCell{},
		log:             logging.NewSlogServiceLogger(slog.Default()),
		reportInterval:  observer.DefaultReportInterval,
		tracer:          defaultTracer(),
	}
	p.resetDefaultLogger()
	return p
}

// WithTransactionHandler replaces the default transaction handler.
func (p *Processor[S]) WithTransactionHandler(h TransactionHandler[S]) *Processor[S] {
	if h != nil {
		p.txHandler = h
	}
	return p
}

// WithTransactionRetryDelay sets the pause before a transaction is retried.
func (p *Processor[S]) WithTransactionRetryDelay(d time.Duration) *Processor[S] {
	p.txRetryDelay = d
	return p
}

// WithEventRetryDelay sets the pause before an event handler is retried.
func (p *Processor[S]) WithEventRetryDelay(d time.Duration) *Processor[S] {
	p.eventRetryDelay = d
	return p
}

// WithLogger replaces the observer. Combine several with observer.Multi.
func (p *Processor[S]) WithLogger(l observer.Logger) *Processor[S] {
	p.customLogger = true
	p.loggingOff = l == nil
	p.observer.set(l)
	return p
}

// WithDefaultLoggerReportInterval switches back to the default logger with a
// custom periodic report interval.
func (p *Processor[S]) WithDefaultLoggerReportInterval(interval time.Duration) *Processor[S] {
	p.customLogger = false
	p.loggingOff = false
	p.reportInterval = interval
	p.resetDefaultLogger()
	return p
}

// WithServiceLogger sets the sink of the default logger.
func (p *Processor[S]) WithServiceLogger(log logging.ServiceLogger) *Processor[S] {
	if log == nil {
		return p
	}
	p.log = log
	if !p.customLogger && !p.loggingOff {
		p.resetDefaultLogger()
	}
	return p
}

// DisableLogging removes the observer. No notifications are sent and no
// periodic report runs.
func (p *Processor[S]) DisableLogging() *Processor[S] {
	p.loggingOff = true
	p.observer.set(nil)
	return p
}

// WithTracer overrides the OpenTelemetry tracer used for handler spans.
func (p *Processor[S]) WithTracer(tracer trace.Tracer) *Processor[S] {
	if tracer != nil {
		p.tracer = tracer
	}
	return p
}

func (p *Processor[S]) resetDefaultLogger() {
	p.observer.set(observer.NewDefaultLoggerWithInterval(p.log, p.reportInterval))
}

// State returns the processor-owned state.
func (p *Processor[S]) State() *S {
	return &p.state
}

// Registry returns the handler registry.
func (p *Processor[S]) Registry() *handlers.Registry {
	return p.registry
}

// Logger returns the current observer, or nil when logging is disabled.
func (p *Processor[S]) Logger() observer.Logger {
	return p.observer.get()
}

// Run starts the stream and processes transactions until the stream's channel
// closes (nil), ctx is cancelled (ctx.Err()) or a handler fails unrecoverably
// (the *errors.UnrecoverableError). The stream is stopped on every exit. A
// stream implementing TransactionCommitter is told about every transaction
// that finished.
func (p *Processor[S]) Run(ctx context.Context) error {
	if p.stream == nil {
		return errspkg.ErrStreamRequired
	}
	if !p.running.CompareAndSwap(false, true) {
		return errspkg.ErrProcessorRunning
	}
	defer p.running.Store(false)

	txs, err := p.stream.Start(ctx)
	if err != nil {
		fatal := errspkg.Unrecoverable(fmt.Errorf("start transaction stream: %w", err))
		p.observer.notify(func(l observer.Logger) { l.UnrecoverableError(ctx, fatal) })
		return fatal
	}
	defer p.stream.Stop(context.WithoutCancel(ctx))
	committer, _ := p.stream.(TransactionCommitter)

	reportCtx, cancelReport := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if interval := p.observer.interval(); interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.observer.reportLoop(reportCtx, interval)
		}()
	}
	defer func() {
		cancelReport()
		wg.Wait()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tx, ok := <-txs:
			if !ok {
				return nil
			}
			handled, err := p.ProcessTransaction(ctx, &tx)
			if err != nil {
				return err
			}
			p.observer.notify(func(l observer.Logger) { l.FinishTransaction(ctx, &tx, handled) })
			if committer != nil {
				committer.Commit(ctx, &tx)
			}
		}
	}
}

// ProcessTransaction handles a single transaction and reports whether any
// handler ran. Transactions without registered event handlers are skipped
// and reported as not handled. Transaction retries continue until the handler
// succeeds, fails unrecoverably or ctx is cancelled.
func (p *Processor[S]) ProcessTransaction(ctx context.Context, tx *models.Transaction) (bool, error) {
	dispatchable := p.dispatchable(tx)
	p.observer.notify(func(l observer.Logger) { l.ReceiveTransaction(ctx, tx, dispatchable, false) })
	if !dispatchable {
		return false, nil
	}

	for attempt := 1; ; attempt++ {
		err := p.invokeTransactionHandler(ctx, tx, attempt)
		if err == nil {
			return true, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return false, ctxErr
		}

		var retry *errspkg.TransactionRetryError
		if errspkg.Classify(err) != errspkg.ClassTransactionRetry || !errors.As(err, &retry) {
			fatal := errspkg.Unrecoverable(err)
			p.observer.notify(func(l observer.Logger) { l.UnrecoverableError(ctx, fatal) })
			return false, fatal
		}

		p.observer.notify(func(l observer.Logger) { l.TransactionRetryError(ctx, tx, retry.Cause, p.txRetryDelay) })
		if err := sleepContext(ctx, p.txRetryDelay); err != nil {
			return false, err
		}
		p.observer.notify(func(l observer.Logger) { l.ReceiveTransaction(ctx, tx, true, true) })
	}
}

func (p *Processor[S]) dispatchable(tx *models.Transaction) bool {
	for i := range tx.Events {
		if p.registry.HandlerExists(tx.Events[i].Emitter.Key(), tx.Events[i].Name) {
			return true
		}
	}
	return false
}

func (p *Processor[S]) invokeTransactionHandler(ctx context.Context, tx *models.Transaction, attempt int) error {
	spanCtx, span := startTransactionSpan(ctx, p.tracer, tx, attempt)
	err := p.txHandler.HandleTransaction(TransactionContext[S]{
		Context:     spanCtx,
		State:       &p.state,
		Transaction: tx,
		Registry:    p.registry,
		Events: &EventProcessor{
			tx:         tx,
			retryDelay: p.eventRetryDelay,
			observer:   p.observer,
			tracer:     p.tracer,
		},
	})
	endSpan(span, err)
	return err
}
