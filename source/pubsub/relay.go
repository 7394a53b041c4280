package pubsub

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/drblury/ledgerflow/internal/runtime/logging"
	"github.com/drblury/ledgerflow/internal/runtime/models"
	"github.com/drblury/ledgerflow/internal/runtime/observer"
	"github.com/drblury/ledgerflow/source"
)

const (
	DefaultRetryInitialInterval = 500 * time.Millisecond
	DefaultRetryMaxInterval     = 30 * time.Second
)

type RelayConfig struct {
	// Cursor records each published state version.
	Cursor               observer.CursorSaver
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// Relay publishes every transaction of a stream in order. A failed publish
// is retried with exponential backoff until it succeeds or ctx ends. A stream
// implementing source.Committer is committed once the transaction is
// published and checkpointed.
type Relay struct {
	stream    source.Stream
	publisher *Publisher
	cfg       RelayConfig
	log       logging.ServiceLogger
}

func NewRelay(stream source.Stream, publisher *Publisher, cfg RelayConfig, log logging.ServiceLogger) *Relay {
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = DefaultRetryInitialInterval
	}
	if cfg.RetryMaxInterval <= 0 {
		cfg.RetryMaxInterval = DefaultRetryMaxInterval
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Relay{
		stream:    stream,
		publisher: publisher,
		cfg:       cfg,
		log:       log.With(logging.LogFields{"component": "relay", "topic": publisher.cfg.Topic}),
	}
}

// Run relays until the stream closes, which returns nil, or ctx ends, which
// returns ctx.Err().
func (r *Relay) Run(ctx context.Context) error {
	transactions, err := r.stream.Start(ctx)
	if err != nil {
		return err
	}
	defer r.stream.Stop(context.WithoutCancel(ctx))
	committer, _ := r.stream.(source.Committer)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tx, ok := <-transactions:
			if !ok {
				r.log.Info("Transaction stream closed", nil)
				return nil
			}
			if err := r.publish(ctx, &tx); err != nil {
				return err
			}
			r.checkpoint(ctx, &tx)
			if committer != nil {
				committer.Commit(ctx, &tx)
			}
		}
	}
}

func (r *Relay) publish(ctx context.Context, tx *models.Transaction) error {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = r.cfg.RetryInitialInterval
	retry.MaxInterval = r.cfg.RetryMaxInterval

	for {
		err := r.publisher.Publish(ctx, tx)
		if err == nil {
			r.log.Debug("Relayed transaction", tx.LogFields())
			return nil
		}

		delay := retry.NextBackOff()
		r.log.Error("Failed to publish transaction, trying again", err, logging.LogFields{
			"state_version": tx.StateVersion,
			"retry_in":      delay.String(),
		})

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (r *Relay) checkpoint(ctx context.Context, tx *models.Transaction) {
	if r.cfg.Cursor == nil {
		return
	}
	if err := r.cfg.Cursor.Save(context.WithoutCancel(ctx), tx.StateVersion); err != nil {
		r.log.Error("Failed to save cursor", err, logging.LogFields{"state_version": tx.StateVersion})
	}
}
