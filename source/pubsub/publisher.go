package pubsub

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/ledgerflow/internal/runtime/errors"
	idspkg "github.com/drblury/ledgerflow/internal/runtime/ids"
	"github.com/drblury/ledgerflow/internal/runtime/metadata"
	"github.com/drblury/ledgerflow/internal/runtime/models"
	"github.com/drblury/ledgerflow/internal/runtime/wirecodec"
)

type PublisherConfig struct {
	Topic string
	// ContentType selects the wire format. Empty means JSON.
	ContentType string
	// Network is copied into every message, Kafka partitions by it.
	Network string
}

// Publisher writes transactions to one topic.
type Publisher struct {
	publisher message.Publisher
	cfg       PublisherConfig
	now       func() time.Time
}

func NewPublisher(publisher message.Publisher, cfg PublisherConfig) (*Publisher, error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if cfg.Topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if cfg.ContentType == "" {
		cfg.ContentType = wirecodec.ContentTypeJSON
	}
	if _, err := wirecodec.Encode(cfg.ContentType, &models.Transaction{}); err != nil {
		return nil, err
	}
	return &Publisher{publisher: publisher, cfg: cfg, now: time.Now}, nil
}

// NewMessage encodes tx into a Watermill message. The message id is a ULID
// stamped with the confirmation time, the metadata describes the transaction
// and carries the trace of ctx.
func (p *Publisher) NewMessage(ctx context.Context, tx *models.Transaction) (*message.Message, error) {
	payload, err := wirecodec.Encode(p.cfg.ContentType, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction %d: %w", tx.StateVersion, err)
	}

	md := metadata.ForTransaction(tx, p.cfg.ContentType).
		With(metadata.KeyPublishedAt, p.now().UTC().Format(time.RFC3339Nano)).
		With(metadata.KeyCorrelationID, tx.IntentHash)
	if p.cfg.Network != "" {
		md = md.With(metadata.KeyNetwork, p.cfg.Network)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		md = md.With(metadata.KeyTraceID, sc.TraceID().String()).
			With(metadata.KeySpanID, sc.SpanID().String())
	}

	msg := message.NewMessage(idspkg.CreateULIDAt(tx.ConfirmedAt), payload)
	msg.Metadata = metadata.ToWatermill(md)
	msg.SetContext(ctx)
	return msg, nil
}

// Publish encodes tx and publishes it to the configured topic.
func (p *Publisher) Publish(ctx context.Context, tx *models.Transaction) error {
	msg, err := p.NewMessage(ctx, tx)
	if err != nil {
		return err
	}
	return p.publisher.Publish(p.cfg.Topic, msg)
}
