// Package pubsub relays transactions through a message broker. A Publisher
// writes them to a topic, Relay drives a Publisher from any transaction
// stream, and Stream reads them back for a processor.
package pubsub

import (
	"context"

	errspkg "github.com/drblury/ledgerflow/internal/runtime/errors"
	"github.com/drblury/ledgerflow/internal/runtime/logging"
	"github.com/drblury/ledgerflow/source"
	"github.com/drblury/ledgerflow/transport"
)

const SourceName = "pubsub"

func init() {
	Register(source.DefaultRegistry)
}

// Register adds the pub/sub source to r.
func Register(r *source.Registry) {
	r.Register(SourceName, Build)
}

// Build subscribes to cfg.GetTopic(). Without deps.Transport the transport
// selected by cfg.GetPubSubSystem() is built and closed together with the
// stream.
func Build(ctx context.Context, cfg source.Config, deps source.Deps) (source.Stream, error) {
	if cfg.GetTopic() == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}

	tr := deps.Transport
	owned := tr == nil
	if owned {
		system := cfg.GetPubSubSystem()
		if caps := transport.GetCapabilities(system); !caps.SuitableForLedger() {
			deps.Logger.Info("Transport does not guarantee ordered delivery, transactions may be skipped", logging.LogFields{
				"pubsub_system": system,
			})
		}

		built, err := transport.Build(ctx, cfg, logging.NewWatermillAdapter(deps.Logger))
		if err != nil {
			return nil, err
		}
		tr = &built
	}

	stream, err := NewStream(tr.Subscriber, StreamConfig{
		Topic:            cfg.GetTopic(),
		ContentType:      cfg.GetContentType(),
		FromStateVersion: cfg.GetFromStateVersion(),
		BufferCapacity:   cfg.GetBufferCapacity(),
		Cursor:           deps.Cursor,
	}, deps.Logger)
	if err != nil {
		if owned {
			_ = tr.Close()
		}
		return nil, err
	}
	if owned {
		stream.owned = tr
	}
	return stream, nil
}
