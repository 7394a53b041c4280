package pubsub

import (
	"context"
	"slices"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/ledgerflow/internal/runtime/errors"
	"github.com/drblury/ledgerflow/internal/runtime/logging"
	"github.com/drblury/ledgerflow/internal/runtime/metadata"
	"github.com/drblury/ledgerflow/internal/runtime/models"
	"github.com/drblury/ledgerflow/internal/runtime/wirecodec"
	"github.com/drblury/ledgerflow/source"
	"github.com/drblury/ledgerflow/source/cursor"
	"github.com/drblury/ledgerflow/transport"
)

const DefaultBufferCapacity = 1000

// duplicateWindow is how many delivered state versions a stream remembers to
// tell redeliveries from versions that arrive out of order.
const duplicateWindow = 4096

type StreamConfig struct {
	Topic string
	// ContentType decodes messages without a content type header. Empty
	// means JSON.
	ContentType string
	// FromStateVersion drops messages below it.
	FromStateVersion uint64
	BufferCapacity   int
	// Cursor, when it holds a saved state version, raises FromStateVersion to
	// the version after it.
	Cursor cursor.Store
}

// Stream decodes relayed transactions from a topic. A message stays unacked
// until the processor commits its transaction, so a crash before that leaves
// it with the broker for redelivery. Messages that cannot be decoded are
// logged and acked. Redeliveries of versions the stream already delivered, or
// that lie before the version it resumed from, are acked and dropped. Any
// other version below the next expected one arrived out of order; it is
// logged as an error and dropped.
type Stream struct {
	subscriber message.Subscriber
	cfg        StreamConfig
	log        logging.ServiceLogger
	owned      *transport.Transport

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool

	// pending holds delivered messages until Commit acks them.
	pendingMu sync.Mutex
	pending   map[uint64]*message.Message

	// resume and delivered are owned by the consumer goroutine.
	resume    uint64
	delivered []uint64
}

var (
	_ source.Stream    = (*Stream)(nil)
	_ source.Committer = (*Stream)(nil)
)

func NewStream(subscriber message.Subscriber, cfg StreamConfig, log logging.ServiceLogger) (*Stream, error) {
	if subscriber == nil {
		return nil, errspkg.ErrSubscriberRequired
	}
	if cfg.Topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = DefaultBufferCapacity
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Stream{
		subscriber: subscriber,
		cfg:        cfg,
		log:        log.With(logging.LogFields{"component": "pubsub_stream", "topic": cfg.Topic}),
		pending:    make(map[uint64]*message.Message),
	}, nil
}

func (s *Stream) Start(ctx context.Context) (<-chan models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, errspkg.ErrStreamStarted
	}

	from, err := cursor.ResumeFrom(ctx, s.cfg.Cursor, s.cfg.FromStateVersion)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	messages, err := s.subscriber.Subscribe(runCtx, s.cfg.Topic)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan models.Transaction, s.cfg.BufferCapacity)
	s.started = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.resume = from

	s.log.Info("Subscribed to relayed transactions", logging.LogFields{"from_state_version": from})
	go s.run(runCtx, messages, from, out)
	return out, nil
}

// Commit acks the message that carried tx.
func (s *Stream) Commit(_ context.Context, tx *models.Transaction) {
	s.pendingMu.Lock()
	msg, ok := s.pending[tx.StateVersion]
	delete(s.pending, tx.StateVersion)
	s.pendingMu.Unlock()
	if ok {
		msg.Ack()
	}
}

// Stop cancels the subscription, waits for the consumer goroutine, nacks the
// messages that were never committed and closes a transport the stream built
// itself.
func (s *Stream) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	closeOwned := s.owned != nil && !s.stopped
	s.stopped = true
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	s.nackPending()
	if closeOwned {
		if err := s.owned.Close(); err != nil {
			s.log.Error("Failed to close transport", err, nil)
		}
	}
}

func (s *Stream) nackPending() {
	s.pendingMu.Lock()
	pending := s.pending
	s.pending = make(map[uint64]*message.Message)
	s.pendingMu.Unlock()
	for _, msg := range pending {
		msg.Nack()
	}
}

func (s *Stream) run(ctx context.Context, messages <-chan *message.Message, next uint64, out chan<- models.Transaction) {
	defer close(s.done)
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				s.log.Info("Subscription closed", nil)
				return
			}
			if !s.forward(ctx, msg, &next, out) {
				return
			}
		}
	}
}

func (s *Stream) forward(ctx context.Context, msg *message.Message, next *uint64, out chan<- models.Transaction) bool {
	md := metadata.FromWatermill(msg.Metadata)
	contentType := md.ContentType()
	if contentType == "" {
		contentType = s.cfg.ContentType
	}

	tx, err := wirecodec.Decode(contentType, msg.Payload)
	if err != nil {
		s.log.Error("Dropping undecodable transaction message", err, logging.LogFields{
			"message_uuid": msg.UUID,
			"content_type": contentType,
		})
		msg.Ack()
		return true
	}

	if v := tx.StateVersion; v < *next {
		switch {
		case v < s.resume:
			s.log.Debug("Dropping already consumed transaction", logging.LogFields{
				"state_version":      v,
				"next_state_version": *next,
			})
		case s.wasDelivered(v):
			s.log.Debug("Dropping redelivered transaction", logging.LogFields{
				"state_version":      v,
				"next_state_version": *next,
			})
		default:
			s.log.Error("Transaction arrived out of order, dropping it", errspkg.ErrOutOfOrder, logging.LogFields{
				"state_version":      v,
				"next_state_version": *next,
				"message_uuid":       msg.UUID,
			})
		}
		msg.Ack()
		return true
	}

	s.pendingMu.Lock()
	s.pending[tx.StateVersion] = msg
	s.pendingMu.Unlock()

	select {
	case out <- tx:
		*next = tx.StateVersion + 1
		s.remember(tx.StateVersion)
		return true
	case <-ctx.Done():
		s.pendingMu.Lock()
		delete(s.pending, tx.StateVersion)
		s.pendingMu.Unlock()
		msg.Nack()
		return false
	}
}

// remember records a delivered version. Versions arrive increasing, so
// delivered stays sorted.
func (s *Stream) remember(v uint64) {
	s.delivered = append(s.delivered, v)
	if len(s.delivered) > 2*duplicateWindow {
		s.delivered = slices.Clone(s.delivered[len(s.delivered)-duplicateWindow:])
	}
}

// wasDelivered reports whether v was delivered before. Versions older than
// the remembered window count as delivered.
func (s *Stream) wasDelivered(v uint64) bool {
	if len(s.delivered) == 0 {
		return false
	}
	if v < s.delivered[0] {
		return true
	}
	_, found := slices.BinarySearch(s.delivered, v)
	return found
}
