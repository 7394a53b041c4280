// Package channel provides an in-process Go channel transport, used by tests
// and by running a relay and a watcher in one process.
package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/ledgerflow/transport"
)

const TransportName = "channel"

var ErrClosed = errors.New("channel transport closed")

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	Register(transport.DefaultRegistry)
}

// Register adds the channel transport to r.
func Register(r *transport.Registry) {
	r.Register(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates an in-process pub/sub. Publishing blocks until the
// subscriber acked, so a topic is consumed in publish order. Messages
// published while a topic has no subscriber are held and handed to the next
// subscriber, in order, before any later publish.
func Build(_ context.Context, _ transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	pub, sub := Factory(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, logger)
	ps := newOrderedPubSub(pub, sub, logger)
	return transport.Transport{Publisher: ps, Subscriber: ps}, nil
}

// orderedPubSub replays held messages serially. gochannel's own persistent
// mode replays them concurrently, which loses the publish order.
type orderedPubSub struct {
	pub    message.Publisher
	sub    message.Subscriber
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	topics map[string]*topicState
	closed bool

	closeOnce sync.Once
	closeErr  error
}

type topicState struct {
	// publishing serialises publishes to the topic, the backlog replay
	// included.
	publishing sync.Mutex

	subscriptions []context.Context
	backlog       []*message.Message
}

func newOrderedPubSub(pub message.Publisher, sub message.Subscriber, logger watermill.LoggerAdapter) *orderedPubSub {
	return &orderedPubSub{
		pub:    pub,
		sub:    sub,
		logger: logger,
		topics: make(map[string]*topicState),
	}
}

func (o *orderedPubSub) topic(name string) (*topicState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrClosed
	}
	t, ok := o.topics[name]
	if !ok {
		t = &topicState{}
		o.topics[name] = t
	}
	return t, nil
}

// live drops finished subscriptions and reports whether one is left. The
// caller holds o.mu.
func (t *topicState) live() bool {
	kept := t.subscriptions[:0]
	for _, ctx := range t.subscriptions {
		if ctx.Err() == nil {
			kept = append(kept, ctx)
		}
	}
	clear(t.subscriptions[len(kept):])
	t.subscriptions = kept
	return len(kept) > 0
}

func (o *orderedPubSub) Publish(topic string, messages ...*message.Message) error {
	t, err := o.topic(topic)
	if err != nil {
		return err
	}
	t.publishing.Lock()
	defer t.publishing.Unlock()

	o.mu.Lock()
	if !t.live() {
		for _, msg := range messages {
			t.backlog = append(t.backlog, msg.Copy())
		}
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()
	return o.pub.Publish(topic, messages...)
}

func (o *orderedPubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	t, err := o.topic(topic)
	if err != nil {
		return nil, err
	}
	t.publishing.Lock()

	messages, err := o.sub.Subscribe(ctx, topic)
	if err != nil {
		t.publishing.Unlock()
		return nil, err
	}

	o.mu.Lock()
	t.subscriptions = append(t.subscriptions, ctx)
	backlog := t.backlog
	t.backlog = nil
	o.mu.Unlock()

	go o.replay(ctx, topic, t, backlog)
	return messages, nil
}

// replay publishes the held messages one at a time and releases the topic
// for further publishes afterwards. Whatever is left when ctx ends is held
// again for the next subscriber, so a consumer may see a message twice.
func (o *orderedPubSub) replay(ctx context.Context, topic string, t *topicState, backlog []*message.Message) {
	defer t.publishing.Unlock()

	for i, msg := range backlog {
		if ctx.Err() != nil {
			o.hold(t, backlog[i:])
			return
		}
		if err := o.pub.Publish(topic, msg); err != nil {
			o.logger.Error("Failed to replay held message", err, watermill.LogFields{
				"topic":        topic,
				"message_uuid": msg.UUID,
			})
			return
		}
		// A subscription that ended while msg was in flight may have
		// discarded it; hold it again rather than lose it.
		if ctx.Err() != nil {
			o.hold(t, backlog[i:])
			return
		}
	}
}

func (o *orderedPubSub) hold(t *topicState, messages []*message.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t.backlog = append(messages, t.backlog...)
}

// Close closes the underlying pub/sub once. Held messages are discarded.
func (o *orderedPubSub) Close() error {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.closed = true
		o.topics = nil
		o.mu.Unlock()

		var errs []error
		errs = append(errs, o.pub.Close())
		if any(o.sub) != any(o.pub) {
			errs = append(errs, o.sub.Close())
		}
		o.closeErr = errors.Join(errs...)
	})
	return o.closeErr
}
