package transport

// Capabilities describes what a backend guarantees for relayed transactions.
type Capabilities struct {
	Name string

	// SupportsOrdering means messages of one topic (or partition) are
	// delivered in publish order. A pub/sub transaction source needs it to
	// keep state versions ascending.
	SupportsOrdering bool

	// SupportsPartitioning means the backend spreads a topic over partitions
	// and orders per partition key.
	SupportsPartitioning bool

	SupportsAck  bool
	SupportsNack bool

	// SupportsTracing means message metadata travels as native headers.
	SupportsTracing bool

	// MaxMessageSize in bytes, 0 when unknown.
	MaxMessageSize int64
}

// SupportsReliableDelivery reports at-least-once delivery (ack and nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// SuitableForLedger reports whether a consumer of this backend sees
// transactions in state version order.
func (c Capabilities) SuitableForLedger() bool {
	return c.SupportsOrdering
}

var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
	}

	KafkaCapabilities = Capabilities{
		Name:                 "kafka",
		SupportsOrdering:     true,
		SupportsPartitioning: true,
		SupportsAck:          true,
		SupportsTracing:      true,
		MaxMessageSize:       1048576,
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsTracing:  true,
	}

	NATSCapabilities = Capabilities{
		Name:            "nats",
		SupportsTracing: true,
		MaxMessageSize:  1048576,
	}

	// Standard SNS topics fan out to SQS queues without ordering.
	AWSCapabilities = Capabilities{
		Name:            "aws",
		SupportsAck:     true,
		SupportsNack:    true,
		SupportsTracing: true,
		MaxMessageSize:  262144,
	}

	HTTPCapabilities = Capabilities{
		Name:            "http",
		SupportsTracing: true,
	}
)
