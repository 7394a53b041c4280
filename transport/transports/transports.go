// Package transports imports every built-in transport so each registers with
// transport.DefaultRegistry.
package transports

import (
	_ "github.com/drblury/ledgerflow/transport/aws"
	_ "github.com/drblury/ledgerflow/transport/channel"
	_ "github.com/drblury/ledgerflow/transport/http"
	_ "github.com/drblury/ledgerflow/transport/kafka"
	_ "github.com/drblury/ledgerflow/transport/nats"
	_ "github.com/drblury/ledgerflow/transport/rabbitmq"
)
