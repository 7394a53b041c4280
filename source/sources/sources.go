// Package sources registers every built-in transaction source and pub/sub
// transport. Import it for its side effects.
package sources

import (
	_ "github.com/drblury/ledgerflow/source/gateway"
	_ "github.com/drblury/ledgerflow/source/memory"
	_ "github.com/drblury/ledgerflow/source/pubsub"
	_ "github.com/drblury/ledgerflow/transport/transports"
)
