package metadata

import (
	"strconv"
	"time"

	"github.com/drblury/ledgerflow/internal/runtime/models"
)

// Reserved header keys written by the relay publisher and read back by the
// pub/sub transaction stream.
const (
	KeyContentType  = "content_type"
	KeyStateVersion = "ledgerflow_state_version"
	KeyIntentHash   = "ledgerflow_intent_hash"
	KeyConfirmedAt  = "ledgerflow_confirmed_at"
	KeyEventCount   = "ledgerflow_event_count"
	KeyNetwork      = "ledgerflow_network"
	KeyPublishedAt  = "ledgerflow_published_at"

	KeyCorrelationID = "correlation_id"
	KeyTraceID       = "trace_id"
	KeySpanID        = "span_id"
)

// ForTransaction describes tx with the reserved keys. An empty contentType
// is omitted.
func ForTransaction(tx *models.Transaction, contentType string) Metadata {
	md := Metadata{
		KeyStateVersion: strconv.FormatUint(tx.StateVersion, 10),
		KeyIntentHash:   tx.IntentHash,
		KeyEventCount:   strconv.Itoa(len(tx.Events)),
	}
	if !tx.ConfirmedAt.IsZero() {
		md[KeyConfirmedAt] = tx.ConfirmedAt.UTC().Format(time.RFC3339Nano)
	}
	if contentType != "" {
		md[KeyContentType] = contentType
	}
	return md
}

// StateVersion parses the state version header.
func (m Metadata) StateVersion() (uint64, bool) {
	raw, ok := m[KeyStateVersion]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ContentType returns the content type header or the empty string.
func (m Metadata) ContentType() string {
	return m[KeyContentType]
}
