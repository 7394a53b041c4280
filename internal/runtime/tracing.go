package runtime

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/ledgerflow/internal/runtime/models"
)

const tracerName = "github.com/drblury/ledgerflow"

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

func startTransactionSpan(ctx context.Context, tracer trace.Tracer, tx *models.Transaction, attempt int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "HandleTransaction", trace.WithAttributes(
		attribute.String("ledger.intent_hash", tx.IntentHash),
		attribute.Int64("ledger.state_version", int64(tx.StateVersion)),
		attribute.Int("ledger.event_count", len(tx.Events)),
		attribute.Int("ledgerflow.attempt", attempt),
	))
}

func startEventSpan(ctx context.Context, tracer trace.Tracer, tx *models.Transaction, event *models.Event, attempt int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "HandleEvent", trace.WithAttributes(
		attribute.String("ledger.intent_hash", tx.IntentHash),
		attribute.String("ledger.event_name", event.Name),
		attribute.String("ledger.emitter", event.Emitter.String()),
		attribute.Int("ledgerflow.attempt", attempt),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
