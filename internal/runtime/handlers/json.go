package handlers

import (
	"fmt"
	"reflect"

	errspkg "github.com/drblury/ledgerflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/ledgerflow/internal/runtime/jsoncodec"
)

// JSONEventHandler is an event handler whose payload is decoded from JSON into
// T before it runs. A payload that does not decode stops the run, because
// retrying cannot change the bytes.
type JSONEventHandler[S any, C any, T any] func(ctx EventContext[S, C], payload T) error

func (h JSONEventHandler[S, C, T]) HandleEvent(ctx EventContext[S, C]) error {
	var payload T
	if err := jsoncodec.Unmarshal(ctx.Payload(), &payload); err != nil {
		return errspkg.Unrecoverable(fmt.Errorf("failed to decode %v payload of event %q: %w", reflect.TypeFor[T](), eventName(ctx.Event), err))
	}
	return h(ctx, payload)
}
