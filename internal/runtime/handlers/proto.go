package handlers

import (
	"fmt"

	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/ledgerflow/internal/runtime/errors"
	"github.com/drblury/ledgerflow/internal/runtime/models"
)

// ProtoEventHandler is an event handler whose payload is a binary protobuf
// message of type T (a generated message pointer such as *pb.Swap).
type ProtoEventHandler[S any, C any, T proto.Message] func(ctx EventContext[S, C], payload T) error

func (h ProtoEventHandler[S, C, T]) HandleEvent(ctx EventContext[S, C]) error {
	var prototype T
	msg, ok := prototype.ProtoReflect().New().Interface().(T)
	if !ok {
		return errspkg.Unrecoverable(fmt.Errorf("cannot instantiate %T", prototype))
	}
	if err := proto.Unmarshal(ctx.Payload(), msg); err != nil {
		return errspkg.Unrecoverable(fmt.Errorf("failed to decode %T payload of event %q: %w", prototype, eventName(ctx.Event), err))
	}
	return h(ctx, msg)
}

func eventName(event *models.Event) string {
	if event == nil {
		return ""
	}
	return event.Name
}
