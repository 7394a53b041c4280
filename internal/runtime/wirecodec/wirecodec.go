// Package wirecodec encodes transactions for transport over a message broker.
//
// Two encodings are supported. JSON mirrors models.Transaction's struct tags.
// Protobuf uses the following schema, written with protowire so no generated
// code is needed:
//
//	message Transaction {
//	  string intent_hash = 1;
//	  uint64 state_version = 2;
//	  int64 confirmed_at_unix_nano = 3;
//	  repeated Event events = 4;
//	}
//	message Event {
//	  string name = 1;
//	  Emitter emitter = 2;
//	  bytes data = 3;
//	}
//	message Emitter {
//	  uint32 kind = 1;
//	  string entity_address = 2;
//	  string package_address = 3;
//	  string blueprint_name = 4;
//	}
package wirecodec

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	jsoncodec "github.com/drblury/ledgerflow/internal/runtime/jsoncodec"
	"github.com/drblury/ledgerflow/internal/runtime/models"
)

const (
	ContentTypeJSON     = "application/json"
	ContentTypeProtobuf = "application/x-protobuf"
)

// ErrUnknownContentType is returned for content types other than JSON or protobuf.
var ErrUnknownContentType = errors.New("ledgerflow: unknown transaction content type")

// Encode serialises tx with the given content type. An empty content type
// selects JSON.
func Encode(contentType string, tx *models.Transaction) ([]byte, error) {
	switch contentType {
	case "", ContentTypeJSON:
		return jsoncodec.Marshal(tx)
	case ContentTypeProtobuf:
		return MarshalProto(tx), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownContentType, contentType)
	}
}

// Decode parses data produced by Encode.
func Decode(contentType string, data []byte) (models.Transaction, error) {
	switch contentType {
	case "", ContentTypeJSON:
		var tx models.Transaction
		if err := jsoncodec.Unmarshal(data, &tx); err != nil {
			return models.Transaction{}, fmt.Errorf("failed to decode JSON transaction: %w", err)
		}
		return tx, nil
	case ContentTypeProtobuf:
		return UnmarshalProto(data)
	default:
		return models.Transaction{}, fmt.Errorf("%w: %q", ErrUnknownContentType, contentType)
	}
}

// MarshalProto encodes tx using the protobuf wire format.
func MarshalProto(tx *models.Transaction) []byte {
	var b []byte
	if tx.IntentHash != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, tx.IntentHash)
	}
	if tx.StateVersion != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, tx.StateVersion)
	}
	if !tx.ConfirmedAt.IsZero() {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(tx.ConfirmedAt.UnixNano()))
	}
	for i := range tx.Events {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalEvent(&tx.Events[i]))
	}
	return b
}

func marshalEvent(ev *models.Event) []byte {
	var b []byte
	if ev.Name != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, ev.Name)
	}
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, marshalEmitter(ev.Emitter))
	if len(ev.Data) > 0 {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, ev.Data)
	}
	return b
}

func marshalEmitter(em models.EventEmitter) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(em.Kind))
	for i, value := range [...]string{em.EntityAddress, em.PackageAddress, em.BlueprintName} {
		if value == "" {
			continue
		}
		b = protowire.AppendTag(b, protowire.Number(i+2), protowire.BytesType)
		b = protowire.AppendString(b, value)
	}
	return b
}

// UnmarshalProto decodes a transaction encoded by MarshalProto. Unknown fields
// are skipped.
func UnmarshalProto(data []byte) (models.Transaction, error) {
	var tx models.Transaction
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			tx.IntentHash = v
			return n, nil
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			tx.StateVersion = v
			return n, nil
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n >= 0 {
				tx.ConfirmedAt = time.Unix(0, int64(v)).UTC()
			}
			return n, nil
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			ev, err := unmarshalEvent(v)
			if err != nil {
				return 0, err
			}
			tx.Events = append(tx.Events, ev)
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return models.Transaction{}, fmt.Errorf("failed to decode protobuf transaction: %w", err)
	}
	return tx, nil
}

func unmarshalEvent(data []byte) (models.Event, error) {
	var ev models.Event
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			ev.Name = v
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			em, err := unmarshalEmitter(v)
			if err != nil {
				return 0, err
			}
			ev.Emitter = em
			return n, nil
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				ev.Data = append([]byte(nil), v...)
			}
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	return ev, err
}

func unmarshalEmitter(data []byte) (models.EventEmitter, error) {
	var em models.EventEmitter
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			em.Kind = models.EmitterKind(v)
			return n, nil
		}
		if typ != protowire.BytesType || num < 2 || num > 4 {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		v, n := protowire.ConsumeString(b)
		switch num {
		case 2:
			em.EntityAddress = v
		case 3:
			em.PackageAddress = v
		case 4:
			em.BlueprintName = v
		}
		return n, nil
	})
	if err == nil && em.Kind != models.EmitterMethod && em.Kind != models.EmitterFunction {
		return em, fmt.Errorf("invalid emitter kind %d", em.Kind)
	}
	return em, err
}

// walkFields iterates over the top-level fields of a protobuf message. The
// visitor returns the number of bytes consumed from b (negative on error).
func walkFields(data []byte, visit func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		m, err := visit(num, typ, data)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		data = data[m:]
	}
	return nil
}
