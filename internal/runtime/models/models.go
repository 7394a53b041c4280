// Package models holds the ledger records that flow through the processor.
package models

import (
	"fmt"
	"time"
)

// EmitterKind tags the variant of an EventEmitter.
type EmitterKind uint8

const (
	// EmitterMethod identifies an instance-level emitter (a component or resource).
	EmitterMethod EmitterKind = iota + 1
	// EmitterFunction identifies a type-level emitter (a blueprint inside a package).
	EmitterFunction
)

func (k EmitterKind) String() string {
	switch k {
	case EmitterMethod:
		return "method"
	case EmitterFunction:
		return "function"
	default:
		return fmt.Sprintf("emitter_kind(%d)", uint8(k))
	}
}

// EventEmitter identifies the logical source of an event. Only the fields that
// belong to Kind are meaningful.
type EventEmitter struct {
	Kind           EmitterKind `json:"kind"`
	EntityAddress  string      `json:"entity_address,omitempty"`
	PackageAddress string      `json:"package_address,omitempty"`
	BlueprintName  string      `json:"blueprint_name,omitempty"`
}

// MethodEmitter builds an instance-level emitter.
func MethodEmitter(entityAddress string) EventEmitter {
	return EventEmitter{Kind: EmitterMethod, EntityAddress: entityAddress}
}

// FunctionEmitter builds a blueprint-level emitter.
func FunctionEmitter(packageAddress, blueprintName string) EventEmitter {
	return EventEmitter{Kind: EmitterFunction, PackageAddress: packageAddress, BlueprintName: blueprintName}
}

// Address returns the entity address for method emitters and the package
// address for function emitters.
func (e EventEmitter) Address() string {
	if e.Kind == EmitterFunction {
		return e.PackageAddress
	}
	return e.EntityAddress
}

// Key derives the registry key for the emitter.
func (e EventEmitter) Key() EmitterKey {
	switch e.Kind {
	case EmitterFunction:
		return FunctionKey(e.PackageAddress, e.BlueprintName)
	default:
		return MethodKey(e.EntityAddress)
	}
}

func (e EventEmitter) String() string {
	return e.Key().String()
}

// EmitterKey is the comparable identity used to select handlers. Two keys of
// different kinds never compare equal, even when their addresses coincide.
type EmitterKey struct {
	Kind      EmitterKind
	Address   string
	Blueprint string
}

// MethodKey returns the key for an instance-level emitter.
func MethodKey(entityAddress string) EmitterKey {
	return EmitterKey{Kind: EmitterMethod, Address: entityAddress}
}

// FunctionKey returns the key for a blueprint-level emitter.
func FunctionKey(packageAddress, blueprintName string) EmitterKey {
	return EmitterKey{Kind: EmitterFunction, Address: packageAddress, Blueprint: blueprintName}
}

func (k EmitterKey) String() string {
	if k.Kind == EmitterFunction {
		return fmt.Sprintf("%s:%s/%s", k.Kind, k.Address, k.Blueprint)
	}
	return fmt.Sprintf("%s:%s", k.Kind, k.Address)
}

// Event is a single named notification inside a transaction. Data is opaque to
// the engine and handed to handlers untouched.
type Event struct {
	Name    string       `json:"name"`
	Emitter EventEmitter `json:"emitter"`
	Data    []byte       `json:"data"`
}

// Transaction is one committed unit of the ledger. Events keep the order in
// which the ledger emitted them.
type Transaction struct {
	IntentHash   string    `json:"intent_hash"`
	StateVersion uint64    `json:"state_version"`
	ConfirmedAt  time.Time `json:"confirmed_at"`
	Events       []Event   `json:"events"`
}

// LogFields returns the identifying attributes of the transaction in a form
// suitable for structured logging.
func (t *Transaction) LogFields() map[string]any {
	return map[string]any{
		"intent_hash":   t.IntentHash,
		"state_version": t.StateVersion,
		"events":        len(t.Events),
	}
}
