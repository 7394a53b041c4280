package handlers

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	errspkg "github.com/drblury/ledgerflow/internal/runtime/errors"
	"github.com/drblury/ledgerflow/internal/runtime/models"
)

type registryKey struct {
	emitter models.EmitterKey
	name    string
}

type registryEntry struct {
	handler     any
	handlerType string
	stateType   reflect.Type
	txCtxType   reflect.Type
}

// Entry describes a registered handler for introspection.
type Entry struct {
	Emitter     models.EmitterKey `json:"-"`
	EmitterKey  string            `json:"emitter"`
	EventName   string            `json:"event_name"`
	HandlerType string            `json:"handler_type"`
	StateType   string            `json:"state_type"`
	TxCtxType   string            `json:"transaction_context_type"`
}

// Registry maps (emitter, event name) pairs to event handlers of arbitrary
// state and transaction context types. At most one handler is kept per key;
// registering again replaces the previous handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[registryKey]registryEntry
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[registryKey]registryEntry)}
}

// Register stores handler under (emitter, eventName), replacing any handler
// registered for the same key.
func Register[S any, C any](r *Registry, emitter models.EmitterKey, eventName string, handler EventHandler[S, C]) error {
	if r == nil {
		return errspkg.ErrRegistryRequired
	}
	if handler == nil {
		return errspkg.ErrHandlerRequired
	}
	if eventName == "" {
		return errspkg.ErrEventNameRequired
	}

	entry := registryEntry{
		handler:     handler,
		handlerType: fmt.Sprintf("%T", handler),
		stateType:   reflect.TypeFor[S](),
		txCtxType:   reflect.TypeFor[C](),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[registryKey]registryEntry)
	}
	r.handlers[registryKey{emitter: emitter, name: eventName}] = entry
	return nil
}

// RegisterFunc is a shorthand for Register with an EventHandlerFunc.
func RegisterFunc[S any, C any](r *Registry, emitter models.EmitterKey, eventName string, fn func(EventContext[S, C]) error) error {
	if fn == nil {
		return errspkg.ErrHandlerRequired
	}
	return Register[S, C](r, emitter, eventName, EventHandlerFunc[S, C](fn))
}

// HandlerExists reports whether a handler is registered for the key.
func (r *Registry) HandlerExists(emitter models.EmitterKey, eventName string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[registryKey{emitter: emitter, name: eventName}]
	return ok
}

// GetHandler returns the handler registered for the key. It panics when the
// handler was registered for other state or transaction context types, since
// that is a wiring bug and not a data condition.
func GetHandler[S any, C any](r *Registry, emitter models.EmitterKey, eventName string) (EventHandler[S, C], bool) {
	if r == nil {
		return nil, false
	}

	r.mu.RLock()
	entry, ok := r.handlers[registryKey{emitter: emitter, name: eventName}]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	handler, ok := entry.handler.(EventHandler[S, C])
	if !ok {
		panic(fmt.Sprintf(
			"ledgerflow: handler %s for %s/%s was registered with state %v and transaction context %v, requested with state %v and transaction context %v",
			entry.handlerType, emitter, eventName,
			entry.stateType, entry.txCtxType,
			reflect.TypeFor[S](), reflect.TypeFor[C](),
		))
	}
	return handler, true
}

// Unregister removes the handler for the key and reports whether one existed.
func (r *Registry) Unregister(emitter models.EmitterKey, eventName string) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := registryKey{emitter: emitter, name: eventName}
	if _, ok := r.handlers[key]; !ok {
		return false
	}
	delete(r.handlers, key)
	return true
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Entries returns a snapshot of all registrations sorted by emitter and name.
func (r *Registry) Entries() []Entry {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	entries := make([]Entry, 0, len(r.handlers))
	for key, entry := range r.handlers {
		entries = append(entries, Entry{
			Emitter:     key.emitter,
			EmitterKey:  key.emitter.String(),
			EventName:   key.name,
			HandlerType: entry.handlerType,
			StateType:   entry.stateType.String(),
			TxCtxType:   entry.txCtxType.String(),
		})
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].EmitterKey != entries[j].EmitterKey {
			return entries[i].EmitterKey < entries[j].EmitterKey
		}
		return entries[i].EventName < entries[j].EventName
	})
	return entries
}
