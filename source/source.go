// Package source provides the transaction streams a processor can consume:
// the Radix Gateway poller, a pub/sub subscriber fed by a relay, and an
// in-memory stream. Each lives in a sub-package that registers a Builder with
// DefaultRegistry under its SourceSystem name.
package source

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/drblury/ledgerflow/internal/runtime"
	"github.com/drblury/ledgerflow/internal/runtime/logging"
	"github.com/drblury/ledgerflow/source/cursor"
	"github.com/drblury/ledgerflow/transport"
)

// Stream is the producer side of a processor run.
type Stream = runtime.TransactionStream

// Committer is implemented by streams that must learn when a transaction is
// fully processed.
type Committer = runtime.TransactionCommitter

// Config provides the values source builders read. config.Config satisfies it.
type Config interface {
	transport.Config
	cursor.Config

	GetSourceSystem() string
	GetGatewayURL() string
	GetFromStateVersion() uint64
	GetPageSize() int
	GetBufferCapacity() int
	GetCaughtUpTimeout() time.Duration
	GetRequestsPerSecond() float64
	GetNetwork() string
	GetTopic() string
	GetContentType() string
}

// Deps are collaborators shared with the rest of the application.
type Deps struct {
	Logger logging.ServiceLogger
	// Cursor, when set, makes the stream resume after the saved state version.
	Cursor cursor.Store
	// Transport overrides the pub/sub transport built from config.
	Transport *transport.Transport
}

// Builder creates a stream from config.
type Builder func(ctx context.Context, cfg Config, deps Deps) (Stream, error)

// Registry maps SourceSystem names to builders.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// DefaultRegistry is the registry the source sub-packages register with.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

func (r *Registry) Register(name string, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = builder
}

// Build creates the stream selected by cfg.GetSourceSystem().
func (r *Registry) Build(ctx context.Context, cfg Config, deps Deps) (Stream, error) {
	if cfg == nil {
		return nil, fmt.Errorf("source config is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}

	name := cfg.GetSourceSystem()
	r.mu.RLock()
	builder, ok := r.builders[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown source: %q (registered: %v)", name, r.Names())
	}
	return builder(ctx, cfg, deps)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds a builder to DefaultRegistry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// Build creates a stream using DefaultRegistry.
func Build(ctx context.Context, cfg Config, deps Deps) (Stream, error) {
	return DefaultRegistry.Build(ctx, cfg, deps)
}
