// Package memory provides an in-process transaction stream fed by Push. It
// backs tests and embeds the processor behind another producer.
package memory

import (
	"context"
	"errors"
	"sync"

	errspkg "github.com/drblury/ledgerflow/internal/runtime/errors"
	"github.com/drblury/ledgerflow/internal/runtime/models"
	"github.com/drblury/ledgerflow/source"
)

const (
	SourceName            = "memory"
	DefaultBufferCapacity = 1000
)

// ErrClosed is returned by Push after Close or Stop.
var ErrClosed = errors.New("ledgerflow: memory stream is closed")

func init() {
	Register(source.DefaultRegistry)
}

// Register adds the memory source to r.
func Register(r *source.Registry) {
	r.Register(SourceName, Build)
}

// Build returns an empty stream that stays open until stopped.
func Build(_ context.Context, cfg source.Config, _ source.Deps) (source.Stream, error) {
	return New(cfg.GetBufferCapacity()), nil
}

// Stream hands pushed transactions to the processor in push order. Push
// blocks while the buffer is full.
type Stream struct {
	ch chan models.Transaction

	mu       sync.RWMutex
	started  bool
	closed   bool
	closing  chan struct{}
	inFlight sync.WaitGroup
}

var _ source.Stream = (*Stream)(nil)

// New creates a stream with the given buffer capacity, DefaultBufferCapacity
// when it is not positive.
func New(capacity int) *Stream {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &Stream{
		ch:      make(chan models.Transaction, capacity),
		closing: make(chan struct{}),
	}
}

// Of returns a closed stream that yields txs and then ends.
func Of(txs ...models.Transaction) *Stream {
	s := New(len(txs))
	for _, tx := range txs {
		s.ch <- tx
	}
	s.Close()
	return s
}

// Push enqueues tx. It fails with ErrClosed once the stream is closed and
// with ctx.Err() if ctx ends while the buffer is full.
func (s *Stream) Push(ctx context.Context, tx models.Transaction) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.inFlight.Add(1)
	s.mu.RUnlock()
	defer s.inFlight.Done()

	select {
	case s.ch <- tx:
		return nil
	case <-s.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the stream once buffered transactions are consumed.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.closing)
	s.mu.Unlock()

	s.inFlight.Wait()
	close(s.ch)
}

func (s *Stream) Start(context.Context) (<-chan models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, errspkg.ErrStreamStarted
	}
	s.started = true
	return s.ch, nil
}

// Stop closes the stream.
func (s *Stream) Stop(context.Context) {
	s.Close()
}
