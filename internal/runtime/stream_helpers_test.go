package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drblury/ledgerflow/internal/runtime/models"
	"github.com/drblury/ledgerflow/internal/runtime/observer"
)

// sliceStream emits a fixed list of transactions and then closes the channel,
// unless keepOpen is set.
type sliceStream struct {
	txs      []models.Transaction
	keepOpen bool
	startErr error

	stops atomic.Int32
	once  sync.Once
	done  chan struct{}
}

func newSliceStream(txs ...models.Transaction) *sliceStream {
	return &sliceStream{txs: txs, done: make(chan struct{})}
}

func (s *sliceStream) Start(ctx context.Context) (<-chan models.Transaction, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	ch := make(chan models.Transaction, 1)
	go func() {
		if !s.keepOpen {
			defer close(ch)
		}
		for _, tx := range s.txs {
			select {
			case ch <- tx:
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (s *sliceStream) Stop(context.Context) {
	s.stops.Add(1)
	s.once.Do(func() { close(s.done) })
}

// committingStream records the state versions the processor committed.
type committingStream struct {
	*sliceStream

	mu        sync.Mutex
	committed []uint64
}

func (c *committingStream) Commit(_ context.Context, tx *models.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed = append(c.committed, tx.StateVersion)
}

func (c *committingStream) versions() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.committed...)
}

// call is one observer notification.
type call struct {
	Kind         string
	StateVersion uint64
	Event        string
	Dispatchable bool
	IsRetry      bool
	Handled      bool
	Err          error
	Delay        time.Duration
}

type callLog struct {
	mu    sync.Mutex
	calls []call
}

func (c *callLog) add(entry call) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, entry)
}

func (c *callLog) all() []call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]call(nil), c.calls...)
}

func (c *callLog) kinds() []string {
	var out []string
	for _, entry := range c.all() {
		out = append(out, entry.Kind)
	}
	return out
}

func (c *callLog) count(kind string) int {
	n := 0
	for _, entry := range c.all() {
		if entry.Kind == kind {
			n++
		}
	}
	return n
}

func (c *callLog) hooks() observer.Hooks {
	return observer.Hooks{
		OnTransactionReceived: func(_ context.Context, tx *models.Transaction, dispatchable, isRetry bool) {
			c.add(call{Kind: "receive_tx", StateVersion: tx.StateVersion, Dispatchable: dispatchable, IsRetry: isRetry})
		},
		OnTransactionFinished: func(_ context.Context, tx *models.Transaction, handled bool) {
			c.add(call{Kind: "finish_tx", StateVersion: tx.StateVersion, Handled: handled})
		},
		OnTransactionRetry: func(_ context.Context, tx *models.Transaction, err error, delay time.Duration) {
			c.add(call{Kind: "retry_tx", StateVersion: tx.StateVersion, Err: err, Delay: delay})
		},
		OnEventReceived: func(_ context.Context, tx *models.Transaction, ev *models.Event, dispatchable, isRetry bool) {
			c.add(call{Kind: "receive_event", StateVersion: tx.StateVersion, Event: ev.Name, Dispatchable: dispatchable, IsRetry: isRetry})
		},
		OnEventFinished: func(_ context.Context, tx *models.Transaction, ev *models.Event, handled bool) {
			c.add(call{Kind: "finish_event", StateVersion: tx.StateVersion, Event: ev.Name, Handled: handled})
		},
		OnEventRetry: func(_ context.Context, tx *models.Transaction, ev *models.Event, err error, delay time.Duration) {
			c.add(call{Kind: "retry_event", StateVersion: tx.StateVersion, Event: ev.Name, Err: err, Delay: delay})
		},
		OnUnrecoverable: func(_ context.Context, err error) {
			c.add(call{Kind: "unrecoverable", Err: err})
		},
	}
}

const (
	testAccount = "account_tdx_2_1test"
	testPackage = "package_tdx_2_1test"
)

func methodEvent(name string) models.Event {
	return models.Event{Name: name, Emitter: models.MethodEmitter(testAccount), Data: []byte(fmt.Sprintf(`{"name":%q}`, name))}
}

func transaction(version uint64, events ...models.Event) models.Transaction {
	return models.Transaction{
		IntentHash:   fmt.Sprintf("txid_%d", version),
		StateVersion: version,
		ConfirmedAt:  time.Date(2024, 1, 1, 0, 0, int(version), 0, time.UTC),
		Events:       events,
	}
}

var errBoom = errors.New("boom")
