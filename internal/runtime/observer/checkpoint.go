package observer

import (
	"context"
	"sync"

	"github.com/drblury/ledgerflow/internal/runtime/logging"
	"github.com/drblury/ledgerflow/internal/runtime/models"
)

// CursorSaver persists the last processed state version.
type CursorSaver interface {
	Save(ctx context.Context, stateVersion uint64) error
}

// Checkpointer saves the state version of every finished transaction, handled
// or skipped, so a restarted source can resume after it. Save failures are
// logged and never stop the processor; the next finished transaction retries
// the write with a newer version.
type Checkpointer struct {
	NopLogger

	saver CursorSaver
	log   logging.ServiceLogger

	mu      sync.Mutex
	saved   uint64
	lastErr error
}

var _ Logger = (*Checkpointer)(nil)

func NewCheckpointer(saver CursorSaver, log logging.ServiceLogger) *Checkpointer {
	if log == nil {
		log = logging.Discard()
	}
	return &Checkpointer{saver: saver, log: log.With(logging.LogFields{"component": "checkpointer"})}
}

func (c *Checkpointer) FinishTransaction(ctx context.Context, tx *models.Transaction, _ bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tx.StateVersion <= c.saved {
		return
	}
	if err := c.saver.Save(context.WithoutCancel(ctx), tx.StateVersion); err != nil {
		c.lastErr = err
		c.log.Error("Failed to save cursor", err, logging.LogFields{"state_version": tx.StateVersion})
		return
	}
	c.saved = tx.StateVersion
	c.lastErr = nil
}

// Saved returns the last state version written successfully.
func (c *Checkpointer) Saved() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saved
}

// Err returns the error of the last failed write, cleared by the next
// successful one.
func (c *Checkpointer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}
