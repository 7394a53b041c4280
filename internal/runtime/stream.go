package runtime

import (
	"context"

	"github.com/drblury/ledgerflow/internal/runtime/models"
)

// TransactionStream produces transactions in ledger order through a bounded
// channel. Closing the channel ends the processor run cleanly.
type TransactionStream interface {
	// Start begins production. A failure is fatal to the run.
	Start(ctx context.Context) (<-chan models.Transaction, error)
	// Stop asks the producer to halt. It must be safe to call more than once.
	Stop(ctx context.Context)
}

// TransactionCommitter is implemented by streams that hold on to a
// transaction until it is fully processed, such as a broker subscription that
// acks only then. Commit is called after FinishTransaction, for skipped and
// handled transactions alike. It is never called for a transaction whose
// processing failed.
type TransactionCommitter interface {
	Commit(ctx context.Context, tx *models.Transaction)
}
