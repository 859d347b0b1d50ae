package guard

import (
	"context"

	"github.com/google/uuid"

	"github.com/erazemk/darila/internal/model"
)

// Ledger opens transactions on the durable item ledger.
type Ledger interface {
	Begin(ctx context.Context) (LedgerTx, error)
}

// LedgerTx is one ledger transaction. LockItem loads an item with its live
// reservations and contributions and holds the item's row lock until Commit
// or Rollback. A missing item is reported as a model NotFound error.
type LedgerTx interface {
	LockItem(ctx context.Context, itemID uuid.UUID) (*model.ItemState, error)
	Apply(ctx context.Context, m *model.Mutation) error
	Commit() error
	Rollback() error
}
