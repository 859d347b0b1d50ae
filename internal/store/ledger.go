package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/darila/internal/db"
	"github.com/erazemk/darila/internal/guard"
	"github.com/erazemk/darila/internal/model"
)

// Ledger implements guard.Ledger on top of the items, reservations and
// contributions tables.
type Ledger struct {
	DB *db.DB
}

// Begin starts a ledger transaction bound to ctx.
func (l *Ledger) Begin(ctx context.Context) (guard.LedgerTx, error) {
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &ledgerTx{tx: tx}, nil
}

type ledgerTx struct {
	tx     *db.Tx
	locked *model.ItemState
}

// LockItem loads the item under a row lock (Postgres) or inside the single
// writer connection (SQLite).
func (t *ledgerTx) LockItem(ctx context.Context, itemID uuid.UUID) (*model.ItemState, error) {
	state, err := loadItemState(ctx, t.tx, itemID, t.tx.Dialect.ForUpdate("i"))
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, model.NotFound("Item not found")
	}
	t.locked = state
	return state, nil
}

// Apply writes m against the currently locked item.
func (t *ledgerTx) Apply(ctx context.Context, m *model.Mutation) error {
	if t.locked == nil {
		return fmt.Errorf("applying mutation: no item locked")
	}
	item := t.locked.Item
	now := time.Now().UTC()

	switch {
	case m.Reserve != nil:
		r := m.Reserve
		r.ItemID = item.ID
		if r.ID == uuid.Nil {
			r.ID = uuid.Must(uuid.NewV7())
		}
		r.CreatedAt = now
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO reservations (id, item_id, reserver_id, display_name, created_at) VALUES (?, ?, ?, ?, ?)`,
			r.ID, r.ItemID, r.ReserverID, r.DisplayName, r.CreatedAt,
		); err != nil {
			return fmt.Errorf("creating reservation: %w", err)
		}
		if _, err := t.tx.ExecContext(ctx,
			`UPDATE items SET reserved = ?, reserved_at = ?, updated_at = ? WHERE id = ?`,
			true, now, now, item.ID,
		); err != nil {
			return fmt.Errorf("marking item reserved: %w", err)
		}

	case m.Unreserve:
		if _, err := t.tx.ExecContext(ctx,
			`DELETE FROM reservations WHERE item_id = ?`, item.ID,
		); err != nil {
			return fmt.Errorf("deleting reservations: %w", err)
		}
		if _, err := t.tx.ExecContext(ctx,
			`UPDATE items SET reserved = ?, reserved_at = NULL, updated_at = ? WHERE id = ?`,
			false, now, item.ID,
		); err != nil {
			return fmt.Errorf("clearing item reservation: %w", err)
		}

	case m.Contribute != nil:
		c := m.Contribute
		c.ItemID = item.ID
		if c.ID == uuid.Nil {
			c.ID = uuid.Must(uuid.NewV7())
		}
		c.CreatedAt = now
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO contributions (id, item_id, contributor_id, display_name, amount_cents, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.ItemID, c.ContributorID, c.DisplayName, c.AmountCents, c.CreatedAt,
		); err != nil {
			return fmt.Errorf("creating contribution: %w", err)
		}

	case m.Patch != nil:
		m.Patch.ApplyTo(&item)
		if _, err := t.tx.ExecContext(ctx,
			`UPDATE items SET title = ?, url = ?, image_url = ?, price_cents = ?, currency = ?, status = ?, updated_at = ?
			 WHERE id = ?`,
			item.Title, item.URL, item.ImageURL, item.PriceCents, item.Currency, item.Status, now, item.ID,
		); err != nil {
			return fmt.Errorf("updating item: %w", err)
		}
		if img := m.Patch.Image; img != nil {
			if _, err := t.tx.ExecContext(ctx,
				`UPDATE items SET image = ?, image_mime = ? WHERE id = ?`,
				img.Data, img.MIME, item.ID,
			); err != nil {
				return fmt.Errorf("setting item image: %w", err)
			}
		}

	default:
		return fmt.Errorf("applying mutation: empty mutation")
	}

	return nil
}

func (t *ledgerTx) Commit() error {
	return t.tx.Commit()
}

func (t *ledgerTx) Rollback() error {
	return t.tx.Rollback()
}
