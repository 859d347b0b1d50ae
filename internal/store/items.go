package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/darila/internal/db"
	"github.com/erazemk/darila/internal/model"
)

const itemColumns = `i.id, i.wishlist_id, i.title, i.url, i.image_url, i.price_cents, i.currency,
	i.status, i.reserved, i.reserved_at, i.created_at, i.updated_at, w.owner_id`

// querier is satisfied by both *db.DB and *db.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateItem inserts a new, unreserved item and returns its state. ID and
// timestamps are assigned here.
func CreateItem(ctx context.Context, db *db.DB, item *model.Item) (*model.ItemState, error) {
	now := time.Now().UTC()
	item.ID = uuid.Must(uuid.NewV7())
	item.CreatedAt = now
	item.UpdatedAt = now
	item.Reserved = false
	item.ReservedAt = nil
	if item.Status == "" {
		item.Status = model.ItemStatusActive
	}
	if item.Currency == "" {
		item.Currency = model.DefaultCurrency
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO items (id, wishlist_id, title, url, image_url, price_cents, currency, status, reserved, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.WishlistID, item.Title, item.URL, item.ImageURL, item.PriceCents, item.Currency,
		item.Status, false, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	return GetItemState(ctx, db, item.ID)
}

// GetItemState returns an item with its reservations and contributions,
// without locking. Returns nil if the item does not exist.
func GetItemState(ctx context.Context, db *db.DB, id uuid.UUID) (*model.ItemState, error) {
	return loadItemState(ctx, db, id, "")
}

// ListItemStates returns all items of a wishlist with their ledger rows,
// oldest first.
func ListItemStates(ctx context.Context, db *db.DB, wishlistID uuid.UUID) ([]model.ItemState, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+itemColumns+`
		 FROM items i JOIN wishlists w ON w.id = i.wishlist_id
		 WHERE i.wishlist_id = ? ORDER BY i.created_at, i.id`, wishlistID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}

	var states []model.ItemState
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		state, err := scanItemState(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		index[state.ID] = len(states)
		states = append(states, *state)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	if len(states) == 0 {
		return nil, nil
	}

	reservations, err := queryReservations(ctx, db,
		`SELECT r.id, r.item_id, r.reserver_id, r.display_name, r.created_at
		 FROM reservations r JOIN items i ON i.id = r.item_id
		 WHERE i.wishlist_id = ? ORDER BY r.created_at, r.id`, wishlistID)
	if err != nil {
		return nil, err
	}
	for _, r := range reservations {
		if i, ok := index[r.ItemID]; ok {
			states[i].Reservations = append(states[i].Reservations, r)
		}
	}

	contributions, err := queryContributions(ctx, db,
		`SELECT c.id, c.item_id, c.contributor_id, c.display_name, c.amount_cents, c.created_at
		 FROM contributions c JOIN items i ON i.id = c.item_id
		 WHERE i.wishlist_id = ? ORDER BY c.created_at, c.id`, wishlistID)
	if err != nil {
		return nil, err
	}
	for _, c := range contributions {
		if i, ok := index[c.ItemID]; ok {
			states[i].Contributions = append(states[i].Contributions, c)
		}
	}

	return states, nil
}

// GetItemImage returns an item's stored image. Data is nil if none is stored.
func GetItemImage(ctx context.Context, db *db.DB, id uuid.UUID) ([]byte, string, error) {
	var data []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT image, image_mime FROM items WHERE id = ?`, id,
	).Scan(&data, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting item image: %w", err)
	}
	return data, mime.String, nil
}

// loadItemState reads an item and its ledger rows through q. lock is
// appended to the item SELECT (row locking on Postgres).
func loadItemState(ctx context.Context, q querier, id uuid.UUID, lock string) (*model.ItemState, error) {
	state, err := scanItemState(q.QueryRowContext(ctx,
		`SELECT `+itemColumns+`
		 FROM items i JOIN wishlists w ON w.id = i.wishlist_id
		 WHERE i.id = ?`+lock, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}

	state.Reservations, err = queryReservations(ctx, q,
		`SELECT id, item_id, reserver_id, display_name, created_at
		 FROM reservations WHERE item_id = ? ORDER BY created_at, id`, id)
	if err != nil {
		return nil, err
	}

	state.Contributions, err = queryContributions(ctx, q,
		`SELECT id, item_id, contributor_id, display_name, amount_cents, created_at
		 FROM contributions WHERE item_id = ? ORDER BY created_at, id`, id)
	if err != nil {
		return nil, err
	}

	return state, nil
}

func scanItemState(row rowScanner) (*model.ItemState, error) {
	s := &model.ItemState{}
	var url, imageURL sql.NullString
	var price sql.NullInt64
	if err := row.Scan(&s.ID, &s.WishlistID, &s.Title, &url, &imageURL, &price, &s.Currency,
		&s.Status, &s.Reserved, &s.ReservedAt, &s.CreatedAt, &s.UpdatedAt, &s.OwnerID); err != nil {
		return nil, err
	}
	if url.Valid {
		s.URL = &url.String
	}
	if imageURL.Valid {
		s.ImageURL = &imageURL.String
	}
	if price.Valid {
		s.PriceCents = &price.Int64
	}
	return s, nil
}

func queryReservations(ctx context.Context, q querier, query string, args ...any) ([]model.Reservation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reservations: %w", err)
	}
	defer rows.Close()

	var reservations []model.Reservation
	for rows.Next() {
		var r model.Reservation
		var reserver uuid.NullUUID
		if err := rows.Scan(&r.ID, &r.ItemID, &reserver, &r.DisplayName, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning reservation: %w", err)
		}
		if reserver.Valid {
			r.ReserverID = &reserver.UUID
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

func queryContributions(ctx context.Context, q querier, query string, args ...any) ([]model.Contribution, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing contributions: %w", err)
	}
	defer rows.Close()

	var contributions []model.Contribution
	for rows.Next() {
		var c model.Contribution
		var contributor uuid.NullUUID
		if err := rows.Scan(&c.ID, &c.ItemID, &contributor, &c.DisplayName, &c.AmountCents, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning contribution: %w", err)
		}
		if contributor.Valid {
			c.ContributorID = &contributor.UUID
		}
		contributions = append(contributions, c)
	}
	return contributions, rows.Err()
}
