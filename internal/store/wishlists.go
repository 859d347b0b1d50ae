package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/darila/internal/db"
	"github.com/erazemk/darila/internal/model"
)

const wishlistColumns = `w.id, w.owner_id, w.title, w.description, w.event_date, w.is_public,
	w.access_token, w.created_at, w.updated_at,
	(SELECT COUNT(*) FROM items i WHERE i.wishlist_id = w.id) AS item_count`

// NewAccessToken returns a random URL-safe sharing token (24 bytes of entropy).
func NewAccessToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating access token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CreateWishlist creates a wishlist with a fresh access token.
func CreateWishlist(ctx context.Context, db *db.DB, ownerID uuid.UUID, title, description string, eventDate *time.Time, isPublic bool) (*model.Wishlist, error) {
	token, err := NewAccessToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	w := &model.Wishlist{
		ID:          uuid.Must(uuid.NewV7()),
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		EventDate:   eventDate,
		IsPublic:    isPublic,
		AccessToken: token,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO wishlists (id, owner_id, title, description, event_date, is_public, access_token, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.OwnerID, w.Title, nullString(w.Description), w.EventDate, w.IsPublic, w.AccessToken, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating wishlist: %w", err)
	}

	return w, nil
}

// GetWishlist returns a wishlist by ID.
func GetWishlist(ctx context.Context, db *db.DB, id uuid.UUID) (*model.Wishlist, error) {
	w, err := scanWishlist(db.QueryRowContext(ctx,
		`SELECT `+wishlistColumns+` FROM wishlists w WHERE w.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting wishlist: %w", err)
	}
	return w, nil
}

// GetWishlistByToken returns a wishlist by its sharing token, public or not.
func GetWishlistByToken(ctx context.Context, db *db.DB, token string) (*model.Wishlist, error) {
	w, err := scanWishlist(db.QueryRowContext(ctx,
		`SELECT `+wishlistColumns+` FROM wishlists w WHERE w.access_token = ?`, token,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting wishlist by token: %w", err)
	}
	return w, nil
}

// ListWishlists returns a user's wishlists, newest first, with item counts.
func ListWishlists(ctx context.Context, db *db.DB, ownerID uuid.UUID) ([]model.Wishlist, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+wishlistColumns+` FROM wishlists w WHERE w.owner_id = ? ORDER BY w.created_at DESC`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing wishlists: %w", err)
	}
	defer rows.Close()

	var wishlists []model.Wishlist
	for rows.Next() {
		w, err := scanWishlist(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning wishlist: %w", err)
		}
		wishlists = append(wishlists, *w)
	}
	return wishlists, rows.Err()
}

// UpdateWishlist writes a wishlist's editable fields.
func UpdateWishlist(ctx context.Context, db *db.DB, w *model.Wishlist) error {
	w.UpdatedAt = time.Now().UTC()
	_, err := db.ExecContext(ctx,
		`UPDATE wishlists SET title = ?, description = ?, event_date = ?, is_public = ?, updated_at = ?
		 WHERE id = ?`,
		w.Title, nullString(w.Description), w.EventDate, w.IsPublic, w.UpdatedAt, w.ID,
	)
	if err != nil {
		return fmt.Errorf("updating wishlist: %w", err)
	}
	return nil
}

// DeleteWishlist deletes a wishlist together with its items and ledger rows.
func DeleteWishlist(ctx context.Context, db *db.DB, id uuid.UUID) error {
	_, err := db.ExecContext(ctx, `DELETE FROM wishlists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting wishlist: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWishlist(row rowScanner) (*model.Wishlist, error) {
	w := &model.Wishlist{}
	var description sql.NullString
	if err := row.Scan(&w.ID, &w.OwnerID, &w.Title, &description, &w.EventDate, &w.IsPublic,
		&w.AccessToken, &w.CreatedAt, &w.UpdatedAt, &w.ItemCount); err != nil {
		return nil, err
	}
	w.Description = description.String
	return w, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
