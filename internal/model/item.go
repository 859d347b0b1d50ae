package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/currency"
)

// Item is a wishlist entry. A nil or non-positive PriceCents means the item
// does not accept contributions.
type Item struct {
	ID         uuid.UUID  `json:"id"`
	WishlistID uuid.UUID  `json:"wishlist_id"`
	Title      string     `json:"title"`
	URL        *string    `json:"url"`
	ImageURL   *string    `json:"image_url"`
	PriceCents *int64     `json:"price_cents"`
	Currency   string     `json:"currency"`
	Status     string     `json:"status"`
	Reserved   bool       `json:"reserved"`
	ReservedAt *time.Time `json:"reserved_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Item statuses.
const (
	ItemStatusActive   = "active"
	ItemStatusArchived = "archived"
)

// Item field limits.
const (
	MaxItemTitleLength = 500
	MaxPriceCents      = 100_000_000
	MaxAmountCents     = 100_000_000
	DefaultCurrency    = "USD"
)

// Reservation is a visitor's claim on an item. ReserverID is never exposed.
type Reservation struct {
	ID          uuid.UUID
	ItemID      uuid.UUID
	ReserverID  *uuid.UUID
	DisplayName string
	CreatedAt   time.Time
}

// Contribution is an immutable pledge toward an item's price.
type Contribution struct {
	ID            uuid.UUID
	ItemID        uuid.UUID
	ContributorID *uuid.UUID
	DisplayName   string
	AmountCents   int64
	CreatedAt     time.Time
}

// ItemState is an item together with its live ledger rows, as loaded under
// the item's lock.
type ItemState struct {
	Item
	OwnerID       uuid.UUID
	Reservations  []Reservation
	Contributions []Contribution
}

// TotalContributed sums all live contributions.
func (s *ItemState) TotalContributed() int64 {
	var total int64
	for _, c := range s.Contributions {
		total += c.AmountCents
	}
	return total
}

// IsOwner reports whether userID owns the item's wishlist.
func (s *ItemState) IsOwner(userID *uuid.UUID) bool {
	return userID != nil && *userID == s.OwnerID
}

// Image is a processed image blob.
type Image struct {
	Data []byte
	MIME string
}

// ItemPatch holds optional item field changes. An empty URL or ImageURL
// clears the field.
type ItemPatch struct {
	Title      *string
	URL        *string
	ImageURL   *string
	PriceCents *int64
	Currency   *string
	Status     *string
	Image      *Image
}

// Validate normalizes and checks every field that is set.
func (p *ItemPatch) Validate() error {
	if p.Title != nil {
		title, err := ValidateItemTitle(*p.Title)
		if err != nil {
			return err
		}
		p.Title = &title
	}
	if p.PriceCents != nil {
		if err := ValidatePrice(*p.PriceCents); err != nil {
			return err
		}
	}
	if p.Currency != nil {
		code, err := ValidateCurrency(*p.Currency)
		if err != nil {
			return err
		}
		p.Currency = &code
	}
	if p.Status != nil && *p.Status != ItemStatusActive && *p.Status != ItemStatusArchived {
		return fmt.Errorf("invalid status")
	}
	return nil
}

// ApplyTo copies the set fields onto item.
func (p *ItemPatch) ApplyTo(item *Item) {
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.URL != nil {
		item.URL = optionalString(*p.URL)
	}
	if p.ImageURL != nil {
		item.ImageURL = optionalString(*p.ImageURL)
	}
	if p.PriceCents != nil {
		price := *p.PriceCents
		item.PriceCents = &price
	}
	if p.Currency != nil {
		item.Currency = *p.Currency
	}
	if p.Status != nil {
		item.Status = *p.Status
	}
}

// Mutation is the write an admitted item operation asks the ledger to apply.
// Exactly one of Reserve, Unreserve, Contribute and Patch is set.
type Mutation struct {
	Event      EventKind
	Reserve    *Reservation
	Unreserve  bool
	Contribute *Contribution
	Patch      *ItemPatch
}

// ValidateItemTitle trims the title and checks it is 1..500 characters.
func ValidateItemTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("title required")
	}
	if utf8.RuneCountInString(title) > MaxItemTitleLength {
		return "", fmt.Errorf("title must be at most %d characters", MaxItemTitleLength)
	}
	return title, nil
}

// ValidatePrice checks 0 <= price <= MaxPriceCents.
func ValidatePrice(price int64) error {
	if price < 0 || price > MaxPriceCents {
		return fmt.Errorf("price_cents must be between 0 and %d", MaxPriceCents)
	}
	return nil
}

// ValidateAmount checks 0 < amount <= MaxAmountCents.
func ValidateAmount(amount int64) error {
	if amount <= 0 || amount > MaxAmountCents {
		return fmt.Errorf("amount_cents must be between 1 and %d", MaxAmountCents)
	}
	return nil
}

// ValidateCurrency returns the canonical ISO 4217 code, defaulting to USD.
func ValidateCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency, nil
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("invalid currency %q", code)
	}
	return unit.String(), nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
