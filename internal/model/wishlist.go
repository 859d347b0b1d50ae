package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Wishlist groups items owned by one user. AccessToken is the opaque
// capability used by visitors; it is generated once and never reused.
type Wishlist struct {
	ID          uuid.UUID  `json:"id"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	EventDate   *time.Time `json:"event_date,omitempty"`
	IsPublic    bool       `json:"is_public"`
	AccessToken string     `json:"access_token"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Joined fields (not always populated).
	ItemCount int `json:"item_count"`
}

// MaxWishlistTitleLength bounds wishlist titles.
const MaxWishlistTitleLength = 255

// ValidateWishlistTitle trims the title and checks its length.
func ValidateWishlistTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("title required")
	}
	if utf8.RuneCountInString(title) > MaxWishlistTitleLength {
		return "", fmt.Errorf("title must be at most %d characters", MaxWishlistTitleLength)
	}
	return title, nil
}
