package broadcast

import (
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/darila/internal/model"
)

// ItemView is the client-facing projection of an item. Reserver and
// contributor user ids never appear in it.
type ItemView struct {
	ID               uuid.UUID          `json:"id"`
	WishlistID       uuid.UUID          `json:"wishlist_id"`
	Title            string             `json:"title"`
	URL              *string            `json:"url"`
	PriceCents       *int64             `json:"price_cents"`
	Currency         string             `json:"currency"`
	ImageURL         *string            `json:"image_url"`
	Status           string             `json:"status"`
	Reserved         bool               `json:"reserved"`
	ReservedAt       *time.Time         `json:"reserved_at"`
	CreatedAt        time.Time          `json:"created_at"`
	TotalContributed int64              `json:"total_contributed"`
	Reservations     []ReservationView  `json:"reservations"`
	Contributions    []ContributionView `json:"contributions"`
}

// ReservationView is a reservation as shown to non-owners.
type ReservationView struct {
	ID                  uuid.UUID `json:"id"`
	ReserverDisplayName string    `json:"reserver_display_name"`
	CreatedAt           time.Time `json:"created_at"`
}

// ContributionView is a contribution as shown to non-owners.
type ContributionView struct {
	ID                     uuid.UUID `json:"id"`
	ContributorDisplayName string    `json:"contributor_display_name"`
	AmountCents            int64     `json:"amount_cents"`
	CreatedAt              time.Time `json:"created_at"`
}

// Project builds the view of state for one audience. The owner sees totals
// but not who reserved or contributed; everyone else sees display names.
func Project(state *model.ItemState, isOwner bool) ItemView {
	v := ItemView{
		ID:               state.ID,
		WishlistID:       state.WishlistID,
		Title:            state.Title,
		URL:              state.URL,
		PriceCents:       state.PriceCents,
		Currency:         state.Currency,
		ImageURL:         state.ImageURL,
		Status:           state.Status,
		Reserved:         state.Reserved,
		ReservedAt:       state.ReservedAt,
		CreatedAt:        state.CreatedAt,
		TotalContributed: state.TotalContributed(),
		Reservations:     []ReservationView{},
		Contributions:    []ContributionView{},
	}
	if isOwner {
		return v
	}

	for _, r := range state.Reservations {
		v.Reservations = append(v.Reservations, ReservationView{
			ID:                  r.ID,
			ReserverDisplayName: r.DisplayName,
			CreatedAt:           r.CreatedAt,
		})
	}
	for _, c := range state.Contributions {
		v.Contributions = append(v.Contributions, ContributionView{
			ID:                     c.ID,
			ContributorDisplayName: c.DisplayName,
			AmountCents:            c.AmountCents,
			CreatedAt:              c.CreatedAt,
		})
	}
	return v
}

// ProjectAll projects a list of item states for one audience.
func ProjectAll(states []model.ItemState, isOwner bool) []ItemView {
	views := make([]ItemView, 0, len(states))
	for i := range states {
		views = append(views, Project(&states[i], isOwner))
	}
	return views
}
