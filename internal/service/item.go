// Package service holds the item operations behind the HTTP handlers. The
// core rules live in ItemGeneric; logging, metrics and rate limiting wrap it
// as decorators implementing the same Items interface.
package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/erazemk/darila/internal/broadcast"
	"github.com/erazemk/darila/internal/db"
	"github.com/erazemk/darila/internal/funding"
	"github.com/erazemk/darila/internal/model"
	"github.com/erazemk/darila/internal/store"
)

// Actor is whoever performs a visitor operation. UserID is nil for anonymous
// visitors. Key identifies the actor for rate limiting.
type Actor struct {
	UserID *uuid.UUID
	Key    string
}

// NewItem is the input for creating an item.
type NewItem struct {
	Title      string
	URL        *string
	ImageURL   *string
	PriceCents *int64
	Currency   string
}

// Items is the set of item operations. Owner operations address the item
// through its wishlist id; visitor operations through the wishlist's public
// access token.
type Items interface {
	Create(ctx context.Context, ownerID, wishlistID uuid.UUID, in NewItem) (*model.ItemState, error)
	Update(ctx context.Context, ownerID, wishlistID, itemID uuid.UUID, patch *model.ItemPatch) (*model.ItemState, error)
	Archive(ctx context.Context, ownerID, wishlistID, itemID uuid.UUID) (*model.ItemState, error)
	Unarchive(ctx context.Context, ownerID, wishlistID, itemID uuid.UUID) (*model.ItemState, error)
	SetImage(ctx context.Context, ownerID, wishlistID, itemID uuid.UUID, img *model.Image) (*model.ItemState, error)

	Reserve(ctx context.Context, token string, itemID uuid.UUID, actor Actor, displayName string) (*model.ItemState, error)
	Unreserve(ctx context.Context, token string, itemID uuid.UUID, actor Actor) (*model.ItemState, error)
	Contribute(ctx context.Context, token string, itemID uuid.UUID, actor Actor, displayName string, amountCents int64) (*model.ItemState, error)
}

// ItemGeneric implements Items. Every mutation of an existing item runs
// through the coordinator, so it is serialized per item and announced once
// committed.
type ItemGeneric struct {
	DB          *db.DB
	Coordinator *broadcast.Coordinator
}

// ImagePath is where an item's stored picture is served.
func ImagePath(itemID uuid.UUID) string {
	return "/api/items/" + itemID.String() + "/image"
}

func (ig *ItemGeneric) Create(ctx context.Context, ownerID, wishlistID uuid.UUID, in NewItem) (*model.ItemState, error) {
	if _, err := ig.ownedWishlist(ctx, ownerID, wishlistID); err != nil {
		return nil, err
	}

	title, err := model.ValidateItemTitle(in.Title)
	if err != nil {
		return nil, invalid(err)
	}
	if in.PriceCents != nil {
		if err := model.ValidatePrice(*in.PriceCents); err != nil {
			return nil, invalid(err)
		}
	}
	currency, err := model.ValidateCurrency(in.Currency)
	if err != nil {
		return nil, invalid(err)
	}

	state, err := store.CreateItem(ctx, ig.DB, &model.Item{
		WishlistID: wishlistID,
		Title:      title,
		URL:        nonEmpty(in.URL),
		ImageURL:   nonEmpty(in.ImageURL),
		PriceCents: in.PriceCents,
		Currency:   currency,
	})
	if err != nil {
		return nil, model.Transient("could not create item", err)
	}

	ig.Coordinator.Announce(model.EventItemCreated, state)
	return state, nil
}

func (ig *ItemGeneric) Update(ctx context.Context, ownerID, wishlistID, itemID uuid.UUID, patch *model.ItemPatch) (*model.ItemState, error) {
	if err := patch.Validate(); err != nil {
		return nil, invalid(err)
	}
	// Status and image have their own operations.
	patch.Status = nil
	patch.Image = nil

	return ig.Coordinator.Mutate(ctx, itemID, func(s *model.ItemState) (*model.Mutation, error) {
		if err := ownsItem(s, ownerID, wishlistID); err != nil {
			return nil, err
		}
		if patch.PriceCents != nil {
			if err := funding.CanReprice(s, *patch.PriceCents); err != nil {
				return nil, err
			}
		}
		return &model.Mutation{Event: model.EventItemUpdated, Patch: patch}, nil
	})
}

func (ig *ItemGeneric) Archive(ctx context.Context, ownerID, wishlistID, itemID uuid.UUID) (*model.ItemState, error) {
	return ig.setStatus(ctx, ownerID, wishlistID, itemID, model.ItemStatusArchived, nil)
}

func (ig *ItemGeneric) Unarchive(ctx context.Context, ownerID, wishlistID, itemID uuid.UUID) (*model.ItemState, error) {
	return ig.setStatus(ctx, ownerID, wishlistID, itemID, model.ItemStatusActive, funding.CanUnarchive)
}

func (ig *ItemGeneric) setStatus(ctx context.Context, ownerID, wishlistID, itemID uuid.UUID, status string, admit func(*model.ItemState) error) (*model.ItemState, error) {
	return ig.Coordinator.Mutate(ctx, itemID, func(s *model.ItemState) (*model.Mutation, error) {
		if err := ownsItem(s, ownerID, wishlistID); err != nil {
			return nil, err
		}
		if admit != nil {
			if err := admit(s); err != nil {
				return nil, err
			}
		}
		return &model.Mutation{
			Event: model.EventItemUpdated,
			Patch: &model.ItemPatch{Status: &status},
		}, nil
	})
}

func (ig *ItemGeneric) SetImage(ctx context.Context, ownerID, wishlistID, itemID uuid.UUID, img *model.Image) (*model.ItemState, error) {
	imageURL := ImagePath(itemID)
	return ig.Coordinator.Mutate(ctx, itemID, func(s *model.ItemState) (*model.Mutation, error) {
		if err := ownsItem(s, ownerID, wishlistID); err != nil {
			return nil, err
		}
		return &model.Mutation{
			Event: model.EventItemUpdated,
			Patch: &model.ItemPatch{ImageURL: &imageURL, Image: img},
		}, nil
	})
}

func (ig *ItemGeneric) Reserve(ctx context.Context, token string, itemID uuid.UUID, actor Actor, displayName string) (*model.ItemState, error) {
	name, err := model.ValidateDisplayName(displayName)
	if err != nil {
		return nil, invalid(err)
	}
	w, err := ig.publicWishlist(ctx, token)
	if err != nil {
		return nil, err
	}

	return ig.Coordinator.Mutate(ctx, itemID, func(s *model.ItemState) (*model.Mutation, error) {
		if s.WishlistID != w.ID {
			return nil, model.NotFound("Item not found")
		}
		if err := funding.CanReserve(s, s.IsOwner(actor.UserID)); err != nil {
			return nil, err
		}
		return &model.Mutation{
			Event:   model.EventItemReserved,
			Reserve: &model.Reservation{ReserverID: actor.UserID, DisplayName: name},
		}, nil
	})
}

func (ig *ItemGeneric) Unreserve(ctx context.Context, token string, itemID uuid.UUID, actor Actor) (*model.ItemState, error) {
	w, err := ig.publicWishlist(ctx, token)
	if err != nil {
		return nil, err
	}

	return ig.Coordinator.Mutate(ctx, itemID, func(s *model.ItemState) (*model.Mutation, error) {
		if s.WishlistID != w.ID {
			return nil, model.NotFound("Item not found")
		}
		if err := funding.CanUnreserve(s); err != nil {
			return nil, err
		}
		return &model.Mutation{Event: model.EventItemUnreserved, Unreserve: true}, nil
	})
}

func (ig *ItemGeneric) Contribute(ctx context.Context, token string, itemID uuid.UUID, actor Actor, displayName string, amountCents int64) (*model.ItemState, error) {
	name, err := model.ValidateDisplayName(displayName)
	if err != nil {
		return nil, invalid(err)
	}
	if err := model.ValidateAmount(amountCents); err != nil {
		return nil, invalid(err)
	}
	w, err := ig.publicWishlist(ctx, token)
	if err != nil {
		return nil, err
	}

	return ig.Coordinator.Mutate(ctx, itemID, func(s *model.ItemState) (*model.Mutation, error) {
		if s.WishlistID != w.ID {
			return nil, model.NotFound("Item not found")
		}
		if err := funding.CanContribute(s, s.IsOwner(actor.UserID), amountCents); err != nil {
			return nil, err
		}
		return &model.Mutation{
			Event: model.EventContributionAdded,
			Contribute: &model.Contribution{
				ContributorID: actor.UserID,
				DisplayName:   name,
				AmountCents:   amountCents,
			},
		}, nil
	})
}

// ownedWishlist loads a wishlist and hides it from anyone but its owner.
func (ig *ItemGeneric) ownedWishlist(ctx context.Context, ownerID, wishlistID uuid.UUID) (*model.Wishlist, error) {
	w, err := store.GetWishlist(ctx, ig.DB, wishlistID)
	if err != nil {
		return nil, model.Transient("could not load wishlist", err)
	}
	if w == nil || w.OwnerID != ownerID {
		return nil, model.NotFound("Wishlist not found")
	}
	return w, nil
}

// publicWishlist resolves a sharing token. Private wishlists look missing.
func (ig *ItemGeneric) publicWishlist(ctx context.Context, token string) (*model.Wishlist, error) {
	if token == "" {
		return nil, model.NotFound("Wishlist not found or not public")
	}
	w, err := store.GetWishlistByToken(ctx, ig.DB, token)
	if err != nil {
		return nil, model.Transient("could not load wishlist", err)
	}
	if w == nil || !w.IsPublic {
		return nil, model.NotFound("Wishlist not found or not public")
	}
	return w, nil
}

func ownsItem(s *model.ItemState, ownerID, wishlistID uuid.UUID) error {
	if s.WishlistID != wishlistID || s.OwnerID != ownerID {
		return model.NotFound("Item not found")
	}
	return nil
}

func invalid(err error) error {
	return model.InvalidState(err.Error())
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
