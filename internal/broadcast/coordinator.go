// Package broadcast turns committed item mutations into live events.
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/erazemk/darila/internal/guard"
	"github.com/erazemk/darila/internal/metrics"
	"github.com/erazemk/darila/internal/model"
)

// Message is the live-update envelope sent to viewers.
type Message struct {
	Event  model.EventKind `json:"event"`
	ItemID uuid.UUID       `json:"item_id"`
	Data   ItemView        `json:"data"`
}

// NewMessage builds the viewer message for a committed item state. The live
// channel is unauthenticated, so data is always the non-owner projection.
func NewMessage(kind model.EventKind, state *model.ItemState) Message {
	return Message{
		Event:  kind,
		ItemID: state.ID,
		Data:   Project(state, false),
	}
}

// Publisher delivers an encoded event to a wishlist's viewers.
type Publisher interface {
	Publish(wishlistID uuid.UUID, payload []byte) int
}

// Coordinator runs item operations through the guard and publishes exactly
// one event per commit.
type Coordinator struct {
	Guard     *guard.Guard
	Publisher Publisher
}

// Mutate runs op under the item's guard. On commit the event is published
// before the item is released; a rejected op publishes nothing.
func (c *Coordinator) Mutate(ctx context.Context, itemID uuid.UUID, op guard.Operation) (*model.ItemState, error) {
	out, err := c.Guard.WithExclusiveItem(ctx, itemID, op, func(out guard.Outcome) {
		c.Announce(out.Event, out.Item)
	})
	if err != nil {
		return nil, err
	}
	return out.Item, nil
}

// Announce publishes a committed state that did not go through the guard,
// such as a newly created item.
func (c *Coordinator) Announce(kind model.EventKind, state *model.ItemState) {
	payload, err := json.Marshal(NewMessage(kind, state))
	if err != nil {
		slog.Error("encoding live event", slog.String("event", string(kind)), slog.Any("error", err))
		return
	}

	delivered := c.Publisher.Publish(state.WishlistID, payload)
	metrics.EventsPublished.WithLabelValues(string(kind)).Inc()
	slog.Debug("live event published",
		slog.String("event", string(kind)),
		slog.String("item_id", state.ID.String()),
		slog.Int("viewers", delivered),
	)
}
