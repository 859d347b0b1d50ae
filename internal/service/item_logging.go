package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/darila/internal/model"
)

// ItemLogging logs every item operation with its outcome and latency.
// Domain rejections are logged at info, everything else that fails at error.
type ItemLogging struct {
	Items
}

func logResult(op string, t0 time.Time, err error, attrs ...any) {
	log := slog.With(attrs...).With(
		slog.String("op", op),
		slog.String("delay", time.Since(t0).String()),
	)

	switch kind := model.KindOf(err); {
	case err == nil:
		log.Debug("item operation done")
	case errors.Is(err, ErrLimitExceeded):
		log.Info("item operation rate limited")
	case kind == model.KindUnknown || kind == model.KindTransient:
		log.Error("item operation failed", slog.Any("error", err))
	default:
		log.Info("item operation rejected", slog.String("kind", kind.String()), slog.String("reason", err.Error()))
	}
}

func (il *ItemLogging) Create(ctx context.Context, ownerID, wishlistID uuid.UUID, in NewItem) (state *model.ItemState, err error) {
	defer func(t0 time.Time) {
		logResult("create", t0, err,
			slog.String("user_id", ownerID.String()),
			slog.String("wishlist_id", wishlistID.String()),
		)
	}(time.Now())

	return il.Items.Create(ctx, ownerID, wishlistID, in)
}

func (il *ItemLogging) Update(ctx context.Context, ownerID, wishlistID, itemID uuid.UUID, patch *model.ItemPatch) (state *model.ItemState, err error) {
	defer func(t0 time.Time) {
		logResult("update", t0, err,
			slog.String("user_id", ownerID.String()),
			slog.String("item_id", itemID.String()),
		)
	}(time.Now())

	return il.Items.Update(ctx, ownerID, wishlistID, itemID, patch)
}

func (il *ItemLogging) Archive(ctx context.Context, ownerID, wishlistID, itemID uuid.UUID) (state *model.ItemState, err error) {
	defer func(t0 time.Time) {
		logResult("archive", t0, err,
			slog.String("user_id", ownerID.String()),
			slog.String("item_id", itemID.String()),
		)
	}(time.Now())

	return il.Items.Archive(ctx, ownerID, wishlistID, itemID)
}

func (il *ItemLogging) Unarchive(ctx context.Context, ownerID, wishlistID, itemID uuid.UUID) (state *model.ItemState, err error) {
	defer func(t0 time.Time) {
		logResult("unarchive", t0, err,
			slog.String("user_id", ownerID.String()),
			slog.String("item_id", itemID.String()),
		)
	}(time.Now())

	return il.Items.Unarchive(ctx, ownerID, wishlistID, itemID)
}

func (il *ItemLogging) SetImage(ctx context.Context, ownerID, wishlistID, itemID uuid.UUID, img *model.Image) (state *model.ItemState, err error) {
	defer func(t0 time.Time) {
		logResult("set_image", t0, err,
			slog.String("user_id", ownerID.String()),
			slog.String("item_id", itemID.String()),
			slog.Int("bytes", len(img.Data)),
		)
	}(time.Now())

	return il.Items.SetImage(ctx, ownerID, wishlistID, itemID, img)
}

func (il *ItemLogging) Reserve(ctx context.Context, token string, itemID uuid.UUID, actor Actor, displayName string) (state *model.ItemState, err error) {
	defer func(t0 time.Time) {
		logResult("reserve", t0, err,
			slog.String("item_id", itemID.String()),
			slog.Bool("anonymous", actor.UserID == nil),
		)
	}(time.Now())

	return il.Items.Reserve(ctx, token, itemID, actor, displayName)
}

func (il *ItemLogging) Unreserve(ctx context.Context, token string, itemID uuid.UUID, actor Actor) (state *model.ItemState, err error) {
	defer func(t0 time.Time) {
		logResult("unreserve", t0, err,
			slog.String("item_id", itemID.String()),
			slog.Bool("anonymous", actor.UserID == nil),
		)
	}(time.Now())

	return il.Items.Unreserve(ctx, token, itemID, actor)
}

func (il *ItemLogging) Contribute(ctx context.Context, token string, itemID uuid.UUID, actor Actor, displayName string, amountCents int64) (state *model.ItemState, err error) {
	defer func(t0 time.Time) {
		logResult("contribute", t0, err,
			slog.String("item_id", itemID.String()),
			slog.Bool("anonymous", actor.UserID == nil),
			slog.Int64("amount_cents", amountCents),
		)
	}(time.Now())

	return il.Items.Contribute(ctx, token, itemID, actor, displayName, amountCents)
}
