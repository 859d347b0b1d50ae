package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/darila/internal/metrics"
	"github.com/erazemk/darila/internal/model"
)

// ItemMetrics records a counter and a latency histogram per operation.
type ItemMetrics struct {
	Items
}

func observe(op string, t0 time.Time, err error) {
	result := "ok"
	switch {
	case errors.Is(err, ErrLimitExceeded):
		result = "rate_limited"
	case err != nil:
		result = model.KindOf(err).String()
	}
	metrics.ItemOperationsTotal.WithLabelValues(op, result).Inc()
	metrics.ItemOperationDuration.WithLabelValues(op).Observe(time.Since(t0).Seconds())
}

func (im *ItemMetrics) Create(ctx context.Context, ownerID, wishlistID uuid.UUID, in NewItem) (state *model.ItemState, err error) {
	defer func(t0 time.Time) { observe("create", t0, err) }(time.Now())
	return im.Items.Create(ctx, ownerID, wishlistID, in)
}

func (im *ItemMetrics) Update(ctx context.Context, ownerID, wishlistID, itemID uuid.UUID, patch *model.ItemPatch) (state *model.ItemState, err error) {
	defer func(t0 time.Time) { observe("update", t0, err) }(time.Now())
	return im.Items.Update(ctx, ownerID, wishlistID, itemID, patch)
}

func (im *ItemMetrics) Archive(ctx context.Context, ownerID, wishlistID, itemID uuid.UUID) (state *model.ItemState, err error) {
	defer func(t0 time.Time) { observe("archive", t0, err) }(time.Now())
	return im.Items.Archive(ctx, ownerID, wishlistID, itemID)
}

func (im *ItemMetrics) Unarchive(ctx context.Context, ownerID, wishlistID, itemID uuid.UUID) (state *model.ItemState, err error) {
	defer func(t0 time.Time) { observe("unarchive", t0, err) }(time.Now())
	return im.Items.Unarchive(ctx, ownerID, wishlistID, itemID)
}

func (im *ItemMetrics) SetImage(ctx context.Context, ownerID, wishlistID, itemID uuid.UUID, img *model.Image) (state *model.ItemState, err error) {
	defer func(t0 time.Time) { observe("set_image", t0, err) }(time.Now())
	return im.Items.SetImage(ctx, ownerID, wishlistID, itemID, img)
}

func (im *ItemMetrics) Reserve(ctx context.Context, token string, itemID uuid.UUID, actor Actor, displayName string) (state *model.ItemState, err error) {
	defer func(t0 time.Time) { observe("reserve", t0, err) }(time.Now())
	return im.Items.Reserve(ctx, token, itemID, actor, displayName)
}

func (im *ItemMetrics) Unreserve(ctx context.Context, token string, itemID uuid.UUID, actor Actor) (state *model.ItemState, err error) {
	defer func(t0 time.Time) { observe("unreserve", t0, err) }(time.Now())
	return im.Items.Unreserve(ctx, token, itemID, actor)
}

func (im *ItemMetrics) Contribute(ctx context.Context, token string, itemID uuid.UUID, actor Actor, displayName string, amountCents int64) (state *model.ItemState, err error) {
	defer func(t0 time.Time) { observe("contribute", t0, err) }(time.Now())
	return im.Items.Contribute(ctx, token, itemID, actor, displayName, amountCents)
}
