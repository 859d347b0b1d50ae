package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/erazemk/darila/internal/limiter"
	"github.com/erazemk/darila/internal/metrics"
	"github.com/erazemk/darila/internal/model"
)

// ErrLimitExceeded is returned when a visitor has used up their allowance.
var ErrLimitExceeded = errors.New("too many requests, slow down")

// ItemLimiting is a wrapper over Items which caps how many reserve,
// unreserve and contribute requests one visitor can make per window.
// Only successful mutations count against the allowance.
//
// If the limiter cannot be reached, the behavior depends on FailOpen. If
// set, the request is allowed. Otherwise an error is returned.
type ItemLimiting struct {
	Items

	Limiter  *limiter.Limiter
	FailOpen bool
}

func (il *ItemLimiting) Reserve(ctx context.Context, token string, itemID uuid.UUID, actor Actor, displayName string) (*model.ItemState, error) {
	if err := il.check(ctx, actor); err != nil {
		return nil, err
	}
	state, err := il.Items.Reserve(ctx, token, itemID, actor, displayName)
	il.count(ctx, actor, err)
	return state, err
}

func (il *ItemLimiting) Unreserve(ctx context.Context, token string, itemID uuid.UUID, actor Actor) (*model.ItemState, error) {
	if err := il.check(ctx, actor); err != nil {
		return nil, err
	}
	state, err := il.Items.Unreserve(ctx, token, itemID, actor)
	il.count(ctx, actor, err)
	return state, err
}

func (il *ItemLimiting) Contribute(ctx context.Context, token string, itemID uuid.UUID, actor Actor, displayName string, amountCents int64) (*model.ItemState, error) {
	if err := il.check(ctx, actor); err != nil {
		return nil, err
	}
	state, err := il.Items.Contribute(ctx, token, itemID, actor, displayName, amountCents)
	il.count(ctx, actor, err)
	return state, err
}

func (il *ItemLimiting) check(ctx context.Context, actor Actor) error {
	if actor.Key == "" {
		return nil
	}

	exceeded, err := il.Limiter.LimitExceeded(ctx, actor.Key)
	if err != nil {
		if !il.FailOpen {
			return model.Transient("rate limiter unavailable", fmt.Errorf("checking visitor limit: %w", err))
		}
		slog.Error("can't check if limit exceeded", slog.Any("error", err))
	}

	if exceeded {
		metrics.RateLimited.Inc()
		return ErrLimitExceeded
	}
	return nil
}

func (il *ItemLimiting) count(ctx context.Context, actor Actor, err error) {
	if err != nil || actor.Key == "" {
		return
	}
	if _, err := il.Limiter.Increment(ctx, actor.Key); err != nil {
		slog.Error("can't increment visitor counter", slog.Any("error", err))
	}
}
