// Package funding decides whether reservations and contributions are
// admissible for an item snapshot. Every function is pure; checks run in a
// fixed order so the reported reason is deterministic.
package funding

import (
	"fmt"

	"github.com/erazemk/darila/internal/model"
)

// Remaining returns price minus the sum of live contributions, floored at
// zero. Items without a positive price have nothing remaining.
func Remaining(item *model.ItemState) int64 {
	if !Fundable(item) {
		return 0
	}
	remaining := *item.PriceCents - item.TotalContributed()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Fundable reports whether the item has a positive price.
func Fundable(item *model.ItemState) bool {
	return item.PriceCents != nil && *item.PriceCents > 0
}

// FullyFunded reports whether a fundable item has no remaining ceiling.
func FullyFunded(item *model.ItemState) bool {
	return Fundable(item) && item.TotalContributed() >= *item.PriceCents
}

// CanReserve admits a reservation unless the actor owns the item, the item
// is already reserved, or it is fully funded.
func CanReserve(item *model.ItemState, actorIsOwner bool) error {
	if actorIsOwner {
		return model.Forbidden("Owner cannot reserve own items")
	}
	if item.Reserved {
		return model.InvalidState("Item already reserved")
	}
	if FullyFunded(item) {
		return model.PolicyRejected("This item is already fully funded", nil)
	}
	return nil
}

// CanContribute admits amount only if it fits the remaining ceiling exactly
// or below. Over-requests are refused with the ceiling attached, never
// clamped.
func CanContribute(item *model.ItemState, actorIsOwner bool, amount int64) error {
	if actorIsOwner {
		return model.Forbidden("Owner cannot contribute to own items")
	}
	if !Fundable(item) {
		return model.PolicyRejected("This item does not accept contributions", nil)
	}

	remaining := Remaining(item)
	if remaining <= 0 {
		zero := int64(0)
		return model.PolicyRejected("This item is already fully funded", &zero)
	}
	if amount > remaining {
		return model.PolicyRejected(
			fmt.Sprintf("Maximum allowed contribution is %d cents (%s)", remaining, FormatAmount(remaining, item.Currency)),
			&remaining,
		)
	}
	return nil
}

// CanReprice admits a new price unless it is positive and below what has
// already been contributed. The error carries that total as the lowest
// acceptable price. Zero or no price stops contributions and is always
// allowed.
func CanReprice(item *model.ItemState, price int64) error {
	total := item.TotalContributed()
	if price > 0 && price < total {
		return model.PolicyRejected(
			fmt.Sprintf("Price cannot be lower than the %d cents already contributed (%s)", total, FormatAmount(total, item.Currency)),
			&total,
		)
	}
	return nil
}

// CanUnreserve admits an unreserve only on a reserved item.
func CanUnreserve(item *model.ItemState) error {
	if !item.Reserved {
		return model.InvalidState("Item is not reserved")
	}
	return nil
}

// CanUnarchive admits un-archiving an archived item. Archiving has no
// precondition; an archived item can be archived again.
func CanUnarchive(item *model.ItemState) error {
	if item.Status != model.ItemStatusArchived {
		return model.InvalidState("Item is not archived")
	}
	return nil
}
