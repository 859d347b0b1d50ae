// Package guard serializes mutating operations per item. Every operation
// runs against a freshly loaded, row-locked snapshot and commits its writes
// atomically, so read-decide-write sequences on one item never interleave.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/erazemk/darila/internal/metrics"
	"github.com/erazemk/darila/internal/model"
)

var errLockTimeout = errors.New("timed out waiting for item lock")

// Operation decides what to write given the locked item state. Returning an
// error rejects the operation: nothing is written and nothing is published.
type Operation func(state *model.ItemState) (*model.Mutation, error)

// Outcome is a committed mutation together with the post-commit snapshot.
type Outcome struct {
	Event model.EventKind
	Item  *model.ItemState
}

// Options tune the guard. Zero values fall back to defaults.
//
// LockTimeout bounds both the wait for the item lock and each ledger
// transaction attempt, so a stalled store surfaces as Transient instead of
// holding the item.
type Options struct {
	LockTimeout  time.Duration
	Retries      int
	RetryBackoff time.Duration
}

// Default option values.
const (
	DefaultLockTimeout  = 5 * time.Second
	DefaultRetries      = 2
	DefaultRetryBackoff = 50 * time.Millisecond
)

// Guard provides per-item mutual exclusion over a Ledger.
type Guard struct {
	ledger  Ledger
	locks   *keyedLocks
	breaker *gobreaker.CircuitBreaker
	opts    Options
}

// New creates a guard over ledger.
func New(ledger Ledger, opts Options) *Guard {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}

	return &Guard{
		ledger:  ledger,
		locks:   newKeyedLocks(),
		breaker: newBreaker("ledger"),
		opts:    opts,
	}
}

// WithExclusiveItem runs op against the item's locked state and commits the
// mutation it returns. onCommit, if set, runs after a successful commit while
// the item is still held, so callbacks for one item observe commit order.
//
// Store failures are returned as model Transient errors. They are retried
// only while nothing has been written yet.
func (g *Guard) WithExclusiveItem(ctx context.Context, itemID uuid.UUID, op Operation, onCommit func(Outcome)) (Outcome, error) {
	waitStart := time.Now()
	release, err := g.locks.acquire(ctx, itemID, g.opts.LockTimeout)
	metrics.ItemLockWait.Observe(time.Since(waitStart).Seconds())
	if err != nil {
		if errors.Is(err, errLockTimeout) {
			return Outcome{}, model.Transient("item is busy, try again", err)
		}
		return Outcome{}, err
	}
	defer release()

	for attempt := 0; ; attempt++ {
		out, wrote, err := g.attempt(ctx, itemID, op)
		if err == nil {
			if onCommit != nil {
				onCommit(out)
			}
			return out, nil
		}

		if wrote || !model.IsTransient(err) || attempt >= g.opts.Retries {
			return Outcome{}, err
		}

		metrics.ItemRetriesTotal.Inc()
		slog.Warn("retrying item transaction",
			slog.String("item_id", itemID.String()),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)

		backoff := time.NewTimer(g.opts.RetryBackoff * time.Duration(attempt+1))
		select {
		case <-backoff.C:
		case <-ctx.Done():
			backoff.Stop()
			return Outcome{}, ctx.Err()
		}
	}
}

// attempt runs one transaction through the circuit breaker. wrote reports
// whether any write reached the store before the failure.
func (g *Guard) attempt(ctx context.Context, itemID uuid.UUID, op Operation) (out Outcome, wrote bool, err error) {
	_, err = g.breaker.Execute(func() (interface{}, error) {
		var txErr error
		out, wrote, txErr = g.run(ctx, itemID, op)
		return nil, txErr
	})

	switch {
	case err == nil:
		return out, wrote, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerFailures.WithLabelValues(g.breaker.Name()).Inc()
		return Outcome{}, false, model.Transient("store temporarily unavailable", err)
	default:
		return Outcome{}, wrote, err
	}
}

func (g *Guard) run(parent context.Context, itemID uuid.UUID, op Operation) (Outcome, bool, error) {
	// The transaction is bound to ctx, so it has to outlive Commit.
	ctx, cancel := context.WithTimeout(parent, g.opts.LockTimeout)
	defer cancel()

	tx, err := g.ledger.Begin(ctx)
	if err != nil {
		return Outcome{}, false, classify(parent, fmt.Errorf("beginning ledger transaction: %w", err))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	state, err := tx.LockItem(ctx, itemID)
	if err != nil {
		return Outcome{}, false, classify(parent, err)
	}

	m, err := op(state)
	if err != nil {
		return Outcome{}, false, err
	}
	if m == nil {
		return Outcome{}, false, fmt.Errorf("operation on item %s returned no mutation", itemID)
	}

	if err := tx.Apply(ctx, m); err != nil {
		return Outcome{}, true, classify(parent, err)
	}

	// Re-read inside the transaction so the snapshot reflects exactly this
	// mutation and nothing committed after it.
	after, err := tx.LockItem(ctx, itemID)
	if err != nil {
		return Outcome{}, true, classify(parent, err)
	}

	if err := tx.Commit(); err != nil {
		return Outcome{}, true, classify(parent, fmt.Errorf("committing ledger transaction: %w", err))
	}
	committed = true

	return Outcome{Event: m.Event, Item: after}, true, nil
}

// classify keeps domain errors and the caller's own context errors as they
// are. A deadline hit while ctx is still live is the attempt timeout and
// reads as a busy item; everything else is a Transient store failure.
func classify(ctx context.Context, err error) error {
	if model.KindOf(err) != model.KindUnknown {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.Transient("item is busy, try again", err)
	}
	return model.Transient("store unavailable", err)
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		// Only store failures count against the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !model.IsTransient(err)
		},
		OnStateChange: func(cbName string, from, to gobreaker.State) {
			state := float64(0)
			switch to {
			case gobreaker.StateOpen:
				state = 1
			case gobreaker.StateHalfOpen:
				state = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(cbName).Set(state)

			slog.Warn("circuit breaker state changed",
				slog.String("circuit", cbName),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	return cb
}
