package guard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/darila/internal/funding"
	"github.com/erazemk/darila/internal/model"
)

var errStoreDown = errors.New("connection refused")

// memLedger is an in-memory Ledger. Failure hooks return an error for the
// nth call of a step when set.
type memLedger struct {
	mu    sync.Mutex
	items map[uuid.UUID]model.ItemState

	begins  atomic.Int32
	applies atomic.Int32
	commits atomic.Int32

	failBegin  func(n int32) error
	failApply  func(n int32) error
	failCommit func(n int32) error
}

func newMemLedger(items ...model.ItemState) *memLedger {
	l := &memLedger{items: make(map[uuid.UUID]model.ItemState)}
	for _, it := range items {
		l.items[it.ID] = it
	}
	return l
}

func (l *memLedger) get(id uuid.UUID) *model.ItemState {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := copyState(l.items[id])
	return &s
}

func (l *memLedger) Begin(ctx context.Context) (LedgerTx, error) {
	n := l.begins.Add(1)
	if l.failBegin != nil {
		if err := l.failBegin(n); err != nil {
			return nil, err
		}
	}
	return &memTx{l: l}, nil
}

type memTx struct {
	l      *memLedger
	staged *model.ItemState
}

func (t *memTx) LockItem(ctx context.Context, itemID uuid.UUID) (*model.ItemState, error) {
	if t.staged != nil && t.staged.ID == itemID {
		s := copyState(*t.staged)
		return &s, nil
	}
	t.l.mu.Lock()
	it, ok := t.l.items[itemID]
	t.l.mu.Unlock()
	if !ok {
		return nil, model.NotFound("Item not found")
	}
	s := copyState(it)
	t.staged = &s
	out := copyState(s)
	return &out, nil
}

func (t *memTx) Apply(ctx context.Context, m *model.Mutation) error {
	n := t.l.applies.Add(1)
	if t.l.failApply != nil {
		if err := t.l.failApply(n); err != nil {
			return err
		}
	}
	s := t.staged
	switch {
	case m.Reserve != nil:
		s.Reserved = true
		s.Reservations = append(s.Reservations, *m.Reserve)
	case m.Unreserve:
		s.Reserved = false
		s.Reservations = nil
	case m.Contribute != nil:
		s.Contributions = append(s.Contributions, *m.Contribute)
	case m.Patch != nil:
		m.Patch.ApplyTo(&s.Item)
	}
	return nil
}

func (t *memTx) Commit() error {
	n := t.l.commits.Add(1)
	if t.l.failCommit != nil {
		if err := t.l.failCommit(n); err != nil {
			return err
		}
	}
	if t.staged != nil {
		t.l.mu.Lock()
		t.l.items[t.staged.ID] = copyState(*t.staged)
		t.l.mu.Unlock()
	}
	return nil
}

func (t *memTx) Rollback() error { return nil }

func copyState(s model.ItemState) model.ItemState {
	s.Reservations = append([]model.Reservation(nil), s.Reservations...)
	s.Contributions = append([]model.Contribution(nil), s.Contributions...)
	return s
}

func testItem(price int64) model.ItemState {
	return model.ItemState{
		Item: model.Item{
			ID:         uuid.Must(uuid.NewV7()),
			WishlistID: uuid.Must(uuid.NewV7()),
			Title:      "Bike",
			PriceCents: &price,
			Currency:   "USD",
			Status:     model.ItemStatusActive,
		},
		OwnerID: uuid.Must(uuid.NewV7()),
	}
}

func contribute(amount int64) Operation {
	return func(s *model.ItemState) (*model.Mutation, error) {
		if err := funding.CanContribute(s, false, amount); err != nil {
			return nil, err
		}
		return &model.Mutation{
			Event:      model.EventContributionAdded,
			Contribute: &model.Contribution{DisplayName: "guest", AmountCents: amount},
		}, nil
	}
}

func reserve(s *model.ItemState) (*model.Mutation, error) {
	if err := funding.CanReserve(s, false); err != nil {
		return nil, err
	}
	return &model.Mutation{
		Event:   model.EventItemReserved,
		Reserve: &model.Reservation{DisplayName: "guest"},
	}, nil
}

func fastOptions() Options {
	return Options{LockTimeout: time.Second, Retries: 2, RetryBackoff: time.Millisecond}
}

func TestConcurrentContributionsNeverExceedPrice(t *testing.T) {
	item := testItem(1000)
	ledger := newMemLedger(item)
	g := New(ledger, fastOptions())

	var wg sync.WaitGroup
	var ok, rejected atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.WithExclusiveItem(context.Background(), item.ID, contribute(100), nil)
			switch model.KindOf(err) {
			case model.KindUnknown:
				ok.Add(1)
			case model.KindPolicyRejected:
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	final := ledger.get(item.ID)
	assert.Equal(t, int32(10), ok.Load())
	assert.Equal(t, int32(40), rejected.Load())
	assert.Equal(t, int64(1000), final.TotalContributed())
	assert.Equal(t, 0, g.locks.size())
}

func TestConcurrentReserveHasOneWinner(t *testing.T) {
	item := testItem(0)
	ledger := newMemLedger(item)
	g := New(ledger, fastOptions())

	var wg sync.WaitGroup
	var ok atomic.Int32
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.WithExclusiveItem(context.Background(), item.ID, reserve, nil); err != nil {
				errs <- err
				return
			}
			ok.Add(1)
		}()
	}
	wg.Wait()
	close(errs)

	assert.Equal(t, int32(1), ok.Load())
	for err := range errs {
		assert.Equal(t, model.KindInvalidState, model.KindOf(err))
		assert.EqualError(t, err, "Item already reserved")
	}
	assert.Len(t, ledger.get(item.ID).Reservations, 1)
}

func TestRejectedOperationWritesNothing(t *testing.T) {
	item := testItem(1000)
	ledger := newMemLedger(item)
	g := New(ledger, fastOptions())

	called := false
	_, err := g.WithExclusiveItem(context.Background(), item.ID, contribute(5000), func(Outcome) { called = true })

	require.Error(t, err)
	var domainErr *model.Error
	require.ErrorAs(t, err, &domainErr)
	require.NotNil(t, domainErr.Remaining)
	assert.Equal(t, int64(1000), *domainErr.Remaining)
	assert.False(t, called)
	assert.Equal(t, int32(0), ledger.applies.Load())
	assert.Equal(t, int32(0), ledger.commits.Load())
}

func TestOutcomeIsPostCommitSnapshot(t *testing.T) {
	item := testItem(1000)
	ledger := newMemLedger(item)
	g := New(ledger, fastOptions())

	var seen Outcome
	out, err := g.WithExclusiveItem(context.Background(), item.ID, contribute(400), func(o Outcome) { seen = o })
	require.NoError(t, err)

	assert.Equal(t, model.EventContributionAdded, out.Event)
	assert.Equal(t, int64(400), out.Item.TotalContributed())
	assert.Same(t, out.Item, seen.Item)
}

func TestMissingItem(t *testing.T) {
	ledger := newMemLedger()
	g := New(ledger, fastOptions())

	_, err := g.WithExclusiveItem(context.Background(), uuid.Must(uuid.NewV7()), reserve, nil)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
	assert.Equal(t, int32(1), ledger.begins.Load(), "not found is not retried")
}

func TestRetriesTransientFailureBeforeWrite(t *testing.T) {
	item := testItem(1000)
	ledger := newMemLedger(item)
	ledger.failBegin = func(n int32) error {
		if n == 1 {
			return errStoreDown
		}
		return nil
	}
	g := New(ledger, fastOptions())

	commits := 0
	_, err := g.WithExclusiveItem(context.Background(), item.ID, contribute(100), func(Outcome) { commits++ })
	require.NoError(t, err)

	assert.Equal(t, int32(2), ledger.begins.Load())
	assert.Equal(t, 1, commits)
	assert.Equal(t, int64(100), ledger.get(item.ID).TotalContributed())
}

func TestGivesUpAfterRetries(t *testing.T) {
	item := testItem(1000)
	ledger := newMemLedger(item)
	ledger.failBegin = func(int32) error { return errStoreDown }
	g := New(ledger, fastOptions())

	_, err := g.WithExclusiveItem(context.Background(), item.ID, contribute(100), nil)
	assert.True(t, model.IsTransient(err))
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, int32(3), ledger.begins.Load())
}

func TestNoRetryAfterWrite(t *testing.T) {
	tests := []struct {
		name  string
		setup func(l *memLedger)
	}{
		{"apply fails", func(l *memLedger) {
			l.failApply = func(int32) error { return errStoreDown }
		}},
		{"commit fails", func(l *memLedger) {
			l.failCommit = func(int32) error { return errStoreDown }
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := testItem(1000)
			ledger := newMemLedger(item)
			tt.setup(ledger)
			g := New(ledger, fastOptions())

			called := false
			_, err := g.WithExclusiveItem(context.Background(), item.ID, contribute(100), func(Outcome) { called = true })

			assert.True(t, model.IsTransient(err))
			assert.False(t, called)
			assert.Equal(t, int32(1), ledger.begins.Load())
			assert.Equal(t, int64(0), ledger.get(item.ID).TotalContributed())
		})
	}
}

func TestLockTimeout(t *testing.T) {
	item := testItem(1000)
	ledger := newMemLedger(item)
	g := New(ledger, Options{LockTimeout: 20 * time.Millisecond, RetryBackoff: time.Millisecond})

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.WithExclusiveItem(context.Background(), item.ID, func(s *model.ItemState) (*model.Mutation, error) {
			close(entered)
			<-release
			return nil, model.InvalidState("stop")
		}, nil)
	}()
	<-entered

	_, err := g.WithExclusiveItem(context.Background(), item.ID, contribute(100), nil)
	assert.True(t, model.IsTransient(err))
	assert.ErrorIs(t, err, errLockTimeout)

	close(release)
	<-done
	assert.Equal(t, 0, g.locks.size())
}

// stalledLedger never answers Begin until the transaction context ends.
type stalledLedger struct {
	begins atomic.Int32
}

func (l *stalledLedger) Begin(ctx context.Context) (LedgerTx, error) {
	l.begins.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStalledStoreIsBounded(t *testing.T) {
	ledger := &stalledLedger{}
	g := New(ledger, Options{LockTimeout: 100 * time.Millisecond, Retries: 1, RetryBackoff: time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	_, err := g.WithExclusiveItem(ctx, uuid.Must(uuid.NewV7()), contribute(100), nil)
	elapsed := time.Since(start)

	assert.True(t, model.IsTransient(err))
	assert.EqualError(t, err, "item is busy, try again: beginning ledger transaction: context deadline exceeded")
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, int32(2), ledger.begins.Load())
	assert.NoError(t, ctx.Err())
	assert.Equal(t, 0, g.locks.size())
}

func TestContextCanceledWhileWaiting(t *testing.T) {
	item := testItem(1000)
	ledger := newMemLedger(item)
	g := New(ledger, fastOptions())

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.WithExclusiveItem(context.Background(), item.ID, func(s *model.ItemState) (*model.Mutation, error) {
			close(entered)
			<-release
			return nil, model.InvalidState("stop")
		}, nil)
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.WithExclusiveItem(ctx, item.ID, contribute(100), nil)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	<-done
}

func TestDifferentItemsDoNotBlock(t *testing.T) {
	a, b := testItem(1000), testItem(1000)
	ledger := newMemLedger(a, b)
	g := New(ledger, Options{LockTimeout: 50 * time.Millisecond})

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.WithExclusiveItem(context.Background(), a.ID, func(s *model.ItemState) (*model.Mutation, error) {
			close(entered)
			<-release
			return nil, model.InvalidState("stop")
		}, nil)
	}()
	<-entered

	_, err := g.WithExclusiveItem(context.Background(), b.ID, contribute(100), nil)
	assert.NoError(t, err)

	close(release)
	<-done
}

func TestBreakerOpensOnRepeatedStoreFailures(t *testing.T) {
	item := testItem(1000)
	ledger := newMemLedger(item)
	ledger.failBegin = func(int32) error { return errStoreDown }
	g := New(ledger, Options{Retries: 0, RetryBackoff: time.Millisecond})

	for i := 0; i < 5; i++ {
		_, err := g.WithExclusiveItem(context.Background(), item.ID, contribute(100), nil)
		require.True(t, model.IsTransient(err))
	}
	before := ledger.begins.Load()

	_, err := g.WithExclusiveItem(context.Background(), item.ID, contribute(100), nil)
	assert.True(t, model.IsTransient(err))
	assert.EqualError(t, err, "store temporarily unavailable: circuit breaker is open")
	assert.Equal(t, before, ledger.begins.Load(), "open breaker does not reach the store")
}

func TestDomainRejectionsDoNotTripBreaker(t *testing.T) {
	item := testItem(0)
	ledger := newMemLedger(item)
	g := New(ledger, Options{Retries: 0})

	_, err := g.WithExclusiveItem(context.Background(), item.ID, reserve, nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := g.WithExclusiveItem(context.Background(), item.ID, reserve, nil)
		require.Equal(t, model.KindInvalidState, model.KindOf(err))
	}

	assert.Equal(t, "closed", g.breaker.State().String())
}
