package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/darila/internal/broadcast"
	"github.com/erazemk/darila/internal/db"
	"github.com/erazemk/darila/internal/fanout"
	"github.com/erazemk/darila/internal/guard"
	"github.com/erazemk/darila/internal/limiter"
	"github.com/erazemk/darila/internal/model"
	"github.com/erazemk/darila/internal/store"
)

type env struct {
	db       *db.DB
	hub      *fanout.Hub
	items    *ItemGeneric
	owner    *model.User
	visitor  *model.User
	wishlist *model.Wishlist
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	database := db.NewTestDB(t)

	owner, err := store.CreateUser(ctx, database, "owner@example.com", "Owner", "hash")
	require.NoError(t, err)
	visitor, err := store.CreateUser(ctx, database, "guest@example.com", "Guest", "hash")
	require.NoError(t, err)
	w, err := store.CreateWishlist(ctx, database, owner.ID, "Birthday", "", nil, true)
	require.NoError(t, err)

	hub := fanout.NewHub(16)
	return &env{
		db:  database,
		hub: hub,
		items: &ItemGeneric{
			DB: database,
			Coordinator: &broadcast.Coordinator{
				Guard:     guard.New(&store.Ledger{DB: database}, guard.Options{}),
				Publisher: hub,
			},
		},
		owner:    owner,
		visitor:  visitor,
		wishlist: w,
	}
}

func (e *env) create(t *testing.T, price *int64) *model.ItemState {
	t.Helper()
	state, err := e.items.Create(context.Background(), e.owner.ID, e.wishlist.ID, NewItem{Title: "Bike", PriceCents: price})
	require.NoError(t, err)
	return state
}

func (e *env) guest() Actor {
	return Actor{UserID: &e.visitor.ID, Key: "user:" + e.visitor.ID.String()}
}

func cents(v int64) *int64 { return &v }

func nextEvent(t *testing.T, sub *fanout.Subscription) broadcast.Message {
	t.Helper()
	select {
	case payload := <-sub.C:
		var m broadcast.Message
		require.NoError(t, json.Unmarshal(payload, &m))
		return m
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return broadcast.Message{}
	}
}

func TestCreateAnnouncesItem(t *testing.T) {
	e := newEnv(t)
	sub := e.hub.Subscribe(e.wishlist.ID)
	defer e.hub.Unsubscribe(sub)

	empty := ""
	state, err := e.items.Create(context.Background(), e.owner.ID, e.wishlist.ID, NewItem{
		Title:    "  Bike  ",
		URL:      &empty,
		Currency: "eur",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bike", state.Title)
	assert.Equal(t, "EUR", state.Currency)
	assert.Nil(t, state.URL)

	m := nextEvent(t, sub)
	assert.Equal(t, model.EventItemCreated, m.Event)
	assert.Equal(t, state.ID, m.ItemID)
}

func TestCreateRejects(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.items.Create(ctx, e.visitor.ID, e.wishlist.ID, NewItem{Title: "Mine now"})
	assert.Equal(t, model.KindNotFound, model.KindOf(err))

	_, err = e.items.Create(ctx, e.owner.ID, e.wishlist.ID, NewItem{Title: " "})
	assert.Equal(t, model.KindInvalidState, model.KindOf(err))

	_, err = e.items.Create(ctx, e.owner.ID, e.wishlist.ID, NewItem{Title: "Bike", PriceCents: cents(-1)})
	assert.Equal(t, model.KindInvalidState, model.KindOf(err))

	_, err = e.items.Create(ctx, e.owner.ID, e.wishlist.ID, NewItem{Title: "Bike", Currency: "XYZW"})
	assert.Equal(t, model.KindInvalidState, model.KindOf(err))
}

func TestUpdateOwnerOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	item := e.create(t, nil)

	title := "Road bike"
	_, err := e.items.Update(ctx, e.visitor.ID, e.wishlist.ID, item.ID, &model.ItemPatch{Title: &title})
	assert.Equal(t, model.KindNotFound, model.KindOf(err))

	_, err = e.items.Update(ctx, e.owner.ID, uuid.Must(uuid.NewV7()), item.ID, &model.ItemPatch{Title: &title})
	assert.Equal(t, model.KindNotFound, model.KindOf(err))

	state, err := e.items.Update(ctx, e.owner.ID, e.wishlist.ID, item.ID, &model.ItemPatch{Title: &title, PriceCents: cents(5000)})
	require.NoError(t, err)
	assert.Equal(t, "Road bike", state.Title)
	assert.Equal(t, int64(5000), *state.PriceCents)
}

func TestUpdateKeepsPriceAboveContributions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	item := e.create(t, cents(10000))

	_, err := e.items.Contribute(ctx, e.wishlist.AccessToken, item.ID, e.guest(), "Guest", 8000)
	require.NoError(t, err)
	sub := e.hub.Subscribe(e.wishlist.ID)
	defer e.hub.Unsubscribe(sub)

	_, err = e.items.Update(ctx, e.owner.ID, e.wishlist.ID, item.ID, &model.ItemPatch{PriceCents: cents(5000)})
	var domainErr *model.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, model.KindPolicyRejected, domainErr.Kind)
	require.NotNil(t, domainErr.Remaining)
	assert.Equal(t, int64(8000), *domainErr.Remaining)

	state, err := e.items.Update(ctx, e.owner.ID, e.wishlist.ID, item.ID, &model.ItemPatch{PriceCents: cents(8000)})
	require.NoError(t, err)
	assert.Equal(t, int64(8000), *state.PriceCents)
	assert.Equal(t, int64(8000), state.TotalContributed())
	assert.Equal(t, model.EventItemUpdated, nextEvent(t, sub).Event, "only the accepted update is announced")
}

func TestUpdateIgnoresStatus(t *testing.T) {
	e := newEnv(t)
	item := e.create(t, nil)

	archived := model.ItemStatusArchived
	state, err := e.items.Update(context.Background(), e.owner.ID, e.wishlist.ID, item.ID, &model.ItemPatch{Status: &archived})
	require.NoError(t, err)
	assert.Equal(t, model.ItemStatusActive, state.Status)
}

func TestArchiveCycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	item := e.create(t, nil)
	sub := e.hub.Subscribe(e.wishlist.ID)
	defer e.hub.Unsubscribe(sub)

	_, err := e.items.Unarchive(ctx, e.owner.ID, e.wishlist.ID, item.ID)
	assert.EqualError(t, err, "Item is not archived")

	state, err := e.items.Archive(ctx, e.owner.ID, e.wishlist.ID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ItemStatusArchived, state.Status)
	assert.Equal(t, model.EventItemUpdated, nextEvent(t, sub).Event)

	// Archiving again is accepted and announced again.
	state, err = e.items.Archive(ctx, e.owner.ID, e.wishlist.ID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ItemStatusArchived, state.Status)
	assert.Equal(t, model.EventItemUpdated, nextEvent(t, sub).Event)

	state, err = e.items.Unarchive(ctx, e.owner.ID, e.wishlist.ID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ItemStatusActive, state.Status)
}

func TestSetImage(t *testing.T) {
	e := newEnv(t)
	item := e.create(t, nil)

	state, err := e.items.SetImage(context.Background(), e.owner.ID, e.wishlist.ID, item.ID,
		&model.Image{Data: []byte{0xff, 0xd8}, MIME: "image/jpeg"})
	require.NoError(t, err)
	require.NotNil(t, state.ImageURL)
	assert.Equal(t, ImagePath(item.ID), *state.ImageURL)

	data, mime, err := store.GetItemImage(context.Background(), e.db, item.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8}, data)
	assert.Equal(t, "image/jpeg", mime)
}

func TestReserveThroughToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	item := e.create(t, nil)
	token := e.wishlist.AccessToken

	_, err := e.items.Reserve(ctx, token, item.ID, Actor{UserID: &e.owner.ID}, "Me")
	assert.Equal(t, model.KindForbidden, model.KindOf(err))

	_, err = e.items.Reserve(ctx, "wrong-token", item.ID, e.guest(), "Guest")
	assert.Equal(t, model.KindNotFound, model.KindOf(err))

	_, err = e.items.Reserve(ctx, token, item.ID, e.guest(), "   ")
	assert.Equal(t, model.KindInvalidState, model.KindOf(err))

	state, err := e.items.Reserve(ctx, token, item.ID, Actor{}, "Anonymous aunt")
	require.NoError(t, err)
	assert.True(t, state.Reserved)
	assert.Nil(t, state.Reservations[0].ReserverID)

	_, err = e.items.Reserve(ctx, token, item.ID, e.guest(), "Guest")
	assert.EqualError(t, err, "Item already reserved")

	state, err = e.items.Unreserve(ctx, token, item.ID, e.guest())
	require.NoError(t, err)
	assert.False(t, state.Reserved)

	_, err = e.items.Unreserve(ctx, token, item.ID, e.guest())
	assert.EqualError(t, err, "Item is not reserved")

	state, err = e.items.Reserve(ctx, token, item.ID, e.guest(), "Guest")
	require.NoError(t, err)
	assert.Equal(t, e.visitor.ID, *state.Reservations[0].ReserverID)
}

func TestItemFromOtherWishlistIsHidden(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	item := e.create(t, cents(1000))

	other, err := store.CreateWishlist(ctx, e.db, e.owner.ID, "Other", "", nil, true)
	require.NoError(t, err)

	_, err = e.items.Reserve(ctx, other.AccessToken, item.ID, e.guest(), "Guest")
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
	_, err = e.items.Contribute(ctx, other.AccessToken, item.ID, e.guest(), "Guest", 100)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
}

func TestPrivateWishlistIsHidden(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	item := e.create(t, cents(1000))

	e.wishlist.IsPublic = false
	require.NoError(t, store.UpdateWishlist(ctx, e.db, e.wishlist))

	_, err := e.items.Contribute(ctx, e.wishlist.AccessToken, item.ID, e.guest(), "Guest", 100)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
	assert.EqualError(t, err, "Wishlist not found or not public")
}

func TestContribute(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	item := e.create(t, cents(10000))
	token := e.wishlist.AccessToken

	_, err := e.items.Contribute(ctx, token, item.ID, e.guest(), "Guest", 0)
	assert.Equal(t, model.KindInvalidState, model.KindOf(err))

	_, err = e.items.Contribute(ctx, token, item.ID, Actor{UserID: &e.owner.ID}, "Me", 100)
	assert.EqualError(t, err, "Owner cannot contribute to own items")

	state, err := e.items.Contribute(ctx, token, item.ID, e.guest(), "Guest", 4000)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), state.TotalContributed())

	_, err = e.items.Contribute(ctx, token, item.ID, e.guest(), "Guest", 7000)
	var domainErr *model.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, model.KindPolicyRejected, domainErr.Kind)
	assert.Equal(t, int64(6000), *domainErr.Remaining)
	assert.Equal(t, "Maximum allowed contribution is 6000 cents (USD 60.00)", domainErr.Message)
}

func TestLimitingCountsOnlySuccess(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	item := e.create(t, cents(10000))
	token := e.wishlist.AccessToken

	mr := miniredis.RunT(t)
	client, closeFn := limiter.NewRedis(mr.Addr(), "", "")
	defer closeFn()

	items := &ItemLimiting{
		Items:   e.items,
		Limiter: &limiter.Limiter{Redis: client, Limit: 2, Window: time.Minute},
	}
	guest := e.guest()

	_, err := items.Contribute(ctx, token, item.ID, guest, "Guest", 1000000)
	require.Equal(t, model.KindPolicyRejected, model.KindOf(err))

	_, err = items.Contribute(ctx, token, item.ID, guest, "Guest", 100)
	require.NoError(t, err)
	_, err = items.Reserve(ctx, token, item.ID, guest, "Guest")
	require.NoError(t, err)

	_, err = items.Unreserve(ctx, token, item.ID, guest)
	assert.ErrorIs(t, err, ErrLimitExceeded)

	_, err = items.Unreserve(ctx, token, item.ID, Actor{Key: "ip:192.0.2.1"})
	assert.NoError(t, err, "other visitors keep their own allowance")
}

func TestLimitingWhenRedisIsDown(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	item := e.create(t, nil)
	token := e.wishlist.AccessToken

	mr := miniredis.RunT(t)
	client, closeFn := limiter.NewRedis(mr.Addr(), "", "")
	defer closeFn()
	mr.Close()

	lim := &limiter.Limiter{Redis: client, Limit: 2}

	closed := &ItemLimiting{Items: e.items, Limiter: lim}
	_, err := closed.Reserve(ctx, token, item.ID, e.guest(), "Guest")
	assert.True(t, model.IsTransient(err))

	open := &ItemLimiting{Items: e.items, Limiter: lim, FailOpen: true}
	_, err = open.Reserve(ctx, token, item.ID, e.guest(), "Guest")
	assert.NoError(t, err)
}

func TestChain(t *testing.T) {
	e := newEnv(t)
	items := Chain(e.items, nil, false)

	state, err := items.Create(context.Background(), e.owner.ID, e.wishlist.ID, NewItem{Title: "Kite"})
	require.NoError(t, err)
	assert.Equal(t, "Kite", state.Title)

	_, isLogging := items.(*ItemLogging)
	assert.True(t, isLogging)
}
