package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/erazemk/darila/internal/db"
	"github.com/erazemk/darila/internal/fanout"
	"github.com/erazemk/darila/internal/model"
	"github.com/erazemk/darila/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 512
)

// LiveHandler upgrades viewers to websockets and streams a wishlist's
// events to them. Viewers only receive; anything they send is discarded.
type LiveHandler struct {
	DB        *db.DB
	Hub       *fanout.Hub
	JWTSecret string
	Upgrader  websocket.Upgrader
}

// Public handles GET /ws/wishlists/public/{token}.
func (h *LiveHandler) Public(w http.ResponseWriter, r *http.Request) {
	wl, err := store.GetWishlistByToken(r.Context(), h.DB, r.PathValue("token"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get wishlist")
		return
	}
	if wl == nil || !wl.IsPublic {
		writeError(w, model.NotFound("Wishlist not found or not public"))
		return
	}
	h.stream(w, r, wl)
}

// Owner handles GET /ws/wishlists/{id}?token=JWT. Browsers cannot set
// headers on a websocket handshake, so the JWT travels in the query.
func (h *LiveHandler) Owner(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id", "invalid wishlist id")
	if !ok {
		return
	}

	claims, err := authenticate(r.Context(), h.DB, h.JWTSecret, r.URL.Query().Get("token"))
	if err != nil {
		jsonError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	wl, err := store.GetWishlist(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get wishlist")
		return
	}
	if wl == nil || wl.OwnerID != claims.UserID {
		writeError(w, model.NotFound("Wishlist not found"))
		return
	}
	h.stream(w, r, wl)
}

func (h *LiveHandler) stream(w http.ResponseWriter, r *http.Request, wl *model.Wishlist) {
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		slog.Debug("websocket upgrade failed", slog.Any("error", err))
		return
	}

	sub := h.Hub.Subscribe(wl.ID)
	slog.Debug("viewer connected", slog.String("wishlist_id", wl.ID.String()))

	go h.read(conn, sub)
	h.write(conn, sub)
}

// read drains the connection until it fails, then ends the subscription.
func (h *LiveHandler) read(conn *websocket.Conn, sub *fanout.Subscription) {
	defer h.Hub.Unsubscribe(sub)

	conn.SetReadLimit(maxInboundSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// write forwards events and keeps the connection alive with pings. It
// returns once the subscription is closed or a write fails.
func (h *LiveHandler) write(conn *websocket.Conn, sub *fanout.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.Hub.Unsubscribe(sub)
		conn.Close()
		slog.Debug("viewer disconnected", slog.String("wishlist_id", sub.WishlistID.String()))
	}()

	for {
		select {
		case payload, ok := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Dropped for falling behind, or the reader already quit.
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "reconnect to resync"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
