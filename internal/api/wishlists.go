package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/darila/internal/broadcast"
	"github.com/erazemk/darila/internal/db"
	"github.com/erazemk/darila/internal/model"
	"github.com/erazemk/darila/internal/store"
)

// WishlistsHandler handles wishlist endpoints.
type WishlistsHandler struct {
	DB *db.DB
}

type createWishlistRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	EventDate   *time.Time `json:"event_date"`
	IsPublic    *bool      `json:"is_public"`
}

type updateWishlistRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	EventDate   *time.Time `json:"event_date"`
	IsPublic    *bool      `json:"is_public"`
}

type wishlistResponse struct {
	*model.Wishlist
	IsOwner bool                 `json:"is_owner"`
	Items   []broadcast.ItemView `json:"items"`
}

// Create handles POST /api/wishlists.
func (h *WishlistsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req createWishlistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	title, err := model.ValidateWishlistTitle(req.Title)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	wl, err := store.CreateWishlist(r.Context(), h.DB, claims.UserID, title, strings.TrimSpace(req.Description), req.EventDate, isPublic)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to create wishlist")
		return
	}

	jsonResponse(w, http.StatusCreated, wishlistResponse{Wishlist: wl, IsOwner: true, Items: []broadcast.ItemView{}})
}

// List handles GET /api/wishlists.
func (h *WishlistsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	wishlists, err := store.ListWishlists(r.Context(), h.DB, claims.UserID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list wishlists")
		return
	}
	if wishlists == nil {
		wishlists = []model.Wishlist{}
	}
	jsonResponse(w, http.StatusOK, wishlists)
}

// Get handles GET /api/wishlists/{id}.
func (h *WishlistsHandler) Get(w http.ResponseWriter, r *http.Request) {
	wl, ok := h.owned(w, r)
	if !ok {
		return
	}
	h.respondWithItems(w, r, wl, true)
}

// Update handles PATCH /api/wishlists/{id}.
func (h *WishlistsHandler) Update(w http.ResponseWriter, r *http.Request) {
	wl, ok := h.owned(w, r)
	if !ok {
		return
	}

	var req updateWishlistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title != nil {
		title, err := model.ValidateWishlistTitle(*req.Title)
		if err != nil {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		wl.Title = title
	}
	if req.Description != nil {
		wl.Description = strings.TrimSpace(*req.Description)
	}
	if req.EventDate != nil {
		wl.EventDate = req.EventDate
	}
	if req.IsPublic != nil {
		wl.IsPublic = *req.IsPublic
	}

	if err := store.UpdateWishlist(r.Context(), h.DB, wl); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to update wishlist")
		return
	}

	h.respondWithItems(w, r, wl, true)
}

// Delete handles DELETE /api/wishlists/{id}.
func (h *WishlistsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	wl, ok := h.owned(w, r)
	if !ok {
		return
	}

	if err := store.DeleteWishlist(r.Context(), h.DB, wl.ID); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to delete wishlist")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Public handles GET /api/wishlists/public/{token}. An owner opening their
// own link gets the owner form, which hides who reserved or contributed.
func (h *WishlistsHandler) Public(w http.ResponseWriter, r *http.Request) {
	wl, err := store.GetWishlistByToken(r.Context(), h.DB, r.PathValue("token"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get wishlist")
		return
	}
	if wl == nil || !wl.IsPublic {
		writeError(w, model.NotFound("Wishlist not found or not public"))
		return
	}

	claims := GetClaims(r.Context())
	isOwner := claims != nil && claims.UserID == wl.OwnerID
	h.respondWithItems(w, r, wl, isOwner)
}

func (h *WishlistsHandler) respondWithItems(w http.ResponseWriter, r *http.Request, wl *model.Wishlist, isOwner bool) {
	states, err := store.ListItemStates(r.Context(), h.DB, wl.ID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	wl.ItemCount = len(states)

	jsonResponse(w, http.StatusOK, wishlistResponse{
		Wishlist: wl,
		IsOwner:  isOwner,
		Items:    broadcast.ProjectAll(states, isOwner),
	})
}

// owned loads the wishlist named in the path if the caller owns it. Other
// users' wishlists are reported as missing.
func (h *WishlistsHandler) owned(w http.ResponseWriter, r *http.Request) (*model.Wishlist, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid wishlist id")
		return nil, false
	}

	wl, err := store.GetWishlist(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get wishlist")
		return nil, false
	}
	if wl == nil || wl.OwnerID != GetClaims(r.Context()).UserID {
		writeError(w, model.NotFound("Wishlist not found"))
		return nil, false
	}
	return wl, true
}
