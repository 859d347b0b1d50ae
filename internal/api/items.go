package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/erazemk/darila/internal/broadcast"
	"github.com/erazemk/darila/internal/db"
	"github.com/erazemk/darila/internal/imaging"
	"github.com/erazemk/darila/internal/model"
	"github.com/erazemk/darila/internal/service"
	"github.com/erazemk/darila/internal/store"
)

// ItemsHandler handles item endpoints. Owner endpoints answer with the
// owner projection, visitor endpoints with the visitor projection.
type ItemsHandler struct {
	DB    *db.DB
	Items service.Items
}

type createItemRequest struct {
	Title      string  `json:"title"`
	URL        *string `json:"url"`
	ImageURL   *string `json:"image_url"`
	PriceCents *int64  `json:"price_cents"`
	Currency   string  `json:"currency"`
}

type updateItemRequest struct {
	Title      *string `json:"title"`
	URL        *string `json:"url"`
	ImageURL   *string `json:"image_url"`
	PriceCents *int64  `json:"price_cents"`
	Currency   *string `json:"currency"`
}

type reserveRequest struct {
	DisplayName string `json:"display_name"`
}

type contributeRequest struct {
	DisplayName string `json:"display_name"`
	AmountCents int64  `json:"amount_cents"`
}

// Create handles POST /api/wishlists/{id}/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	wishlistID, ok := pathUUID(w, r, "id", "invalid wishlist id")
	if !ok {
		return
	}

	var req createItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := h.Items.Create(r.Context(), GetClaims(r.Context()).UserID, wishlistID, service.NewItem{
		Title:      req.Title,
		URL:        req.URL,
		ImageURL:   req.ImageURL,
		PriceCents: req.PriceCents,
		Currency:   req.Currency,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, broadcast.Project(state, true))
}

// Update handles PATCH /api/wishlists/{id}/items/{item_id}.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	wishlistID, itemID, ok := ownerPath(w, r)
	if !ok {
		return
	}

	var req updateItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := h.Items.Update(r.Context(), GetClaims(r.Context()).UserID, wishlistID, itemID, &model.ItemPatch{
		Title:      req.Title,
		URL:        req.URL,
		ImageURL:   req.ImageURL,
		PriceCents: req.PriceCents,
		Currency:   req.Currency,
	})
	h.respond(w, state, err, true)
}

// Archive handles POST /api/wishlists/{id}/items/{item_id}/archive.
func (h *ItemsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	wishlistID, itemID, ok := ownerPath(w, r)
	if !ok {
		return
	}
	state, err := h.Items.Archive(r.Context(), GetClaims(r.Context()).UserID, wishlistID, itemID)
	h.respond(w, state, err, true)
}

// Unarchive handles POST /api/wishlists/{id}/items/{item_id}/unarchive.
func (h *ItemsHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	wishlistID, itemID, ok := ownerPath(w, r)
	if !ok {
		return
	}
	state, err := h.Items.Unarchive(r.Context(), GetClaims(r.Context()).UserID, wishlistID, itemID)
	h.respond(w, state, err, true)
}

// UploadImage handles PUT /api/wishlists/{id}/items/{item_id}/image.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	wishlistID, itemID, ok := ownerPath(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	img, err := imaging.Process(file)
	switch {
	case errors.Is(err, imaging.ErrTooLarge):
		jsonError(w, http.StatusRequestEntityTooLarge, "image must be at most 10 MB")
		return
	case errors.Is(err, imaging.ErrUnsupported):
		jsonError(w, http.StatusBadRequest, "image must be JPEG, PNG, or WebP")
		return
	case err != nil:
		jsonError(w, http.StatusInternalServerError, "failed to process image")
		return
	}

	state, err := h.Items.SetImage(r.Context(), GetClaims(r.Context()).UserID, wishlistID, itemID, img)
	h.respond(w, state, err, true)
}

// GetImage handles GET /api/items/{item_id}/image.
func (h *ItemsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathUUID(w, r, "item_id", "invalid item id")
	if !ok {
		return
	}

	data, mime, err := store.GetItemImage(r.Context(), h.DB, itemID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// Reserve handles POST /api/wishlists/public/{token}/items/{item_id}/reserve.
func (h *ItemsHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathUUID(w, r, "item_id", "invalid item id")
	if !ok {
		return
	}

	var req reserveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := h.Items.Reserve(r.Context(), r.PathValue("token"), itemID, actorFor(r), req.DisplayName)
	h.respond(w, state, err, false)
}

// Unreserve handles POST /api/wishlists/public/{token}/items/{item_id}/unreserve.
func (h *ItemsHandler) Unreserve(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathUUID(w, r, "item_id", "invalid item id")
	if !ok {
		return
	}

	state, err := h.Items.Unreserve(r.Context(), r.PathValue("token"), itemID, actorFor(r))
	h.respond(w, state, err, false)
}

// Contribute handles POST /api/wishlists/public/{token}/items/{item_id}/contribute.
func (h *ItemsHandler) Contribute(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathUUID(w, r, "item_id", "invalid item id")
	if !ok {
		return
	}

	var req contributeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := h.Items.Contribute(r.Context(), r.PathValue("token"), itemID, actorFor(r), req.DisplayName, req.AmountCents)
	h.respond(w, state, err, false)
}

func (h *ItemsHandler) respond(w http.ResponseWriter, state *model.ItemState, err error, isOwner bool) {
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, broadcast.Project(state, isOwner))
}

func ownerPath(w http.ResponseWriter, r *http.Request) (wishlistID, itemID uuid.UUID, ok bool) {
	if wishlistID, ok = pathUUID(w, r, "id", "invalid wishlist id"); !ok {
		return
	}
	itemID, ok = pathUUID(w, r, "item_id", "invalid item id")
	return
}

func pathUUID(w http.ResponseWriter, r *http.Request, name, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		jsonError(w, http.StatusBadRequest, msg)
		return uuid.Nil, false
	}
	return id, true
}
