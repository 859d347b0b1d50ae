package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/darila/internal/scrape"
)

// ScrapeHandler fetches product metadata for the item form.
type ScrapeHandler struct {
	Scraper *scrape.Scraper
}

type scrapeRequest struct {
	URL string `json:"url"`
}

// Scrape handles POST /api/scrape.
func (h *ScrapeHandler) Scrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.Scraper.Scrape(r.Context(), req.URL)
	switch {
	case errors.Is(err, scrape.ErrInvalidURL):
		jsonError(w, http.StatusBadRequest, "url must be an absolute http or https address")
		return
	case errors.Is(err, scrape.ErrFetch):
		slog.Info("scrape failed", slog.String("url", req.URL), slog.Any("error", err))
		jsonError(w, http.StatusBadRequest, "Could not fetch URL")
		return
	case err != nil:
		jsonError(w, http.StatusInternalServerError, "failed to parse page")
		return
	}

	jsonResponse(w, http.StatusOK, result)
}
