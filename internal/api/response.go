package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/darila/internal/model"
	"github.com/erazemk/darila/internal/service"
)

// retryAfterSeconds is sent with 503 responses for transient failures.
const retryAfterSeconds = 1

// statusClientClosedRequest reports a caller that went away before the
// operation finished.
const statusClientClosedRequest = 499

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error          string `json:"error"`
	Kind           string `json:"kind,omitempty"`
	RemainingCents *int64 `json:"remaining_cents,omitempty"`
}

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", slog.Any("error", err))
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, errorResponse{Error: message})
}

// writeError maps a service error to its HTTP status.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrLimitExceeded) {
		jsonError(w, http.StatusTooManyRequests, err.Error())
		return
	}

	var e *model.Error
	switch {
	case errors.As(err, &e):
	case errors.Is(err, context.Canceled):
		slog.Debug("request canceled", slog.Any("error", err))
		jsonError(w, statusClientClosedRequest, "request canceled")
		return
	case errors.Is(err, context.DeadlineExceeded):
		e = model.Transient("request timed out, try again", err)
	default:
		slog.Error("unclassified error", slog.Any("error", err))
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := errorResponse{Error: e.Message, Kind: e.Kind.String()}
	status := http.StatusInternalServerError
	switch e.Kind {
	case model.KindNotFound:
		status = http.StatusNotFound
	case model.KindForbidden:
		status = http.StatusForbidden
	case model.KindInvalidState:
		status = http.StatusBadRequest
	case model.KindPolicyRejected:
		status = http.StatusBadRequest
		resp.RemainingCents = e.Remaining
	case model.KindTransient:
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	default:
		resp = errorResponse{Error: "internal error"}
	}
	jsonResponse(w, status, resp)
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}
