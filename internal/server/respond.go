package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/nmoreira/spotiproxy/internal/services"
	"github.com/nmoreira/spotiproxy/internal/shared"
)

// errorResponse is the structured error payload returned for every failure.
type errorResponse struct {
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondRaw writes a payload that is already JSON, e.g. a Spotify response passed through verbatim.
func respondRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// respondError translates the error taxonomy into an HTTP status and structured payload.
//
// Validation errors keep their message; upstream failures get a generic
// message with Spotify's error payload attached as details.
func respondError(w http.ResponseWriter, logger *log.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shared.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, shared.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, shared.ErrPayloadTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, shared.ErrUnsupportedMediaType):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, shared.ErrTooManyRequests):
		status = http.StatusTooManyRequests
	}

	resp := errorResponse{Error: err.Error()}

	var upstream *services.UpstreamError
	if errors.As(err, &upstream) {
		resp.Error = shared.ErrUpstream.Error()
		if json.Valid(upstream.Body) {
			resp.Details = upstream.Body
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request rejected", "status", status, "error", err)
	}

	respondJSON(w, status, resp)
}
