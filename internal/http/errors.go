// Package httpapi exposes the HTTP API layer of the service.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/fairyhunter13/festival-restock-service/internal/obs"
	"github.com/fairyhunter13/festival-restock-service/internal/queue"
	"github.com/fairyhunter13/festival-restock-service/internal/store"
)

// jsonError represents a JSON error payload.
type jsonError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteJSONError writes a JSON error payload with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonError{Error: message, Details: details})
}

// writeRequestError writes a body decoding failure, or a 400 for anything else.
func writeRequestError(w http.ResponseWriter, err error) {
	var re *requestError
	if errors.As(err, &re) {
		WriteJSONError(w, re.status, re.code, re.err.Error())
		return
	}
	WriteJSONError(w, http.StatusBadRequest, "invalid_body", err.Error())
}

// writeStoreError maps store and writer failures onto HTTP responses.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var re *requestError
	if errors.As(err, &re) {
		writeRequestError(w, err)
		return
	}
	status, code := http.StatusInternalServerError, "store_error"
	switch {
	case errors.Is(err, store.ErrNoRequests), errors.Is(err, store.ErrUnknownID):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrInvalidIndex):
		status, code = http.StatusBadRequest, "invalid_index"
	case errors.Is(err, store.ErrInvalidData):
		status, code = http.StatusInternalServerError, "invalid_data"
	case errors.Is(err, queue.ErrShuttingDown):
		status, code = http.StatusServiceUnavailable, "shutting_down"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusServiceUnavailable, "request_cancelled"
	}
	obs.Logger.Warn("restock_request_failed",
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	)
	WriteJSONError(w, status, code, err.Error())
}
