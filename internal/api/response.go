package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/university-cli/internal/store"
)

const maxBodyBytes = 1 << 20

// writeJSON writes data as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

// errorResponse writes a JSON error body of the form {"error", "message"}.
func errorResponse(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}

// storeError maps store sentinels to HTTP statuses.
func storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		errorResponse(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, store.ErrDuplicate):
		errorResponse(w, http.StatusConflict, "duplicate", "a record with the same key already exists")
	default:
		zap.L().Error("api: store failure",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		errorResponse(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// decodeBody decodes a bounded JSON request body into dst, rejecting unknown
// fields and trailing data.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid_body", err.Error())
		return false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		errorResponse(w, http.StatusBadRequest, "invalid_body", "request body must contain a single JSON object")
		return false
	}
	return true
}
