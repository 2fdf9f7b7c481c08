package handlers

import (
	"encoding/json"
	"net/http"

	"shipmode-access/internal/common/errors"
	"shipmode-access/internal/common/logging"
)

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", err)
	}
}

// writeError converts an error into the stable JSON error contract. Callers
// see a generic message for authentication, upstream, and internal failures;
// the specifics stay in the server-side log.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := err.(*errors.AppError)
	if !ok {
		appErr = errors.InternalError("unexpected error", err)
	}

	status := appErr.HTTPStatus()
	message := appErr.Message

	switch appErr.Type {
	case errors.ErrTypeAuth:
		message = "invalid signature"
	case errors.ErrTypeUpstream, errors.ErrTypeConnection:
		status = http.StatusBadGateway
		message = "upstream service unavailable"
	case errors.ErrTypeTimeout:
		message = "upstream request timed out"
	case errors.ErrTypeInternal, errors.ErrTypeConfig:
		message = "internal server error"
	}

	if status >= 500 {
		h.logger.Error("Request failed", appErr,
			logging.Field{Key: "path", Value: r.URL.Path},
		)
	}

	h.writeJSON(w, status, map[string]string{"error": message})
}
