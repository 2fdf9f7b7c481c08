package handlers

import (
	"net/http"

	"shipmode-access/internal/common/errors"
	"shipmode-access/internal/provision"
	"shipmode-access/internal/signature"
)

// HandleAccessStatus reports the provisioning state of an identifier. The
// signature covers the canonical string "GET:{identifier}" so the query
// cannot be replayed against a different identifier.
func (h *Handlers) HandleAccessStatus(w http.ResponseWriter, r *http.Request) {
	identifier := r.URL.Query().Get("identifier")
	if identifier == "" {
		h.writeError(w, r, errors.ValidationError("identifier is required"))
		return
	}

	canonical := []byte("GET:" + identifier)
	if !h.internalVerifier.Verify(canonical, r.Header.Get(internalSignatureHeader), signature.Simple) {
		h.writeError(w, r, errors.AuthError("request signature verification failed"))
		return
	}

	state, err := h.provisioner.Status(r.Context(), identifier)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if state == provision.StateNotFound {
		status = http.StatusNotFound
	}

	h.writeJSON(w, status, map[string]string{"status": state.String()})
}
