package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"shipmode-access/internal/common/errors"
	"shipmode-access/internal/common/logging"
	"shipmode-access/internal/event"
	"shipmode-access/internal/provision"
	"shipmode-access/internal/signature"
)

// internalSignatureHeader carries the Simple-scheme signature shared between
// first-party services.
const internalSignatureHeader = "X-Shipmode-Signature"

type inviteRequest struct {
	Identifier string `json:"identifier"`
	Permission string `json:"permission"`
}

// HandleInvite provisions access for an authenticated first-party request.
// The body carries the identifier (handle or email) and an optional
// permission level defaulting to read.
func (h *Handlers) HandleInvite(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, r, errors.ValidationError("failed to read request body"))
		return
	}

	if !h.internalVerifier.Verify(body, r.Header.Get(internalSignatureHeader), signature.Simple) {
		h.writeError(w, r, errors.AuthError("request signature verification failed"))
		return
	}

	var req inviteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, r, errors.ValidationError("request body is not valid JSON"))
		return
	}

	if req.Identifier == "" {
		h.writeError(w, r, errors.ValidationError("identifier is required"))
		return
	}

	permission, err := event.ParsePermission(req.Permission)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	outcome, err := h.provisioner.Invite(r.Context(), req.Identifier, permission)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	switch outcome.Kind {
	case provision.OutcomeNotFound:
		h.writeError(w, r, errors.NotFoundError("github account"))

	case provision.OutcomeRejected:
		h.writeError(w, r, errors.UpstreamError("invitation rejected", nil).
			WithContext("detail", outcome.Detail))

	default:
		h.logger.Info("Invite processed",
			logging.Field{Key: "identifier", Value: req.Identifier},
			logging.Field{Key: "invite_status", Value: outcome.Kind.String()},
		)
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"accepted":      true,
			"invite_status": outcome.Kind.String(),
			"handle":        outcome.Handle,
		})
	}
}
