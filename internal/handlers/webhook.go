package handlers

import (
	"io"
	"net/http"

	"shipmode-access/internal/common/errors"
	"shipmode-access/internal/common/logging"
	"shipmode-access/internal/event"
	"shipmode-access/internal/provision"
	"shipmode-access/internal/signature"
)

// stripeSignatureHeader carries the timestamped payment webhook signature.
const stripeSignatureHeader = "Stripe-Signature"

// HandleStripeWebhook processes signed payment events. Unrecognized event
// kinds are acknowledged with 200 and trigger nothing, so the payment
// processor can introduce event types without breaking this endpoint.
func (h *Handlers) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, r, errors.ValidationError("failed to read request body"))
		return
	}

	if !h.stripeVerifier.Verify(body, r.Header.Get(stripeSignatureHeader), signature.TimestampedV1) {
		h.writeError(w, r, errors.AuthError("webhook signature verification failed"))
		return
	}

	ev, err := event.Parse(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if !ev.Kind.Actionable() {
		h.logger.Info("Event acknowledged without action",
			logging.Field{Key: "kind", Value: ev.Kind.String()},
			logging.Field{Key: "source_id", Value: ev.SourceID},
		)
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"accepted": true,
			"ignored":  ev.Kind.String(),
		})
		return
	}

	if ev.Subject == "" {
		h.writeError(w, r, errors.ValidationError("event is missing a subject identifier (email or github_username)"))
		return
	}

	outcome, err := h.provisioner.Invite(r.Context(), ev.Subject, ev.Permission)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if outcome.Kind == provision.OutcomeRejected {
		h.writeError(w, r, errors.UpstreamError("invitation rejected", nil).
			WithContext("detail", outcome.Detail))
		return
	}

	h.logger.Info("Webhook processed",
		logging.Field{Key: "kind", Value: ev.Kind.String()},
		logging.Field{Key: "source_id", Value: ev.SourceID},
		logging.Field{Key: "invite_status", Value: outcome.Kind.String()},
	)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accepted":      true,
		"invite_status": outcome.Kind.String(),
		"handle":        outcome.Handle,
	})
}
