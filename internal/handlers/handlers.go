// Package handlers implements the HTTP boundary of the provisioning
// service. Authentication and validation failures are rejected here; every
// other failure is converted to a structured JSON response. Nothing escapes
// to the transport layer as a panic.
package handlers

import (
	"net/http"

	"shipmode-access/internal/common/logging"
	"shipmode-access/internal/provision"
	"shipmode-access/internal/signature"
)

// maxBodySize bounds inbound payloads; webhook events are small.
const maxBodySize = 1 << 20

// Handlers holds the verifiers and services the HTTP endpoints dispatch to.
// All dependencies are injected at construction; handlers perform no
// ambient configuration lookups.
type Handlers struct {
	stripeVerifier   *signature.Verifier
	internalVerifier *signature.Verifier
	provisioner      *provision.Service
	logger           logging.Logger
}

// New creates the handler set.
func New(stripeVerifier, internalVerifier *signature.Verifier, provisioner *provision.Service, logger logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &Handlers{
		stripeVerifier:   stripeVerifier,
		internalVerifier: internalVerifier,
		provisioner:      provisioner,
		logger:           logger,
	}
}

// HealthCheck reports service liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
