// Package event classifies verified payment events and extracts the subject
// they provision access for. Events are only ever constructed from payload
// bytes whose signature has already been verified.
package event

import (
	"encoding/json"
	"strings"

	"shipmode-access/internal/common/errors"
)

// Kind identifies the class of an inbound event.
type Kind int

const (
	// Unrecognized covers every event type the service does not act on.
	// Unrecognized events are acknowledged, not rejected, so the upstream
	// source can add event types without breaking this service.
	Unrecognized Kind = iota
	// PaymentCompleted is a finished one-off purchase.
	PaymentCompleted
	// SubscriptionRenewed is a successful recurring payment.
	SubscriptionRenewed
	// SubscriptionCancelled is a terminated subscription.
	SubscriptionCancelled
)

// String returns the string representation of an event kind
func (k Kind) String() string {
	switch k {
	case PaymentCompleted:
		return "payment_completed"
	case SubscriptionRenewed:
		return "subscription_renewed"
	case SubscriptionCancelled:
		return "subscription_cancelled"
	default:
		return "unrecognized"
	}
}

// Actionable reports whether the kind triggers a provisioning action.
func (k Kind) Actionable() bool {
	return k == PaymentCompleted || k == SubscriptionRenewed
}

// Classify maps a declared event type string to a Kind. Unknown strings map
// to Unrecognized rather than failing.
func Classify(rawType string) Kind {
	switch rawType {
	case "checkout.session.completed", "payment_intent.succeeded":
		return PaymentCompleted
	case "invoice.payment_succeeded":
		return SubscriptionRenewed
	case "customer.subscription.deleted":
		return SubscriptionCancelled
	default:
		return Unrecognized
	}
}

// Permission is the access level requested for the subject.
type Permission int

const (
	// PermissionRead grants read-only access
	PermissionRead Permission = iota
	// PermissionWrite grants read-write access
	PermissionWrite
	// PermissionAdmin grants administrative access
	PermissionAdmin
)

// String returns the string representation of a permission level
func (p Permission) String() string {
	switch p {
	case PermissionWrite:
		return "write"
	case PermissionAdmin:
		return "admin"
	default:
		return "read"
	}
}

// ParsePermission converts a request field into a Permission. An empty value
// defaults to read, matching the webhook provisioning default.
func ParsePermission(s string) (Permission, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "read", "pull":
		return PermissionRead, nil
	case "write", "push":
		return PermissionWrite, nil
	case "admin":
		return PermissionAdmin, nil
	default:
		return PermissionRead, errors.ValidationError("permission must be one of read, write, admin")
	}
}

// Event is a verified, immutable provisioning event. Subject is the public
// identifier of the account to provision: a handle when the payload carries
// one, otherwise an email.
type Event struct {
	SourceID   string
	Kind       Kind
	Subject    string
	Permission Permission
}

// rawEvent mirrors the payment processor's payload. The flat email and
// github_username fields come from first-party checkout metadata; the nested
// data.object shape is the processor's native envelope.
type rawEvent struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Email          string `json:"email"`
	GitHubUsername string `json:"github_username"`
	Data           struct {
		Object struct {
			CustomerEmail string `json:"customer_email"`
			Metadata      struct {
				Email          string `json:"email"`
				GitHubUsername string `json:"github_username"`
			} `json:"metadata"`
			CustomerDetails struct {
				Email string `json:"email"`
			} `json:"customer_details"`
		} `json:"object"`
	} `json:"data"`
}

// Parse builds an Event from verified payload bytes. It fails only on
// malformed JSON; subject requiredness is enforced at the boundary, where it
// depends on whether the kind is actionable.
func Parse(payload []byte) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errors.ValidationError("request body is not valid JSON")
	}

	return &Event{
		SourceID:   raw.ID,
		Kind:       Classify(raw.Type),
		Subject:    subjectOf(&raw),
		Permission: PermissionRead,
	}, nil
}

// subjectOf picks the provisioning subject. A declared handle wins over an
// email: the two resolution strategies can land on different accounts for
// the same person, and the handle is what the customer typed in themselves.
func subjectOf(raw *rawEvent) string {
	candidates := []string{
		raw.GitHubUsername,
		raw.Data.Object.Metadata.GitHubUsername,
		raw.Email,
		raw.Data.Object.CustomerEmail,
		raw.Data.Object.Metadata.Email,
		raw.Data.Object.CustomerDetails.Email,
	}

	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}

	return ""
}
