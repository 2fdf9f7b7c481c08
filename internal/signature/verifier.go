// Package signature implements HMAC-SHA256 request signature verification
// for the two schemes the service accepts: a plain hex digest of the payload
// (first-party requests) and the timestamped t=...,v1=... format used by the
// payment processor.
//
// Verification is a pure function of the payload, the header, and the secret
// injected at construction. Malformed input is indistinguishable from a wrong
// signature: every failure path returns false, never an error.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"shipmode-access/internal/common/logging"
)

// Scheme selects the signature format to verify against.
type Scheme int

const (
	// Simple is a lowercase hex HMAC-SHA256 digest of the raw payload.
	Simple Scheme = iota
	// TimestampedV1 is a comma-separated header of t=<unix>,v1=<hex digest>,
	// signed over the literal concatenation "<t>.<payload>".
	TimestampedV1
)

// Verifier checks request signatures against a single shared secret.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	logger    logging.Logger
}

// NewVerifier creates a verifier for the given secret. A positive tolerance
// enables the freshness check on TimestampedV1 signatures; zero disables it.
func NewVerifier(secret []byte, tolerance time.Duration, logger logging.Logger) *Verifier {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &Verifier{
		secret:    secret,
		tolerance: tolerance,
		logger:    logger,
	}
}

// Verify reports whether header carries a valid signature for payload under
// the given scheme. A missing header is always a rejection.
func (v *Verifier) Verify(payload []byte, header string, scheme Scheme) bool {
	if header == "" {
		return false
	}

	switch scheme {
	case Simple:
		return v.verifySimple(payload, header)
	case TimestampedV1:
		return v.verifyTimestamped(payload, header)
	default:
		return false
	}
}

func (v *Verifier) verifySimple(payload []byte, header string) bool {
	provided, err := hex.DecodeString(strings.TrimSpace(header))
	if err != nil {
		return false
	}

	return hmac.Equal(provided, digest(v.secret, payload))
}

func (v *Verifier) verifyTimestamped(payload []byte, header string) bool {
	timestamp, sig, ok := parseTimestampedHeader(header)
	if !ok {
		return false
	}

	if v.tolerance > 0 {
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return false
		}

		age := time.Since(time.Unix(ts, 0))
		if age < 0 {
			age = -age
		}

		if age > v.tolerance {
			v.logger.Debug("Signature timestamp outside tolerance",
				logging.Field{Key: "age", Value: age.String()},
			)
			return false
		}
	}

	provided, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	signed := make([]byte, 0, len(timestamp)+1+len(payload))
	signed = append(signed, timestamp...)
	signed = append(signed, '.')
	signed = append(signed, payload...)

	return hmac.Equal(provided, digest(v.secret, signed))
}

// parseTimestampedHeader extracts the t and v1 elements from a
// comma-separated key=value header. Both must be present.
func parseTimestampedHeader(header string) (timestamp, sig string, ok bool) {
	for _, element := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(element), "=")
		if !found {
			continue
		}

		switch key {
		case "t":
			timestamp = value
		case "v1":
			sig = value
		}
	}

	if timestamp == "" || sig == "" {
		return "", "", false
	}

	return timestamp, sig, true
}

func digest(secret, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

// Sign computes the Simple-scheme signature for payload. First-party callers
// use it to sign their requests; tests use it to build valid headers.
func Sign(payload, secret []byte) string {
	return hex.EncodeToString(digest(secret, payload))
}

// SignTimestamped builds a complete TimestampedV1 header for payload at the
// given time.
func SignTimestamped(payload, secret []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	signed := append([]byte(ts+"."), payload...)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(digest(secret, signed)))
}
