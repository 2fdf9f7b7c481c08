// Package circuitbreaker provides circuit breaker functionality using Sony's gobreaker
package circuitbreaker

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"shipmode-access/internal/common/errors"
	"shipmode-access/internal/common/logging"
)

// Config holds the configuration for a circuit breaker
type Config struct {
	// MaxFailures is the number of consecutive failures that opens the circuit
	MaxFailures int
	// Timeout is how long the circuit stays open before transitioning to half-open
	Timeout time.Duration
	// MaxConcurrentRequests is the maximum number of requests allowed in half-open state
	MaxConcurrentRequests int
}

// HTTPConfig is tuned for outbound HTTP API calls that should fail fast
var HTTPConfig = Config{
	MaxFailures:           3,
	Timeout:               30 * time.Second,
	MaxConcurrentRequests: 2,
}

// State represents the current state of the circuit breaker
type State int

const (
	// StateClosed means the circuit breaker is closed and allowing requests through
	StateClosed State = iota
	// StateOpen means the circuit breaker is open and rejecting requests
	StateOpen
	// StateHalfOpen means the circuit breaker is testing if the service has recovered
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker wraps Sony's gobreaker behind the service error taxonomy.
type Breaker struct {
	name    string
	breaker *gobreaker.CircuitBreaker
	logger  logging.Logger
}

// New creates a circuit breaker with the given configuration.
func New(name string, config Config, logger logging.Logger) *Breaker {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(config.MaxConcurrentRequests),
		Interval:    time.Minute, // Rolling window for statistics
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.MaxFailures)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				logging.Field{Key: "breaker", Value: name},
				logging.Field{Key: "from", Value: from.String()},
				logging.Field{Key: "to", Value: to.String()},
			)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}

			// Client-side errors reflect the request, not upstream health,
			// and must not trip the breaker.
			if appErr, ok := err.(*errors.AppError); ok {
				switch appErr.Type {
				case errors.ErrTypeValidation, errors.ErrTypeNotFound:
					return true
				}
			}

			return false
		},
	}

	return &Breaker{
		name:    name,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// Execute runs the given function within the circuit breaker
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return errors.UpstreamError(fmt.Sprintf("circuit breaker '%s' is open", b.name), err)
	}

	return err
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	switch b.breaker.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// IsOpen returns true if the circuit breaker is open
func (b *Breaker) IsOpen() bool {
	return b.breaker.State() == gobreaker.StateOpen
}
