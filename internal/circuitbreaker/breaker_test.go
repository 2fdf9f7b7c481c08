package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"shipmode-access/internal/common/errors"
)

func TestBreaker_Execute_Success(t *testing.T) {
	b := New("test", HTTPConfig, nil)

	err := b.Execute(context.Background(), func() error { return nil })

	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := New("test", Config{MaxFailures: 3, Timeout: time.Minute, MaxConcurrentRequests: 1}, nil)
	ctx := context.Background()

	upstream := errors.UpstreamError("boom", nil)
	for i := 0; i < 3; i++ {
		err := b.Execute(ctx, func() error { return upstream })
		require.Error(t, err)
	}

	assert.True(t, b.IsOpen())

	// Calls while open are rejected without running the function
	ran := false
	err := b.Execute(ctx, func() error { ran = true; return nil })
	require.Error(t, err)
	assert.False(t, ran)
	assert.True(t, errors.IsType(err, errors.ErrTypeUpstream))
}

func TestBreaker_ExpectedErrorsDoNotTrip(t *testing.T) {
	b := New("test", Config{MaxFailures: 2, Timeout: time.Minute, MaxConcurrentRequests: 1}, nil)
	ctx := context.Background()

	// not_found and validation are request outcomes, not upstream failures
	for i := 0; i < 10; i++ {
		b.Execute(ctx, func() error { return errors.NotFoundError("github account") })
		b.Execute(ctx, func() error { return errors.ValidationError("bad input") })
	}

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_RecoversAfterTimeout(t *testing.T) {
	b := New("test", Config{MaxFailures: 1, Timeout: 20 * time.Millisecond, MaxConcurrentRequests: 1}, nil)
	ctx := context.Background()

	b.Execute(ctx, func() error { return errors.UpstreamError("boom", nil) })
	require.True(t, b.IsOpen())

	time.Sleep(30 * time.Millisecond)

	// Half-open probe succeeds and closes the circuit
	err := b.Execute(ctx, func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}
