package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	t.Run("type and message", func(t *testing.T) {
		err := AuthError("signature verification failed")
		assert.Equal(t, "authentication: signature verification failed", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := stderrors.New("connection refused")
		err := ConnectionError("request failed", cause)
		assert.Contains(t, err.Error(), "request failed")
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("with context", func(t *testing.T) {
		err := UpstreamError("user lookup failed", nil).WithContext("status", 403)
		assert.Contains(t, err.Error(), "status=403")
	})
}

func TestAppError_Unwrap(t *testing.T) {
	cause := stderrors.New("dial timeout")
	err := ConnectionError("request failed", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Nil(t, stderrors.Unwrap(AuthError("no cause")))
}

func TestAppError_HTTPStatus(t *testing.T) {
	cases := []struct {
		err  *AppError
		want int
	}{
		{AuthError("x"), http.StatusUnauthorized},
		{ValidationError("x"), http.StatusBadRequest},
		{NotFoundError("account"), http.StatusNotFound},
		{UpstreamError("x", nil), http.StatusBadGateway},
		{TimeoutError("lookup"), http.StatusGatewayTimeout},
		{ConnectionError("x", nil), http.StatusInternalServerError},
		{ConfigError("x"), http.StatusInternalServerError},
		{InternalError("x", nil), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(string(tc.err.Type), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.HTTPStatus())
		})
	}
}

func TestIsType(t *testing.T) {
	assert.True(t, IsType(NotFoundError("account"), ErrTypeNotFound))
	assert.False(t, IsType(NotFoundError("account"), ErrTypeAuth))
	assert.False(t, IsType(fmt.Errorf("plain error"), ErrTypeInternal))
	assert.False(t, IsType(nil, ErrTypeInternal))
}

func TestGetType(t *testing.T) {
	assert.Equal(t, ErrTypeValidation, GetType(ValidationError("x")))
	assert.Equal(t, ErrTypeInternal, GetType(fmt.Errorf("plain error")))
	assert.Equal(t, ErrorType(""), GetType(nil))
}

func TestNotFoundError_Message(t *testing.T) {
	assert.Equal(t, "github account not found", NotFoundError("github account").Message)
}
