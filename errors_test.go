package kour

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPError(t *testing.T) {
	cause := errors.New("row missing")
	err := ErrNotFound("user not found").WithCause(cause)

	assert.Equal(t, "user not found", err.Error())
	assert.Equal(t, 404, err.StatusCode())
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, "Conflict", NewHTTPError(409, "").Message)
	assert.Equal(t, 400, ErrBadRequest("x").Code)
	assert.Equal(t, 401, ErrUnauthorized("x").Code)
	assert.Equal(t, 403, ErrForbidden("x").Code)
	assert.Equal(t, 409, ErrConflict("x").Code)
	assert.Equal(t, 422, ErrUnprocessable("x").Code)
}

func TestAsHTTPError(t *testing.T) {
	wrapped := fmt.Errorf("load: %w", ErrForbidden("nope"))
	httpErr := AsHTTPError(wrapped)
	if assert.NotNil(t, httpErr) {
		assert.Equal(t, 403, httpErr.Code)
	}
	assert.Nil(t, AsHTTPError(errors.New("plain")))
	assert.Nil(t, AsHTTPError(nil))
}

func TestStatusPhrase(t *testing.T) {
	assert.Equal(t, "OK", StatusPhrase(200))
	assert.Equal(t, "Method Not Allowed", StatusPhrase(405))
	assert.Equal(t, "I'm a teapot", StatusPhrase(418))
	assert.Equal(t, "Error", StatusPhrase(299))
}
