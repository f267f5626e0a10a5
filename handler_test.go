package kour

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karloscodes/kour/config"
	"github.com/karloscodes/kour/database"
)

type userSchema struct {
	Name string `json:"name"`
}

func TestNewHandlerClassifiesParams(t *testing.T) {
	fn := func(req *Request, id int, res *Response, cfg *config.Config, ctx context.Context,
		body Body, raw map[string]any, in *userSchema, conn *database.Conn) {
	}
	h, err := NewHandler(MethodGet, fn, Params("id"))
	require.NoError(t, err)

	var sources []Source
	for _, p := range h.Params {
		sources = append(sources, p.Source)
	}
	assert.Equal(t, []Source{
		SourceRequest, SourceUnbound, SourceResponse, SourceConfig, SourceContext,
		SourceBody, SourceBody, SourceSchema, SourceConn,
	}, sources)
	assert.Equal(t, "id", h.Params[1].Name)
	assert.Empty(t, h.Params[0].Name, "injected parameters take no name")
}

func TestNewHandlerNamesSkipInjected(t *testing.T) {
	h, err := NewHandler(MethodGet, func(ctx context.Context, a string, r *Request, b int) {}, Params("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, "a", h.Params[1].Name)
	assert.Equal(t, "b", h.Params[3].Name)
}

func TestNewHandlerReturnShapes(t *testing.T) {
	valid := []any{
		func() {},
		func() error { return nil },
		func() string { return "" },
		func() (map[string]any, error) { return nil, nil },
	}
	for _, fn := range valid {
		_, err := NewHandler(MethodGet, fn)
		assert.NoError(t, err)
	}

	invalid := []any{
		nil,
		"string",
		func(...int) {},
		func() (string, int) { return "", 0 },
		func() (int, int, error) { return 0, 0, nil },
	}
	for _, fn := range invalid {
		_, err := NewHandler(MethodGet, fn)
		assert.ErrorIs(t, err, ErrInvalidHandler)
	}
}

func TestNewHandlerLeftoverNames(t *testing.T) {
	_, err := NewHandler(MethodGet, func(id int) {}, Params("id", "extra"))
	assert.ErrorIs(t, err, ErrInvalidHandler)
}

func TestDefaultStatus(t *testing.T) {
	assert.Equal(t, 201, DefaultStatus(MethodPost))
	assert.Equal(t, 204, DefaultStatus(MethodDelete))
	assert.Equal(t, 200, DefaultStatus(MethodGet))
	assert.Equal(t, 200, DefaultStatus(MethodPatch))

	h, err := NewHandler(MethodPost, func() {}, Status(202))
	require.NoError(t, err)
	assert.Equal(t, 202, h.Status)
}

func TestHandlerCallResults(t *testing.T) {
	boom := errors.New("boom")

	h, err := NewHandler(MethodGet, func() (*userSchema, error) { return nil, boom })
	require.NoError(t, err)
	out, err := h.call(nil)
	assert.Nil(t, out, "typed nil pointers become nil")
	assert.ErrorIs(t, err, boom)

	h, err = NewHandler(MethodGet, func() map[string]any { return nil })
	require.NoError(t, err)
	out, err = h.call(nil)
	assert.Nil(t, out)
	assert.NoError(t, err)
}

func TestSourceString(t *testing.T) {
	assert.Equal(t, "schema", SourceSchema.String())
	assert.Equal(t, "Source(99)", Source(99).String())
}
