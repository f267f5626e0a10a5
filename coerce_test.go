package kour

import (
	"net/netip"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type color int

const (
	red color = iota + 1
	green
)

func (color) ParseEnum(name string) (Enum, bool) {
	c, ok := map[string]color{"RED": red, "GREEN": green}[name]
	return c, ok
}

func TestCoerceScalars(t *testing.T) {
	n, err := CoerceTo[int]("42")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	u, err := CoerceTo[uint8]("255")
	require.NoError(t, err)
	assert.Equal(t, uint8(255), u)

	f, err := CoerceTo[float64]("2.5")
	require.NoError(t, err)
	assert.Equal(t, 2.5, f)

	s, err := CoerceTo[string]("hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", s)
}

func TestCoerceBool(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "1", "yes", "Yes"} {
		b, err := CoerceTo[bool](v)
		require.NoError(t, err)
		assert.True(t, b, v)
	}
	for _, v := range []string{"false", "0", "no", "anything"} {
		b, err := CoerceTo[bool](v)
		require.NoError(t, err)
		assert.False(t, b, v)
	}
}

func TestCoerceFailures(t *testing.T) {
	_, err := CoerceTo[int]("abc")
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = CoerceTo[int8]("300")
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = CoerceTo[uint]("-1")
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = CoerceTo[[]int]("1")
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = CoerceTo[map[string]any]("{broken")
	assert.ErrorIs(t, err, ErrMalformedBody)
}

func TestCoerceMap(t *testing.T) {
	m, err := CoerceTo[map[string]any](`{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, m)
}

func TestCoerceDate(t *testing.T) {
	d, err := CoerceTo[time.Time]("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)

	_, err = CoerceTo[time.Time]("29/02/2024")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestCoerceEnum(t *testing.T) {
	c, err := CoerceTo[color]("GREEN")
	require.NoError(t, err)
	assert.Equal(t, green, c)

	_, err = CoerceTo[color]("PURPLE")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestCoerceTextUnmarshaler(t *testing.T) {
	v, err := Coerce("10.0.0.1", reflect.TypeOf(netip.Addr{}))
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), v.Interface())

	_, err = Coerce("not-an-ip", reflect.TypeOf(netip.Addr{}))
	assert.ErrorIs(t, err, ErrInvalidValue)
}
