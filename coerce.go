package kour

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the layout used to bind time.Time parameters.
const DateLayout = "2006-01-02"

// Enum is implemented by named types whose members bind by name.
//
//	type Color int
//
//	func (Color) ParseEnum(name string) (kour.Enum, bool) {
//	    c, ok := map[string]Color{"RED": Red, "GREEN": Green, "BLUE": Blue}[name]
//	    return c, ok
//	}
type Enum interface {
	ParseEnum(name string) (Enum, bool)
}

var (
	enumType            = reflect.TypeOf((*Enum)(nil)).Elem()
	timeType            = reflect.TypeOf(time.Time{})
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// Coerce converts a path variable to t.
// Scalar failures wrap ErrInvalidValue; map decoding failures wrap ErrMalformedBody.
func Coerce(value string, t reflect.Type) (reflect.Value, error) {
	switch {
	case t.Implements(enumType):
		return coerceEnum(value, t)
	case t == timeType:
		ts, err := time.Parse(DateLayout, value)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %q is not a date (YYYY-MM-DD)", ErrInvalidValue, value)
		}
		return reflect.ValueOf(ts), nil
	case t.Kind() != reflect.String && reflect.PointerTo(t).Implements(textUnmarshalerType):
		ptr := reflect.New(t)
		if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(value)); err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %q as %s: %v", ErrInvalidValue, value, t, err)
		}
		return ptr.Elem(), nil
	}

	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.String:
		out.SetString(value)
	case reflect.Bool:
		out.SetBool(parseBool(value))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, value)
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %q is not an unsigned integer", ErrInvalidValue, value)
		}
		out.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, t.Bits())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, value)
		}
		out.SetFloat(f)
	case reflect.Map:
		ptr := reflect.New(t)
		if err := json.Unmarshal([]byte(value), ptr.Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
		return ptr.Elem(), nil
	default:
		return reflect.Value{}, fmt.Errorf("%w: cannot bind a path variable to %s", ErrInvalidValue, t)
	}
	return out, nil
}

// CoerceTo is the typed form of Coerce.
func CoerceTo[T any](value string) (T, error) {
	var zero T
	v, err := Coerce(value, reflect.TypeOf(&zero).Elem())
	if err != nil {
		return zero, err
	}
	return v.Interface().(T), nil
}

// parseBool never fails: anything but true, 1 or yes is false.
func parseBool(value string) bool {
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	}
	return false
}

func coerceEnum(value string, t reflect.Type) (reflect.Value, error) {
	member, ok := reflect.Zero(t).Interface().(Enum).ParseEnum(value)
	if !ok || member == nil {
		return reflect.Value{}, fmt.Errorf("%w: %q is not a valid %s", ErrInvalidValue, value, t.Name())
	}
	v := reflect.ValueOf(member)
	if v.Type() != t {
		if !v.Type().ConvertibleTo(t) {
			return reflect.Value{}, fmt.Errorf("%w: %s.ParseEnum returned %s", ErrInvalidValue, t.Name(), v.Type())
		}
		v = v.Convert(t)
	}
	return v, nil
}
