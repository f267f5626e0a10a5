package kour

import (
	"context"
	"fmt"
	"net/http"
	"reflect"

	"github.com/karloscodes/kour/config"
	"github.com/karloscodes/kour/database"
)

// Body is the structured request body decoded from JSON.
type Body map[string]any

// Validator is implemented by schema types that check themselves after decoding.
// A non-nil error answers the request with 400 and the error text.
type Validator interface {
	Validate() error
}

// Source says where a handler parameter's value comes from when it is not
// found among the path parameters.
type Source int

const (
	SourceUnbound Source = iota
	SourceRequest
	SourceResponse
	SourceConfig
	SourceContext
	SourceBody
	SourceSchema
	SourceConn
)

var sourceNames = [...]string{"unbound", "request", "response", "config", "context", "body", "schema", "conn"}

func (s Source) String() string {
	if int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return fmt.Sprintf("Source(%d)", int(s))
}

// injected reports whether the value is provided by the framework regardless of name.
func (s Source) injected() bool {
	return s == SourceRequest || s == SourceResponse || s == SourceConfig || s == SourceContext
}

// Param describes one handler parameter.
type Param struct {
	Name   string
	Type   reflect.Type
	Source Source
}

var (
	requestType  = reflect.TypeOf((*Request)(nil))
	responseType = reflect.TypeOf((*Response)(nil))
	configType   = reflect.TypeOf((*config.Config)(nil))
	connType     = reflect.TypeOf((*database.Conn)(nil))
	contextType  = reflect.TypeOf((*context.Context)(nil)).Elem()
	bodyType     = reflect.TypeOf(Body(nil))
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
)

// Handler is a handler function prepared at registration: its parameters are
// classified once so that dispatch only walks Params.
type Handler struct {
	fn     reflect.Value
	Params []Param

	// Status is the code answered when the handler succeeds.
	Status int

	hasValue bool
	hasError bool
}

type handlerOptions struct {
	names  []string
	status int
}

// RouteOption configures a route at registration.
type RouteOption func(*handlerOptions)

// Params names the handler's parameters in order, skipping framework-injected
// ones (Request, Response, Config, context). Named parameters are bound from
// path variables of the same name.
//
//	r.GET("/users/:id", func(id int) (*User, error) { ... }, kour.Params("id"))
func Params(names ...string) RouteOption {
	return func(o *handlerOptions) {
		o.names = append(o.names, names...)
	}
}

// Status overrides the success status code of a route.
func Status(code int) RouteOption {
	return func(o *handlerOptions) {
		o.status = code
	}
}

// DefaultStatus returns the success status used for method when none is given.
func DefaultStatus(method string) int {
	switch method {
	case MethodPost:
		return http.StatusCreated
	case MethodDelete:
		return http.StatusNoContent
	default:
		return http.StatusOK
	}
}

// NewHandler inspects fn and builds its descriptor. fn must be a non-variadic
// function returning nothing, an error, a value, or a value and an error.
func NewHandler(method string, fn any, opts ...RouteOption) (*Handler, error) {
	o := handlerOptions{status: DefaultStatus(method)}
	for _, opt := range opts {
		opt(&o)
	}

	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("%w: expected a function, got %T", ErrInvalidHandler, fn)
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, fmt.Errorf("%w: variadic functions are not supported", ErrInvalidHandler)
	}

	h := &Handler{fn: v, Status: o.status}
	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			h.hasError = true
		} else {
			h.hasValue = true
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, fmt.Errorf("%w: second result must be error, got %s", ErrInvalidHandler, t.Out(1))
		}
		h.hasValue, h.hasError = true, true
	default:
		return nil, fmt.Errorf("%w: too many results (%d)", ErrInvalidHandler, t.NumOut())
	}

	names := o.names
	h.Params = make([]Param, t.NumIn())
	for i := range h.Params {
		p := Param{Type: t.In(i), Source: classify(t.In(i))}
		if !p.Source.injected() && len(names) > 0 {
			p.Name, names = names[0], names[1:]
		}
		h.Params[i] = p
	}
	if len(names) > 0 {
		return nil, fmt.Errorf("%w: %d parameter names left unassigned: %v", ErrInvalidHandler, len(names), names)
	}
	return h, nil
}

// classify returns the fallback source for a parameter type.
func classify(t reflect.Type) Source {
	switch {
	case t == requestType:
		return SourceRequest
	case t == responseType:
		return SourceResponse
	case t == configType:
		return SourceConfig
	case t == contextType:
		return SourceContext
	case t == connType:
		return SourceConn
	case t == bodyType, t.Kind() == reflect.Map && t.Key().Kind() == reflect.String && t.Elem().Kind() == reflect.Interface:
		return SourceBody
	case t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct:
		return SourceSchema
	default:
		return SourceUnbound
	}
}

// call invokes the handler with prepared arguments and splits its results.
func (h *Handler) call(args []reflect.Value) (any, error) {
	out := h.fn.Call(args)

	var result any
	var err error
	if h.hasValue {
		result = resultValue(out[0])
	}
	if h.hasError {
		if e := out[len(out)-1]; !e.IsNil() {
			err = e.Interface().(error)
		}
	}
	return result, err
}

// resultValue unwraps a reflected result, mapping typed nils to nil.
func resultValue(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		if v.IsNil() {
			return nil
		}
	}
	return v.Interface()
}
