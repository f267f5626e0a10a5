package kour

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Media types the dispatcher negotiates between.
const (
	MIMETextPlain       = "text/plain"
	MIMEApplicationJSON = "application/json"
	mimeAny             = "*/*"
)

// TextRenderer renders a non-string result for a text/plain response.
type TextRenderer func(v any) string

// DefaultTextRenderer formats v with fmt.Sprint, e.g. map[message:ok].
func DefaultTextRenderer(v any) string {
	return fmt.Sprint(v)
}

// negotiateSuccess picks the content type of a successful response from the
// ordered Accept list. A bare wildcard yields JSON for collections.
func negotiateSuccess(accept []string, result any) string {
	for _, media := range accept {
		switch media {
		case MIMETextPlain, MIMEApplicationJSON:
			return media
		case mimeAny:
			if isCollection(result) {
				return MIMEApplicationJSON
			}
			return MIMETextPlain
		}
	}
	return MIMETextPlain
}

// negotiateError picks the content type of an error response.
func negotiateError(accept []string) string {
	for _, media := range accept {
		if media == MIMEApplicationJSON {
			return MIMEApplicationJSON
		}
	}
	return MIMETextPlain
}

// isCollection reports whether v serializes as a JSON object or array.
// Structs count as mappings.
func isCollection(v any) bool {
	switch kindOf(v) {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	}
	return false
}

// kindOf returns the kind of v, looking through one pointer.
func kindOf(v any) reflect.Kind {
	if v == nil {
		return reflect.Invalid
	}
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
		if t.Kind() != reflect.Struct {
			return reflect.Pointer
		}
	}
	return t.Kind()
}

// serialize renders a handler result for contentType. Only nil, strings and
// collections are supported; anything else wraps ErrUnsupportedResult.
func serialize(contentType string, result any, text TextRenderer) (string, error) {
	if result == nil {
		return "", nil
	}
	var s string
	isString := kindOf(result) == reflect.String
	if isString {
		s = reflect.ValueOf(result).String()
	} else if !isCollection(result) {
		return "", fmt.Errorf("%w: %T", ErrUnsupportedResult, result)
	}

	if contentType == MIMEApplicationJSON {
		raw, err := json.Marshal(result)
		if err != nil {
			return "", fmt.Errorf("kour: encode json result: %w", err)
		}
		return string(raw), nil
	}
	if isString {
		return s, nil
	}
	if text == nil {
		text = DefaultTextRenderer
	}
	return text(result), nil
}

// errorBody renders an error message for contentType.
func errorBody(contentType, message string) string {
	if contentType != MIMEApplicationJSON {
		return message
	}
	raw, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return message
	}
	return string(raw)
}
