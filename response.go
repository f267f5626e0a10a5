package kour

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// Defaults for a new Response.
const (
	DefaultCharset     = "utf-8"
	DefaultContentType = MIMEApplicationJSON
)

var errAlreadyRendered = errors.New("kour: response already rendered")

// ErrCharset is returned when the content cannot be encoded in the response
// charset. Nothing has been sent when Render fails with it.
var ErrCharset = errors.New("kour: cannot encode response charset")

// Response accumulates the status, headers and content of a reply. The first
// header is always Content-Type and follows the content type and charset setters.
type Response struct {
	sink        Sink
	status      int
	charset     string
	contentType string
	headers     []Header
	content     string
	rendered    bool
}

// NewResponse creates a response that renders into sink.
func NewResponse(sink Sink, status int) *Response {
	r := &Response{
		sink:        sink,
		status:      status,
		charset:     DefaultCharset,
		contentType: DefaultContentType,
	}
	r.headers = []Header{{Name: "Content-Type", Value: r.contentTypeHeader()}}
	return r
}

func (r *Response) contentTypeHeader() string {
	return r.contentType + "; charset=" + r.charset
}

func (r *Response) Status() int { return r.status }

func (r *Response) SetStatus(status int) { r.status = status }

func (r *Response) Charset() string { return r.charset }

// SetCharset changes the charset used to encode the body.
func (r *Response) SetCharset(charset string) {
	r.charset = charset
	r.headers[0].Value = r.contentTypeHeader()
}

func (r *Response) ContentType() string { return r.contentType }

func (r *Response) SetContentType(contentType string) {
	r.contentType = contentType
	r.headers[0].Value = r.contentTypeHeader()
}

// Headers returns a copy of the header list.
func (r *Response) Headers() []Header {
	headers := make([]Header, len(r.headers))
	copy(headers, r.headers)
	return headers
}

// Header returns every value set for name, compared case-insensitively.
func (r *Response) Header(name string) []string {
	var values []string
	for _, h := range r.headers {
		if strings.EqualFold(h.Name, name) {
			values = append(values, h.Value)
		}
	}
	return values
}

// AddHeader appends a header line, keeping existing values.
func (r *Response) AddHeader(name, value string) {
	if strings.EqualFold(name, "Content-Type") {
		r.setContentTypeHeader(value)
		return
	}
	r.headers = append(r.headers, Header{Name: name, Value: value})
}

// SetHeader replaces every value of name with value.
func (r *Response) SetHeader(name, value string) {
	if strings.EqualFold(name, "Content-Type") {
		r.setContentTypeHeader(value)
		return
	}
	kept := r.headers[:0]
	for _, h := range r.headers {
		if !strings.EqualFold(h.Name, name) {
			kept = append(kept, h)
		}
	}
	r.headers = append(kept, Header{Name: name, Value: value})
}

// setContentTypeHeader parses "type; charset=x" into the slot-0 fields.
func (r *Response) setContentTypeHeader(value string) {
	media, params, _ := strings.Cut(value, ";")
	r.contentType = strings.TrimSpace(media)
	for _, p := range strings.Split(params, ";") {
		if k, v, ok := strings.Cut(strings.TrimSpace(p), "="); ok && strings.EqualFold(k, "charset") {
			r.charset = strings.Trim(v, `"`)
		}
	}
	r.headers[0].Value = r.contentTypeHeader()
}

func (r *Response) Content() string { return r.content }

func (r *Response) SetContent(content string) { r.content = content }

// Rendered reports whether Render has been called.
func (r *Response) Rendered() bool { return r.rendered }

// Encode returns the content encoded in the response charset.
func (r *Response) Encode() ([]byte, error) {
	return encodeCharset(r.content, r.charset)
}

// Render sends the start frame then the body frame.
func (r *Response) Render(ctx context.Context) error {
	if r.rendered {
		return errAlreadyRendered
	}
	body, err := r.Encode()
	if err != nil {
		return err
	}
	r.rendered = true

	if r.sink == nil {
		return nil
	}
	if err := r.sink.Start(ctx, r.status, r.Headers()); err != nil {
		return fmt.Errorf("kour: send response start: %w", err)
	}
	if err := r.sink.Body(ctx, body); err != nil {
		return fmt.Errorf("kour: send response body: %w", err)
	}
	return nil
}

func encodeCharset(content, charset string) ([]byte, error) {
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8":
		return []byte(content), nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown charset %q: %w", ErrCharset, charset, err)
	}
	encoded, err := enc.NewEncoder().String(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCharset, charset, err)
	}
	return []byte(encoded), nil
}
