package kour

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// StateRequestID is the Scope.State key the request-id middleware writes.
const StateRequestID = "request_id"

// Request is the per-call view of an inbound request.
type Request struct {
	ctx   context.Context
	scope *Scope
	read  BodyFunc

	acceptOnce sync.Once
	accept     []string

	queryOnce sync.Once
	query     url.Values

	bodyOnce sync.Once
	body     []byte
	bodyErr  error

	pathParams map[string]string
}

// NewRequest wraps a gateway scope. The body is read at most once, on first use.
func NewRequest(ctx context.Context, scope *Scope, body BodyFunc) *Request {
	if ctx == nil {
		ctx = context.Background()
	}
	if scope == nil {
		scope = &Scope{}
	}
	return &Request{ctx: ctx, scope: scope, read: body}
}

// Context returns the request context.
func (r *Request) Context() context.Context { return r.ctx }

// Scope returns the underlying gateway scope.
func (r *Request) Scope() *Scope { return r.scope }

func (r *Request) Method() string      { return r.scope.Method }
func (r *Request) Path() string        { return r.scope.Path }
func (r *Request) Scheme() string      { return r.scope.Scheme }
func (r *Request) HTTPVersion() string { return r.scope.HTTPVersion }
func (r *Request) Client() string      { return r.scope.Client }

// Header returns the first value of the named header. Names are case-insensitive.
func (r *Request) Header(name string) string {
	return r.scope.Header(name)
}

// Headers returns every value of the named header in arrival order.
func (r *Request) Headers(name string) []string {
	var values []string
	for _, h := range r.scope.Headers {
		if strings.EqualFold(h.Name, name) {
			values = append(values, h.Value)
		}
	}
	return values
}

// Accept returns the media types of the Accept header, most preferred first.
func (r *Request) Accept() []string {
	r.acceptOnce.Do(func() {
		r.accept = ParseAccept(strings.Join(r.Headers("Accept"), ","))
	})
	return r.accept
}

// Query returns the parsed query string.
func (r *Request) Query() url.Values {
	r.queryOnce.Do(func() {
		q, err := url.ParseQuery(r.scope.QueryString)
		if err != nil && q == nil {
			q = url.Values{}
		}
		r.query = q
	})
	return r.query
}

// QueryValue returns the first value of a query parameter.
func (r *Request) QueryValue(name string) string {
	return r.Query().Get(name)
}

// Body reads and caches the request body.
func (r *Request) Body() ([]byte, error) {
	r.bodyOnce.Do(func() {
		if r.read == nil {
			return
		}
		r.body, r.bodyErr = r.read(r.ctx)
		if r.bodyErr != nil {
			r.bodyErr = fmt.Errorf("kour: read body: %w", r.bodyErr)
		}
	})
	return r.body, r.bodyErr
}

// JSON decodes the body into v.
func (r *Request) JSON(v any) error {
	raw, err := r.Body()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return nil
}

// PathParams returns the variables bound by the matched route.
func (r *Request) PathParams() map[string]string {
	return r.pathParams
}

// PathParam returns one path variable.
func (r *Request) PathParam(name string) string {
	return r.pathParams[name]
}

// SetPathParams replaces the path variables. The dispatcher calls it after routing.
func (r *Request) SetPathParams(params map[string]string) {
	r.pathParams = params
}

// State returns a value stored by middleware on the scope.
func (r *Request) State(key string) any {
	return r.scope.State[key]
}

// RequestID returns the id assigned by the request-id middleware, if any.
func (r *Request) RequestID() string {
	id, _ := r.scope.State[StateRequestID].(string)
	return id
}

type acceptEntry struct {
	media string
	q     float64
	wild  bool
}

// ParseAccept orders the media types of an Accept header by quality. At equal
// quality, concrete types come before wildcards and arrival order is kept.
// Duplicates and types with q=0 are dropped.
func ParseAccept(header string) []string {
	var entries []acceptEntry
	for _, part := range strings.Split(header, ",") {
		fields := strings.Split(part, ";")
		media := strings.ToLower(strings.TrimSpace(fields[0]))
		if media == "" {
			continue
		}

		q := 1.0
		for _, f := range fields[1:] {
			key, value, ok := strings.Cut(strings.TrimSpace(f), "=")
			if !ok || strings.TrimSpace(key) != "q" {
				continue
			}
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
				q = parsed
			}
		}
		if q <= 0 {
			continue
		}
		entries = append(entries, acceptEntry{media: media, q: q, wild: strings.Contains(media, "*")})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].q != entries[j].q {
			return entries[i].q > entries[j].q
		}
		return !entries[i].wild && entries[j].wild
	})

	seen := make(map[string]bool, len(entries))
	accept := make([]string, 0, len(entries))
	for _, e := range entries {
		if seen[e.media] {
			continue
		}
		seen[e.media] = true
		accept = append(accept, e.media)
	}
	return accept
}
