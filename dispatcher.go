package kour

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
)

type outcomeKind int

const (
	outcomeOK outcomeKind = iota
	outcomeHTTPError
	outcomeFault
)

// outcome is the classified result of one dispatch.
type outcome struct {
	kind    outcomeKind
	value   any
	status  int
	message string
	err     error
	allow   []string
}

func success(value any) outcome { return outcome{kind: outcomeOK, value: value} }

func httpFailure(status int, message string) outcome {
	return outcome{kind: outcomeHTTPError, status: status, message: message}
}

func fault(err error) outcome {
	return outcome{
		kind:    outcomeFault,
		status:  http.StatusInternalServerError,
		message: StatusPhrase(http.StatusInternalServerError),
		err:     err,
	}
}

// classifyError turns a handler error into an outcome.
func classifyError(err error) outcome {
	if httpErr := AsHTTPError(err); httpErr != nil {
		out := httpFailure(httpErr.Code, httpErr.Message)
		out.err = err
		return out
	}
	return fault(err)
}

// Dispatcher runs the request state machine: scheme, supported method,
// allowed method, route lookup, then handler invocation and response shaping.
// Every failure is converted to a response here; nothing reaches the gateway.
type Dispatcher struct {
	router  *Router
	binder  *binder
	logger  *slog.Logger
	schemes []string
	text    TextRenderer
}

// Serve implements Gateway.
func (d *Dispatcher) Serve(ctx context.Context, scope *Scope, body BodyFunc, sink Sink) {
	start := time.Now()
	d.router.Seal()

	req := NewRequest(ctx, scope, body)
	res := NewResponse(sink, http.StatusOK)

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			if !res.Rendered() {
				d.renderError(req, res, fault(&PanicError{Value: r}))
			}
		}
		d.accessLog(req, res, start)
	}()

	out := d.dispatch(req, res)
	if out.kind == outcomeOK {
		out = d.shape(req, res, out)
	}
	if out.kind != outcomeOK {
		d.renderError(req, res, out)
		return
	}
	if err := res.Render(req.Context()); err != nil {
		if errors.Is(err, ErrCharset) && !res.Rendered() {
			d.renderError(req, res, fault(err))
			return
		}
		d.logger.Error("render response", slog.Any("error", err), slog.String("path", req.Path()))
	}
}

func (d *Dispatcher) dispatch(req *Request, res *Response) outcome {
	if !d.schemeAllowed(req.Scheme()) {
		d.logger.Debug("unsupported scheme", slog.String("scheme", req.Scheme()))
		return httpFailure(http.StatusBadRequest, StatusPhrase(http.StatusBadRequest))
	}

	method := req.Method()
	if !IsSupportedMethod(method) {
		d.logger.Debug("unsupported method", slog.String("method", method))
		return httpFailure(http.StatusNotFound, StatusPhrase(http.StatusNotFound))
	}

	// An empty set falls through to the route lookup below.
	allowed := d.router.AllowedMethods(req.Path())
	if len(allowed) > 0 && !contains(allowed, method) {
		d.logger.Debug("method not allowed",
			slog.String("method", method),
			slog.String("path", req.Path()),
			slog.Any("allowed", allowed))
		out := httpFailure(http.StatusMethodNotAllowed, StatusPhrase(http.StatusMethodNotAllowed))
		out.allow = allowed
		return out
	}

	route, params := d.router.Route(req.Path(), method)
	if route == nil {
		d.logger.Debug("route not found", slog.String("method", method), slog.String("path", req.Path()))
		return httpFailure(http.StatusNotFound, StatusPhrase(http.StatusNotFound))
	}

	req.SetPathParams(params)
	res.SetStatus(route.Handler.Status)

	result, err := d.binder.call(req.Context(), route.Handler, req, res)
	if err != nil {
		return classifyError(err)
	}
	return success(result)
}

// shape fills the response for a successful call.
func (d *Dispatcher) shape(req *Request, res *Response, out outcome) outcome {
	if res.Status() == http.StatusNoContent {
		res.SetContent("")
		return out
	}

	contentType := negotiateSuccess(req.Accept(), out.value)
	switch req.Method() {
	case MethodOptions:
		res.SetContentType(contentType)
		res.AddHeader("Allow", strings.Join(d.router.AllowedMethods(req.Path()), ", "))
		res.SetContent("")
		return out
	case MethodHead:
		body, err := serialize(contentType, out.value, d.text)
		if err != nil {
			return fault(err)
		}
		res.SetContentType(contentType)
		res.SetContent(body)
		encoded, err := res.Encode()
		if err != nil {
			return fault(err)
		}
		res.AddHeader("Content-Length", strconv.Itoa(len(encoded)))
		res.SetContent("")
		return out
	}

	body, err := serialize(contentType, out.value, d.text)
	if err != nil {
		return fault(err)
	}
	res.SetContentType(contentType)
	res.SetContent(body)
	return out
}

func (d *Dispatcher) renderError(req *Request, res *Response, out outcome) {
	if out.kind == outcomeFault {
		d.logger.Error("request failed",
			slog.String("method", req.Method()),
			slog.String("path", req.Path()),
			slog.Any("error", out.err))
	} else if out.err != nil {
		d.logger.Debug("handler returned http error",
			slog.Int("status", out.status),
			slog.Any("error", out.err))
	}

	contentType := negotiateError(req.Accept())
	res.SetContentType(contentType)
	res.SetStatus(out.status)
	if len(out.allow) > 0 {
		res.SetHeader("Allow", strings.Join(out.allow, ", "))
	}
	res.SetContent(errorBody(contentType, out.message))
	if _, err := res.Encode(); err != nil {
		res.SetCharset(DefaultCharset)
	}

	if err := res.Render(req.Context()); err != nil {
		d.logger.Error("render error response", slog.Any("error", err), slog.String("path", req.Path()))
	}
}

func (d *Dispatcher) accessLog(req *Request, res *Response, start time.Time) {
	version := req.HTTPVersion()
	if version == "" {
		version = "1.1"
	}
	d.logger.Info("http request",
		slog.String("client", req.Client()),
		slog.String("method", req.Method()),
		slog.String("path", req.Path()),
		slog.String("protocol", fmt.Sprintf("%s/%s", strings.ToUpper(req.Scheme()), version)),
		slog.Int("status", res.Status()),
		slog.String("phrase", StatusPhrase(res.Status())),
		slog.Int("length", len(res.Content())),
		slog.Float64("elapsed_ms", float64(time.Since(start).Microseconds())/1000),
	)
}

func (d *Dispatcher) schemeAllowed(scheme string) bool {
	for _, s := range d.schemes {
		if strings.EqualFold(s, scheme) {
			return true
		}
	}
	return false
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
