// Package http_tracing traces inbound requests as ENTRY spans and outbound
// requests as EXIT spans, carrying trace context in X-INSTANA-* headers.
package http_tracing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Avi18971911/AugurSensor/pkg/instrumentation"
	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/Avi18971911/AugurSensor/pkg/trace/propagation"
	"github.com/Avi18971911/AugurSensor/pkg/trace/service"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
)

const (
	InstrumentationName = "g.http"
	spanName            = "g.http"
	category            = "http"
)

type Tracing struct {
	shim *instrumentation.Shim
}

func New(registry *instrumentation.Registry) *Tracing {
	return &Tracing{shim: registry.Init(InstrumentationName)}
}

// Middleware traces every request served by next. It has the shape of a
// mux.MiddlewareFunc, so routers can Use it directly.
func (t *Tracing) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := t.shim.Entry(r.Context(), spanName, propagation.HeaderCarrier(r.Header), requestOptions(r)...)
		if route := mux.CurrentRoute(r); route != nil {
			if template, err := route.GetPathTemplate(); err == nil {
				span.SetData(category, "path_tpl", template)
			}
		}
		writer := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		defer instrumentation.EndOnPanic(span)
		next.ServeHTTP(writer, r.WithContext(ctx))
		completeEntry(span, writer.status)
	})
}

// GinMiddleware traces every request handled by the gin engine it is used on.
func (t *Tracing) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := t.shim.Entry(c.Request.Context(), spanName, propagation.HeaderCarrier(c.Request.Header), requestOptions(c.Request)...)
		if template := c.FullPath(); template != "" {
			span.SetData(category, "path_tpl", template)
		}
		c.Request = c.Request.WithContext(ctx)
		defer instrumentation.EndOnPanic(span)
		c.Next()
		if len(c.Errors) > 0 {
			span.AddError(c.Errors.Last())
		}
		completeEntry(span, c.Writer.Status())
	}
}

// RoundTripper traces requests sent through base, or http.DefaultTransport if base is nil.
func (t *Tracing) RoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &roundTripper{base: base, shim: t.shim}
}

// Client returns a copy of client whose transport is traced.
func (t *Tracing) Client(client *http.Client) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	traced := *client
	traced.Transport = t.RoundTripper(client.Transport)
	return &traced
}

type roundTripper struct {
	base http.RoundTripper
	shim *instrumentation.Shim
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// a RoundTripper must not modify the caller's request
	traced := req.Clone(req.Context())
	op := instrumentation.Operation[*http.Response]{
		Name:    spanName,
		Kind:    model.Exit,
		Carrier: propagation.HeaderCarrier(traced.Header),
		Options: requestOptions(req),
		Annotate: func(span *service.Span, resp *http.Response, err error) {
			if resp == nil {
				return
			}
			span.SetData(category, "status", resp.StatusCode)
			if resp.StatusCode >= http.StatusInternalServerError {
				span.AddError(statusError(resp.StatusCode))
			}
		},
	}
	return instrumentation.Call(req.Context(), rt.shim, op, func(ctx context.Context) (*http.Response, error) {
		return rt.base.RoundTrip(traced.WithContext(ctx))
	})
}

func requestOptions(r *http.Request) []service.StartOption {
	return []service.StartOption{
		service.WithCategory(category),
		service.WithData(category, "method", r.Method),
		service.WithData(category, "url", redactedURL(r)),
		service.WithData(category, "host", r.Host),
	}
}

func completeEntry(span *service.Span, status int) {
	span.SetData(category, "status", status)
	if status >= http.StatusInternalServerError {
		span.AddError(statusError(status))
	}
	span.Complete(nil)
}

func statusError(status int) error {
	return fmt.Errorf("%d %s", status, http.StatusText(status))
}

// redactedURL drops the query, fragment and credentials of the request URL.
func redactedURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	u := url.URL{
		Scheme: r.URL.Scheme,
		Host:   r.URL.Host,
		Path:   r.URL.Path,
	}
	return u.String()
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
