// Package elasticsearch_tracing traces the requests an Elasticsearch client
// sends as EXIT spans.
package elasticsearch_tracing

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Avi18971911/AugurSensor/pkg/instrumentation"
	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/Avi18971911/AugurSensor/pkg/trace/service"
	"github.com/elastic/go-elasticsearch/v8"
)

const (
	InstrumentationName = "elasticsearch"
	spanName            = "elasticsearch"
	category            = "elasticsearch"
)

type Tracing struct {
	shim *instrumentation.Shim
}

func New(registry *instrumentation.Registry) *Tracing {
	return &Tracing{shim: registry.Init(InstrumentationName)}
}

// NewClient creates a client from cfg whose requests are traced.
func (t *Tracing) NewClient(cfg elasticsearch.Config) (*elasticsearch.Client, error) {
	cfg.Transport = t.RoundTripper(cfg.Transport)
	return elasticsearch.NewClient(cfg)
}

// RoundTripper traces requests sent through base, or http.DefaultTransport if base is nil.
func (t *Tracing) RoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &roundTripper{base: base, shim: t.shim}
}

type roundTripper struct {
	base http.RoundTripper
	shim *instrumentation.Shim
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	op := instrumentation.Operation[*http.Response]{
		Name:    spanName,
		Kind:    model.Exit,
		Options: requestOptions(req),
		Annotate: func(span *service.Span, resp *http.Response, err error) {
			if resp == nil {
				return
			}
			span.SetData(category, "status", resp.StatusCode)
			if resp.StatusCode >= http.StatusBadRequest && !isMissingDocument(req, resp) {
				span.AddError(fmt.Errorf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
			}
		},
	}
	return instrumentation.Call(req.Context(), rt.shim, op, func(ctx context.Context) (*http.Response, error) {
		return rt.base.RoundTrip(req.WithContext(ctx))
	})
}

func requestOptions(req *http.Request) []service.StartOption {
	action, index := describe(req.Method, req.URL.Path)
	options := []service.StartOption{
		service.WithCategory(category),
		service.WithData(category, "action", action),
		service.WithData(category, "endpoint", req.URL.Path),
		service.WithData(category, "address", req.URL.Host),
	}
	if index != "" {
		options = append(options, service.WithData(category, "index", index))
	}
	return options
}

// describe derives the API action and target index from a REST path, e.g.
// POST /orders/_search is the search action on the orders index.
func describe(method string, path string) (action string, index string) {
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	if len(segments) > 0 && !strings.HasPrefix(segments[0], "_") {
		index = segments[0]
	}
	for _, segment := range segments {
		if !strings.HasPrefix(segment, "_") {
			continue
		}
		switch segment {
		case "_doc", "_create":
			return documentAction(method), index
		case "_update":
			return "update", index
		default:
			return strings.TrimPrefix(segment, "_"), index
		}
	}
	switch {
	case index == "":
		if method == http.MethodHead {
			return "ping", index
		}
		return "info", index
	case len(segments) == 1:
		return "indices." + indexAction(method), index
	default:
		return strings.ToLower(method), index
	}
}

func documentAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "get"
	case http.MethodDelete:
		return "delete"
	default:
		return "index"
	}
}

func indexAction(method string) string {
	switch method {
	case http.MethodPut:
		return "create"
	case http.MethodDelete:
		return "delete"
	case http.MethodHead:
		return "exists"
	default:
		return "get"
	}
}

// a lookup of an absent document or index answers 404 without having failed
func isMissingDocument(req *http.Request, resp *http.Response) bool {
	return resp.StatusCode == http.StatusNotFound && (req.Method == http.MethodGet || req.Method == http.MethodHead)
}
