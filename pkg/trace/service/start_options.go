package service

import (
	"time"

	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
)

type startOptions struct {
	category    string
	remote      model.SpanContext
	startTime   time.Time
	data        map[string]map[string]interface{}
	stackSkip   int
	speculative bool
}

type StartOption func(*startOptions)

// WithRemoteParent links the span to a context read from an inbound carrier.
func WithRemoteParent(remote model.SpanContext) StartOption {
	return func(o *startOptions) {
		o.remote = remote
	}
}

// WithCategory sets the data category errors are recorded under. Defaults to the span name.
func WithCategory(category string) StartOption {
	return func(o *startOptions) {
		o.category = category
	}
}

func WithStartTime(startTime time.Time) StartOption {
	return func(o *startOptions) {
		o.startTime = startTime
	}
}

func WithData(category string, key string, value interface{}) StartOption {
	return func(o *startOptions) {
		if o.data == nil {
			o.data = make(map[string]map[string]interface{})
		}
		if o.data[category] == nil {
			o.data[category] = make(map[string]interface{})
		}
		o.data[category][key] = value
	}
}

// WithStackSkip drops extra frames from the captured stack, for wrappers that call StartSpan.
func WithStackSkip(skip int) StartOption {
	return func(o *startOptions) {
		o.stackSkip = skip
	}
}

// Speculative marks a span whose trace may still be adopted from a carrier.
// Until then it is linked to the active span, if any.
func Speculative() StartOption {
	return func(o *startOptions) {
		o.speculative = true
	}
}
