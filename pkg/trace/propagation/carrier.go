package propagation

import (
	"net/http"
)

// Carrier keys. Other processes read these byte for byte, so they never change.
const (
	TraceIDKey    = "x-instana-t"
	SpanIDKey     = "x-instana-s"
	TraceLevelKey = "x-instana-l"
)

const (
	LevelSuppressed = "0"
	LevelEnabled    = "1"
)

// Keys lists every carrier key, in injection order.
var Keys = []string{TraceIDKey, SpanIDKey, TraceLevelKey}

// Carrier is a key/value attachment of an outbound or inbound message.
type Carrier interface {
	Get(key string) (string, bool)
	Set(key string, value string)
}

// MapCarrier is a Carrier over a plain map. The map must be non-nil before Set is called.
type MapCarrier map[string]string

func (c MapCarrier) Get(key string) (string, bool) {
	value, ok := c[key]
	return value, ok
}

func (c MapCarrier) Set(key string, value string) {
	c[key] = value
}

// HeaderCarrier is a Carrier over HTTP headers; keys are case-insensitive.
type HeaderCarrier http.Header

func (c HeaderCarrier) Get(key string) (string, bool) {
	values := http.Header(c).Values(key)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func (c HeaderCarrier) Set(key string, value string) {
	http.Header(c).Set(key, value)
}
