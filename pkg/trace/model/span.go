package model

// SpanData holds kind specific attributes grouped by category, e.g. data.sqs.queue.
type SpanData map[string]interface{}

// Set stores value under data[category][key], creating the category on first use.
func (d SpanData) Set(category string, key string, value interface{}) {
	attributes, ok := d[category].(map[string]interface{})
	if !ok {
		attributes = make(map[string]interface{})
		d[category] = attributes
	}
	attributes[key] = value
}

// Get returns data[category][key], or nil.
func (d SpanData) Get(category string, key string) interface{} {
	value, _ := d.Lookup(category, key)
	return value
}

// Lookup returns data[category][key] and whether it is set.
func (d SpanData) Lookup(category string, key string) (interface{}, bool) {
	attributes, ok := d[category].(map[string]interface{})
	if !ok {
		return nil, false
	}
	value, ok := attributes[key]
	return value, ok
}

// Span is the record handed to the transmit sink once a span has ended.
type Span struct {
	TraceID    string       `json:"t"`
	ParentID   string       `json:"p,omitempty"`
	SpanID     string       `json:"s"`
	Kind       SpanKind     `json:"k"`
	Name       string       `json:"n"`
	Timestamp  int64        `json:"ts"` // start, milliseconds since epoch
	Duration   int64        `json:"d"`  // milliseconds
	ErrorCount int          `json:"ec"`
	Data       SpanData     `json:"data"`
	Stack      []StackFrame `json:"stack,omitempty"`
	From       *From        `json:"f,omitempty"`
}

type StackFrame struct {
	Method string `json:"m"`
	File   string `json:"c"`
	Line   int    `json:"n"`
}

// From identifies the process that recorded a span.
type From struct {
	EntityID string `json:"e"`
	HostID   string `json:"h,omitempty"`
}

// SpanContext is the causal link read from an inbound carrier.
type SpanContext struct {
	TraceID  string
	ParentID string
}

func (sc SpanContext) IsValid() bool {
	return sc.TraceID != "" && sc.ParentID != ""
}
