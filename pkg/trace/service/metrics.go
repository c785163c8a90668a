package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts span lifecycle transitions. A nil *Metrics records nothing.
type Metrics struct {
	SpansStarted     prometheus.Counter
	SpansTransmitted prometheus.Counter
	SpansCancelled   prometheus.Counter
	SpansSuppressed  prometheus.Counter
}

// NewMetrics registers the tracer counters with registerer. A nil registerer
// creates unregistered counters.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		SpansStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "sensor_spans_started_total",
			Help: "Total number of spans started",
		}),
		SpansTransmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "sensor_spans_transmitted_total",
			Help: "Total number of ended spans handed to the transmitter",
		}),
		SpansCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "sensor_spans_cancelled_total",
			Help: "Total number of spans cancelled before transmission",
		}),
		SpansSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "sensor_spans_suppressed_total",
			Help: "Total number of span starts skipped because tracing was suppressed",
		}),
	}
}

func (m *Metrics) started() {
	if m != nil {
		m.SpansStarted.Inc()
	}
}

func (m *Metrics) transmitted() {
	if m != nil {
		m.SpansTransmitted.Inc()
	}
}

func (m *Metrics) cancelled() {
	if m != nil {
		m.SpansCancelled.Inc()
	}
}

func (m *Metrics) suppressed() {
	if m != nil {
		m.SpansSuppressed.Inc()
	}
}
