package write_buffer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts values passing through a write buffer. A nil *Metrics records nothing.
type Metrics struct {
	Buffered      prometheus.Counter
	Flushed       prometheus.Counter
	Dropped       prometheus.Counter
	FailedFlushes prometheus.Counter
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Buffered: factory.NewCounter(prometheus.CounterOpts{
			Name: "sensor_write_buffer_buffered_total",
			Help: "Total number of values accepted by the write buffer",
		}),
		Flushed: factory.NewCounter(prometheus.CounterOpts{
			Name: "sensor_write_buffer_flushed_total",
			Help: "Total number of values flushed successfully",
		}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "sensor_write_buffer_dropped_total",
			Help: "Total number of values dropped because the buffer was full",
		}),
		FailedFlushes: factory.NewCounter(prometheus.CounterOpts{
			Name: "sensor_write_buffer_failed_total",
			Help: "Total number of values lost to failed flushes",
		}),
	}
}

func (m *Metrics) buffered(n int) {
	if m != nil {
		m.Buffered.Add(float64(n))
	}
}

func (m *Metrics) flushed(n int) {
	if m != nil {
		m.Flushed.Add(float64(n))
	}
}

func (m *Metrics) dropped(n int) {
	if m != nil {
		m.Dropped.Add(float64(n))
	}
}

func (m *Metrics) failed(n int) {
	if m != nil {
		m.FailedFlushes.Add(float64(n))
	}
}
