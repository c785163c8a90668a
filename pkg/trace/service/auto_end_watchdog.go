package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

const maxWatchedSpans = 1 << 16

// AutoEndWatchdog is the best-effort safety net for spans whose auto end was
// disabled: a span still active when its TTL expires is ended by the
// watchdog. Callers remain responsible for ending their spans; expiry is only
// noticed on ristretto's cleanup tick, so the timeout is a lower bound.
type AutoEndWatchdog struct {
	cache   *ristretto.Cache
	timeout time.Duration
	logger  *zap.Logger
}

func NewAutoEndWatchdog(timeout time.Duration, logger *zap.Logger) (*AutoEndWatchdog, error) {
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}
	w := &AutoEndWatchdog{
		timeout: timeout,
		logger:  logger,
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxWatchedSpans * 10,
		MaxCost:     maxWatchedSpans,
		BufferItems: 64,
		OnEvict:     w.onEvict,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create auto end cache: %w", err)
	}
	w.cache = cache
	return w, nil
}

func (w *AutoEndWatchdog) Watch(span *Span) {
	if set := w.cache.SetWithTTL(span.SpanID(), span, 1, w.timeout); !set {
		w.logger.Debug("Auto end watchdog dropped span", zap.String("span_id", span.SpanID()))
	}
}

func (w *AutoEndWatchdog) Forget(span *Span) {
	w.cache.Del(span.SpanID())
}

// Wait blocks until pending Watch and Forget calls are applied.
func (w *AutoEndWatchdog) Wait() {
	w.cache.Wait()
}

func (w *AutoEndWatchdog) Close() {
	w.cache.Close()
}

func (w *AutoEndWatchdog) onEvict(item *ristretto.Item) {
	span, ok := item.Value.(*Span)
	if !ok || span == nil {
		return
	}
	w.expire(span)
}

func (w *AutoEndWatchdog) expire(span *Span) {
	span.SetData("sensor", "autoEnded", true)
	// the cache entry is already gone, so the span must not call back into it
	if span.finish(model.Ended, false) {
		w.logger.Warn("Span was not ended by its owner and has been ended by the watchdog",
			zap.String("span_id", span.SpanID()),
			zap.String("span_name", span.Name()),
			zap.Duration("timeout", w.timeout),
		)
	}
}

var ErrInvalidTimeout = errors.New("auto end timeout must be positive")
