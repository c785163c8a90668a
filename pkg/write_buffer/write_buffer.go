package write_buffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultForceFlushAt  = 500
	DefaultFlushInterval = time.Second
	DefaultMaxBuffered   = 1000
	flushTimeOut         = 10 * time.Second
)

var ErrBufferClosed = errors.New("write buffer is closed")

// Flusher receives the buffered values in the order they were written.
type Flusher[ValueType any] interface {
	Flush(ctx context.Context, values []ValueType) error
}

type WriteBuffer[ValueType any] interface {
	WriteToBuffer(values ...ValueType) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

type Config struct {
	// ForceFlushAt triggers a flush as soon as this many values are queued.
	ForceFlushAt int
	// FlushInterval is the period of the background flush.
	FlushInterval time.Duration
	// MaxBuffered caps the queue; values beyond it are dropped.
	MaxBuffered int
}

func (c Config) withDefaults() Config {
	if c.ForceFlushAt <= 0 {
		c.ForceFlushAt = DefaultForceFlushAt
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.MaxBuffered <= 0 {
		c.MaxBuffered = DefaultMaxBuffered
	}
	if c.ForceFlushAt > c.MaxBuffered {
		c.ForceFlushAt = c.MaxBuffered
	}
	return c
}

type WriteBufferImpl[ValueType any] struct {
	writeQueue []ValueType
	flusher    Flusher[ValueType]
	config     Config
	metrics    *Metrics
	logger     *zap.Logger
	mu         sync.Mutex
	flushMu    sync.Mutex
	closed     bool
	kick       chan struct{}
	stop       chan struct{}
	done       chan struct{}
}

// NewWriteBufferImpl starts a buffer that hands its contents to flusher
// periodically, whenever it fills up to config.ForceFlushAt, and on Close.
func NewWriteBufferImpl[ValueType any](
	flusher Flusher[ValueType],
	config Config,
	metrics *Metrics,
	logger *zap.Logger,
) *WriteBufferImpl[ValueType] {
	wb := &WriteBufferImpl[ValueType]{
		writeQueue: []ValueType{},
		flusher:    flusher,
		config:     config.withDefaults(),
		metrics:    metrics,
		logger:     logger,
		kick:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go wb.run()
	return wb
}

func (wb *WriteBufferImpl[ValueType]) WriteToBuffer(values ...ValueType) error {
	wb.mu.Lock()
	if wb.closed {
		wb.mu.Unlock()
		return ErrBufferClosed
	}
	room := wb.config.MaxBuffered - len(wb.writeQueue)
	dropped := 0
	if len(values) > room {
		dropped = len(values) - room
		values = values[:room]
	}
	wb.writeQueue = append(wb.writeQueue, values...)
	queued := len(wb.writeQueue)
	wb.mu.Unlock()

	wb.metrics.buffered(len(values))
	if dropped > 0 {
		wb.metrics.dropped(dropped)
		wb.logger.Debug("Write buffer is full, dropping values", zap.Int("dropped", dropped))
	}
	if queued >= wb.config.ForceFlushAt {
		select {
		case wb.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Flush hands everything queued so far to the flusher. A failed batch is
// dropped; retrying is up to the flusher.
func (wb *WriteBufferImpl[ValueType]) Flush(ctx context.Context) error {
	wb.flushMu.Lock()
	defer wb.flushMu.Unlock()

	wb.mu.Lock()
	batch := wb.writeQueue
	wb.writeQueue = []ValueType{}
	wb.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	flushCtx, cancel := context.WithTimeout(ctx, flushTimeOut)
	defer cancel()
	if err := wb.flusher.Flush(flushCtx, batch); err != nil {
		wb.metrics.failed(len(batch))
		return fmt.Errorf("error flushing %d buffered values: %w", len(batch), err)
	}
	wb.metrics.flushed(len(batch))
	return nil
}

// Close stops the background flush and flushes what is left. Writes after
// Close fail with ErrBufferClosed.
func (wb *WriteBufferImpl[ValueType]) Close(ctx context.Context) error {
	wb.mu.Lock()
	if wb.closed {
		wb.mu.Unlock()
		return nil
	}
	wb.closed = true
	wb.mu.Unlock()

	close(wb.stop)
	select {
	case <-wb.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return wb.Flush(ctx)
}

func (wb *WriteBufferImpl[ValueType]) Len() int {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	return len(wb.writeQueue)
}

func (wb *WriteBufferImpl[ValueType]) run() {
	defer close(wb.done)
	ticker := time.NewTicker(wb.config.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			wb.flushInBackground()
		case <-wb.kick:
			wb.flushInBackground()
		case <-wb.stop:
			return
		}
	}
}

func (wb *WriteBufferImpl[ValueType]) flushInBackground() {
	if err := wb.Flush(context.Background()); err != nil {
		wb.logger.Error("Failed to flush write buffer", zap.Error(err))
	}
}
