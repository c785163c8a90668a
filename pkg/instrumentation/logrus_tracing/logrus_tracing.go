// Package logrus_tracing records warnings and errors logged through logrus
// as log.go EXIT spans of the trace active in the entry's context.
package logrus_tracing

import (
	"context"
	"errors"

	"github.com/Avi18971911/AugurSensor/pkg/instrumentation"
	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/Avi18971911/AugurSensor/pkg/trace/service"
	"github.com/sirupsen/logrus"
)

const (
	InstrumentationName = "log.go"
	spanName            = "log.go"
	category            = "log"
)

// Hook is a logrus.Hook. Entries only produce spans when they carry a
// context, e.g. logger.WithContext(ctx).Error(...).
type Hook struct {
	shim *instrumentation.Shim
}

var _ logrus.Hook = (*Hook)(nil)

func New(registry *instrumentation.Registry) *Hook {
	return &Hook{shim: registry.Init(InstrumentationName)}
}

func (h *Hook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
	}
}

func (h *Hook) Fire(entry *logrus.Entry) error {
	if entry.Context == nil {
		return nil
	}
	op := instrumentation.Operation[struct{}]{
		Name: spanName,
		Kind: model.Exit,
		Options: []service.StartOption{
			service.WithCategory(category),
			service.WithData(category, "level", levelName(entry.Level)),
			service.WithData(category, "message", entry.Message),
		},
		Annotate: func(span *service.Span, _ struct{}, _ error) {
			if entry.Level <= logrus.ErrorLevel {
				span.AddError(entryError(entry))
			}
		},
	}
	_, _ = instrumentation.Call(entry.Context, h.shim, op, func(context.Context) (struct{}, error) {
		return struct{}{}, nil
	})
	return nil
}

func levelName(level logrus.Level) string {
	if level == logrus.WarnLevel {
		return "WARN"
	}
	return "ERROR"
}

// entryError prefers the error attached with WithError over the message.
func entryError(entry *logrus.Entry) error {
	if err, ok := entry.Data[logrus.ErrorKey].(error); ok && err != nil {
		return err
	}
	return errors.New(entry.Message)
}
