// Package store keeps the spans received by the stub agent.
package store

import (
	"context"
	"fmt"

	"github.com/Avi18971911/AugurSensor/pkg/elasticsearch/client"
	"github.com/Avi18971911/AugurSensor/pkg/trace/model"
	"github.com/Avi18971911/AugurSensor/pkg/trace/recorder"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// maxListedSpans is the largest page an Elasticsearch search returns by default.
const maxListedSpans = 10000

// SpanStore is the flush target of the stub agent's write buffer.
type SpanStore interface {
	Flush(ctx context.Context, spans []model.Span) error
	Spans(ctx context.Context) ([]model.Span, error)
	Reset(ctx context.Context) error
}

type MemoryStore struct {
	recorder *recorder.Recorder
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recorder: recorder.NewRecorder()}
}

func (s *MemoryStore) Flush(_ context.Context, spans []model.Span) error {
	s.recorder.TransmitBatch(spans)
	return nil
}

func (s *MemoryStore) Spans(context.Context) ([]model.Span, error) {
	return s.recorder.Spans(), nil
}

func (s *MemoryStore) Reset(context.Context) error {
	s.recorder.Reset()
	return nil
}

type ElasticsearchStore struct {
	client client.StoreClient
	index  string
	logger *zap.Logger
}

func NewElasticsearchStore(client client.StoreClient, index string, logger *zap.Logger) *ElasticsearchStore {
	return &ElasticsearchStore{
		client: client,
		index:  index,
		logger: logger,
	}
}

func (s *ElasticsearchStore) Flush(ctx context.Context, spans []model.Span) error {
	documents := make([]client.Document, len(spans))
	for i, span := range spans {
		documents[i] = client.Document{ID: span.SpanID, Body: span}
	}
	if err := s.client.BulkIndex(ctx, documents, s.index); err != nil {
		return fmt.Errorf("error storing %d spans: %w", len(spans), err)
	}
	return nil
}

func (s *ElasticsearchStore) Spans(ctx context.Context) ([]model.Span, error) {
	size := maxListedSpans
	sources, err := s.client.Search(ctx, client.MatchAll(), []string{s.index}, &size)
	if err != nil {
		return nil, fmt.Errorf("error listing spans: %w", err)
	}
	spans := make([]model.Span, 0, len(sources))
	for _, source := range sources {
		var span model.Span
		if err := sonic.Unmarshal(source, &span); err != nil {
			s.logger.Warn("Skipping unreadable span document", zap.Error(err))
			continue
		}
		spans = append(spans, span)
	}
	return spans, nil
}

func (s *ElasticsearchStore) Reset(ctx context.Context) error {
	if err := s.client.DeleteByQuery(ctx, client.MatchAll(), []string{s.index}); err != nil {
		return fmt.Errorf("error deleting spans: %w", err)
	}
	return nil
}
