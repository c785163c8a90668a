package client

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/elastic/go-elasticsearch/v8"
)

const SearchResultSize = 10

type RefreshRate string

const (
	// Wait for the changes made by the request to be made visible by a refresh before replying.
	Wait RefreshRate = "wait_for"
	// Immediate Refresh the relevant primary and replica shards (not the whole index) immediately after the operation occurs.
	Immediate RefreshRate = "true"
	// Async Take no refresh related actions. The changes made by this request will be made visible at some point after the request returns.
	Async RefreshRate = "false"
)

var ErrBulkItemsFailed = errors.New("bulk request failed for some documents")

// Document is one entry of a bulk index request. An empty ID lets
// Elasticsearch assign one.
type Document struct {
	ID   string
	Body interface{}
}

type StoreClient interface {
	// BulkIndex indexes (inserts) multiple documents in the same index
	// https://www.elastic.co/guide/en/elasticsearch/reference/master/docs-bulk.html
	BulkIndex(ctx context.Context, documents []Document, index string) error
	// Search returns the _source of the matching documents
	// https://www.elastic.co/guide/en/elasticsearch/reference/master/search-search.html
	// queryResultSize is the number of results to return, nil for default
	Search(ctx context.Context, query map[string]interface{}, indices []string, queryResultSize *int) ([]json.RawMessage, error)
	// DeleteByQuery deletes the documents matching the query
	// https://www.elastic.co/guide/en/elasticsearch/reference/current/docs-delete-by-query.html
	DeleteByQuery(ctx context.Context, query map[string]interface{}, indices []string) error
	// Count counts the number of documents in the index matching the query
	// https://www.elastic.co/guide/en/elasticsearch/reference/master/search-count.html
	Count(ctx context.Context, query map[string]interface{}, indices []string) (int64, error)
}

type StoreClientImpl struct {
	es          *elasticsearch.Client
	refreshRate string
}

func NewStoreClientImpl(es *elasticsearch.Client, refreshRate RefreshRate) *StoreClientImpl {
	return &StoreClientImpl{es: es, refreshRate: string(refreshRate)}
}

// MatchAll selects every document.
func MatchAll() map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"match_all": map[string]interface{}{},
		},
	}
}

// Term selects the documents whose keyword field equals value.
func Term(field string, value string) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				field: value,
			},
		},
	}
}
