package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Avi18971911/AugurSensor/pkg/elasticsearch/model"
	"github.com/bytedance/sonic"
)

func (a *StoreClientImpl) Search(
	ctx context.Context,
	query map[string]interface{},
	indices []string,
	queryResultSize *int,
) ([]json.RawMessage, error) {
	queryJSON, err := sonic.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}
	res, err := a.es.Search(
		a.es.Search.WithContext(ctx),
		a.es.Search.WithIndex(indices...),
		a.es.Search.WithBody(bytes.NewReader(queryJSON)),
		a.es.Search.WithSize(getQuerySize(queryResultSize)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("failed to execute query: %s", res.String())
	}

	var esResponse model.EsResponse
	if err := decodeBody(res.Body, &esResponse); err != nil {
		return nil, err
	}

	results := make([]json.RawMessage, 0, len(esResponse.Hits.HitArray))
	for _, hit := range esResponse.Hits.HitArray {
		results = append(results, hit.Source)
	}
	return results, nil
}

func (a *StoreClientImpl) Count(
	ctx context.Context,
	query map[string]interface{},
	indices []string,
) (int64, error) {
	queryJSON, err := sonic.Marshal(query)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal query: %w", err)
	}
	res, err := a.es.Count(
		a.es.Count.WithContext(ctx),
		a.es.Count.WithIndex(indices...),
		a.es.Count.WithBody(bytes.NewReader(queryJSON)),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to execute query: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("failed to execute query: %s", res.String())
	}

	var countResponse model.CountResponse
	if err := decodeBody(res.Body, &countResponse); err != nil {
		return 0, err
	}
	return countResponse.Count, nil
}

func decodeBody(body io.Reader, target interface{}) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := sonic.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

func getQuerySize(querySize *int) int {
	if querySize == nil {
		return SearchResultSize
	}
	return *querySize
}
