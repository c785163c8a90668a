package client

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/Avi18971911/AugurSensor/pkg/elasticsearch/model"
	"github.com/bytedance/sonic"
)

func (a *StoreClientImpl) BulkIndex(
	ctx context.Context,
	documents []Document,
	index string,
) error {
	if len(documents) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, document := range documents {
		meta := map[string]interface{}{"index": map[string]interface{}{}}
		if document.ID != "" {
			meta = map[string]interface{}{"index": map[string]interface{}{"_id": document.ID}}
		}
		metaJSON, err := sonic.Marshal(meta)
		if err != nil {
			return fmt.Errorf("error marshaling meta to bulk index: %w", err)
		}
		buf.Write(metaJSON)
		buf.WriteByte('\n')

		dataJSON, err := sonic.Marshal(document.Body)
		if err != nil {
			return fmt.Errorf("error marshaling data to bulk index: %w", err)
		}
		buf.Write(dataJSON)
		buf.WriteByte('\n')
	}

	res, err := a.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		a.es.Bulk.WithIndex(index),
		a.es.Bulk.WithContext(ctx),
		a.es.Bulk.WithRefresh(a.refreshRate),
	)
	if err != nil {
		return fmt.Errorf("error bulk indexing: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index error: %s", res.String())
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("error reading bulk response: %w", err)
	}
	var bulkResponse model.BulkResponse
	if err := sonic.Unmarshal(body, &bulkResponse); err != nil {
		return fmt.Errorf("error decoding bulk response: %w", err)
	}
	return bulkItemsError(bulkResponse)
}

func (a *StoreClientImpl) DeleteByQuery(
	ctx context.Context,
	query map[string]interface{},
	indices []string,
) error {
	queryJSON, err := sonic.Marshal(query)
	if err != nil {
		return fmt.Errorf("error marshaling delete query: %w", err)
	}
	res, err := a.es.DeleteByQuery(
		indices,
		bytes.NewReader(queryJSON),
		a.es.DeleteByQuery.WithContext(ctx),
		a.es.DeleteByQuery.WithConflicts("proceed"),
		a.es.DeleteByQuery.WithRefresh(a.refreshRate != string(Async)),
	)
	if err != nil {
		return fmt.Errorf("failed to delete by query in Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("delete by query error: %s", res.String())
	}
	return nil
}

func bulkItemsError(response model.BulkResponse) error {
	if !response.Errors {
		return nil
	}
	failed := 0
	var first *model.BulkItemResponse
	for _, item := range response.Items {
		for _, result := range item {
			if result.Error == nil {
				continue
			}
			failed++
			if first == nil {
				r := result
				first = &r
			}
		}
	}
	if first == nil {
		return ErrBulkItemsFailed
	}
	return fmt.Errorf("%w: %d documents, first %s: %s", ErrBulkItemsFailed, failed, first.Error.Type, first.Error.Reason)
}
