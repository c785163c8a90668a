package model

// BulkResponse reports per document outcomes of a bulk request, which
// answers 200 even when some documents failed.
type BulkResponse struct {
	Errors bool                          `json:"errors"`
	Items  []map[string]BulkItemResponse `json:"items"`
}

type BulkItemResponse struct {
	ID     string     `json:"_id"`
	Index  string     `json:"_index"`
	Status int        `json:"status"`
	Error  *ItemError `json:"error,omitempty"`
}

type ItemError struct {
	Type   string `json:"type"`   // Type of error (e.g., version_conflict_engine_exception)
	Reason string `json:"reason"` // Failure reason
}
