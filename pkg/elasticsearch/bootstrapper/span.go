package bootstrapper

const SpanIndexName = "span_index"

// spanIndex maps the span wire record; data and stack are kept as stored.
var spanIndex = map[string]interface{}{
	"settings": map[string]interface{}{
		"number_of_shards":   1,
		"number_of_replicas": 0,
	},
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"t": map[string]interface{}{
				"type": "keyword",
			},
			"p": map[string]interface{}{
				"type": "keyword",
			},
			"s": map[string]interface{}{
				"type": "keyword",
			},
			"k": map[string]interface{}{
				"type": "integer",
			},
			"n": map[string]interface{}{
				"type": "keyword",
			},
			"ts": map[string]interface{}{
				"type":   "date",
				"format": "epoch_millis",
			},
			"d": map[string]interface{}{
				"type": "long",
			},
			"ec": map[string]interface{}{
				"type": "integer",
			},
			"data": map[string]interface{}{
				"type":    "object",
				"enabled": false,
			},
			"stack": map[string]interface{}{
				"type":    "object",
				"enabled": false,
			},
			"f": map[string]interface{}{
				"properties": map[string]interface{}{
					"e": map[string]interface{}{
						"type": "keyword",
					},
					"h": map[string]interface{}{
						"type": "keyword",
					},
				},
			},
		},
	},
}
