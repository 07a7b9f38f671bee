package elasticsearch

import (
	"github.com/utafrali/catalogsearch/internal/domain"
)

// DefaultIndexName is the default Elasticsearch index used for product documents.
const DefaultIndexName = "products"

// buildIndexMapping returns the index creation body for schema. Text fields
// use the standard analyzer, which lowercases tokens.
func buildIndexMapping(schema domain.Schema) map[string]interface{} {
	properties := map[string]interface{}{
		"id": map[string]interface{}{"type": "keyword"},
	}
	for _, f := range schema.Fields {
		properties[f.Name] = fieldMapping(f.Type)
	}

	return map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]interface{}{
			"properties": properties,
		},
	}
}

func fieldMapping(t domain.FieldType) map[string]interface{} {
	switch t {
	case domain.FieldText:
		return map[string]interface{}{"type": "text"}
	case domain.FieldKeyword:
		return map[string]interface{}{"type": "keyword"}
	case domain.FieldNumber:
		return map[string]interface{}{"type": "double"}
	case domain.FieldDate:
		return map[string]interface{}{"type": "date"}
	default:
		return map[string]interface{}{"type": "keyword", "index": false}
	}
}
