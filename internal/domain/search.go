package domain

import "time"

// SearchDocument is the projection of a Product stored in the search index.
// It is always derived from a record, never written independently.
type SearchDocument struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewSearchDocument projects a product into its index representation.
func NewSearchDocument(p *Product) SearchDocument {
	return SearchDocument{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price,
		ImageURL:    p.ImageURL,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// Product converts the document back into a Product. Search results are
// served from the index alone, without a record store round trip.
func (d SearchDocument) Product() Product {
	return Product{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Category:    d.Category,
		Price:       d.Price,
		ImageURL:    d.ImageURL,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// Hit is one ranked search result.
type Hit struct {
	Document SearchDocument `json:"document"`
	Score    float64        `json:"score"`
}

// BulkFailure names a document the index rejected and why.
type BulkFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BulkResult summarizes a bulk indexing call.
type BulkResult struct {
	Indexed int           `json:"indexed"`
	Failed  []BulkFailure `json:"failed,omitempty"`
}

// IndexStatus reports what EnsureIndex did.
type IndexStatus string

const (
	IndexCreated       IndexStatus = "created"
	IndexAlreadyExists IndexStatus = "already_exists"
)

// FieldType is the index treatment of a document field.
type FieldType string

const (
	// FieldText is analyzed for full-text matching.
	FieldText FieldType = "text"
	// FieldKeyword is matched exactly, for filtering.
	FieldKeyword FieldType = "keyword"
	FieldNumber  FieldType = "number"
	FieldDate    FieldType = "date"
	// FieldStored is kept in the document but not searchable.
	FieldStored FieldType = "stored"
)

// Field describes one indexed field.
type Field struct {
	Name string
	Type FieldType
}

// Schema describes the index layout.
type Schema struct {
	Fields []Field
}

// Lookup returns the type of the named field.
func (s Schema) Lookup(name string) (FieldType, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return "", false
}

// Document field names.
const (
	FieldNameTitle       = "title"
	FieldNameDescription = "description"
	FieldNameCategory    = "category"
	FieldNamePrice       = "price"
	FieldNameImageURL    = "image_url"
	FieldNameCreatedAt   = "created_at"
	FieldNameUpdatedAt   = "updated_at"
)

// ProductSchema is the layout of the product index.
var ProductSchema = Schema{
	Fields: []Field{
		{Name: FieldNameTitle, Type: FieldText},
		{Name: FieldNameDescription, Type: FieldText},
		{Name: FieldNameCategory, Type: FieldKeyword},
		{Name: FieldNamePrice, Type: FieldNumber},
		{Name: FieldNameImageURL, Type: FieldStored},
		{Name: FieldNameCreatedAt, Type: FieldDate},
		{Name: FieldNameUpdatedAt, Type: FieldDate},
	},
}
