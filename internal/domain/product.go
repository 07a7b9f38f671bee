package domain

import (
	"strings"
	"time"
)

// Product is a catalog item as stored in the record store.
type Product struct {
	ID          string    `json:"id" bson:"_id"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description" bson:"description"`
	Category    string    `json:"category" bson:"category"`
	Price       float64   `json:"price" bson:"price"`
	ImageURL    string    `json:"image_url" bson:"image_url"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

// ProductInput carries the caller-controlled fields of a product. Identity
// and timestamps are always assigned by the catalog, never by the caller.
type ProductInput struct {
	Title       string  `json:"title" validate:"notblank,max=500"`
	Description string  `json:"description" validate:"max=10000"`
	Category    string  `json:"category" validate:"max=200"`
	Price       float64 `json:"price" validate:"gte=0"`
	ImageURL    string  `json:"image_url" validate:"omitempty,max=2048"`
}

// Normalize trims surrounding whitespace from the textual fields.
func (in ProductInput) Normalize() ProductInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	return in
}

// Apply overwrites the caller-controlled fields of p with in.
func (in ProductInput) Apply(p *Product) {
	p.Title = in.Title
	p.Description = in.Description
	p.Category = in.Category
	p.Price = in.Price
	p.ImageURL = in.ImageURL
}
