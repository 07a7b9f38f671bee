// Package pagination slices in-memory listings into pages.
package pagination

import (
	"fmt"
	"net/http"
	"strconv"
)

// MaxPerPage caps the page size a client may request.
const MaxPerPage = 100

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// DefaultParams returns the page used when only one of page/per_page is set.
func DefaultParams() Params {
	return Params{Page: 1, PerPage: 20}
}

// Offset is the index of the first item on the page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// FromRequest extracts pagination parameters from an HTTP request. ok is
// false when the request asks for no pagination at all. Malformed values
// are reported rather than silently replaced.
func FromRequest(r *http.Request) (p Params, ok bool, err error) {
	q := r.URL.Query()
	page, perPage := q.Get("page"), q.Get("per_page")
	if page == "" && perPage == "" {
		return Params{}, false, nil
	}

	p = DefaultParams()
	if page != "" {
		v, err := strconv.Atoi(page)
		if err != nil || v < 1 {
			return Params{}, false, fmt.Errorf("page must be a positive integer")
		}
		p.Page = v
	}
	if perPage != "" {
		v, err := strconv.Atoi(perPage)
		if err != nil || v < 1 || v > MaxPerPage {
			return Params{}, false, fmt.Errorf("per_page must be an integer between 1 and %d", MaxPerPage)
		}
		p.PerPage = v
	}
	return p, true, nil
}

// Result wraps a paginated response.
type Result[T any] struct {
	Items      []T  `json:"items"`
	TotalCount int  `json:"total_count"`
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// Slice returns the page of all described by params. A page past the end
// is empty, not an error.
func Slice[T any](all []T, params Params) Result[T] {
	total := len(all)
	totalPages := total / params.PerPage
	if total%params.PerPage > 0 {
		totalPages++
	}

	start := min(params.Offset(), total)
	end := min(start+params.PerPage, total)

	items := make([]T, end-start)
	copy(items, all[start:end])

	return Result[T]{
		Items:      items,
		TotalCount: total,
		Page:       params.Page,
		PerPage:    params.PerPage,
		TotalPages: totalPages,
		HasNext:    params.Page < totalPages,
		HasPrev:    params.Page > 1,
	}
}
