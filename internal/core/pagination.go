package core

import "math"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	// MaxPage keeps (page-1)*page_size and offset+page_size within int.
	MaxPage = math.MaxInt / MaxPageSize
)

// PageRequest is a normalized page/page_size pair.
type PageRequest struct {
	Page     int
	PageSize int
}

// NormalizePage clamps page to [1, MaxPage], defaults page_size to 20 when
// < 1, and caps it at 100.
func NormalizePage(page, pageSize int) PageRequest {
	page = min(max(page, 1), MaxPage)
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return PageRequest{Page: page, PageSize: pageSize}
}

// Offset returns the number of rows to skip.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Page is one slice of an ordered result set.
type Page[T any] struct {
	Items    []T  `json:"items"`
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
}

// NewPage builds a Page. Items is never nil so it encodes as [].
func NewPage[T any](items []T, total int, req PageRequest) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:    items,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		HasNext:  req.Offset()+req.PageSize < total,
	}
}
