package models

import "math"

const (
	DefaultPerPage = 50
	MaxPerPage     = 500
)

// Page is one page of a listing. Page numbers start at 1.
type Page[T any] struct {
	Items       []T   `json:"items"`
	Page        int   `json:"page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	HasNextPage bool  `json:"has_next_page"`
}

// NormalizePaging clamps perPage to 1..MaxPerPage and page to 1..math.MaxInt/perPage so the
// offset never overflows.
func NormalizePaging(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if maxPage := math.MaxInt / perPage; page > maxPage {
		page = maxPage
	}
	return page, perPage
}

func Offset(page, perPage int) int {
	return (page - 1) * perPage
}

func NewPage[T any](items []T, page, perPage int, total int64) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{
		Items:       items,
		Page:        page,
		PerPage:     perPage,
		Total:       total,
		HasNextPage: int64(Offset(page, perPage)+len(items)) < total,
	}
}

// Paginate slices an already ordered result set.
func Paginate[T any](all []T, page, perPage int) *Page[T] {
	page, perPage = NormalizePaging(page, perPage)
	start := Offset(page, perPage)
	if start > len(all) {
		start = len(all)
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	items := make([]T, end-start)
	copy(items, all[start:end])
	return NewPage(items, page, perPage, int64(len(all)))
}
