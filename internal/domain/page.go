package domain

// Cursor is the pagination state of one collection.
// It is replaced wholesale by every page response.
type Cursor struct {
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalPages    int   `json:"total_pages"`
	TotalElements int64 `json:"total_elements"`
	HasNext       bool  `json:"has_next"`
	HasPrevious   bool  `json:"has_previous"`
}

// SortDir is the sort direction of a page request.
type SortDir string

// Sort directions.
const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// PageRequest selects one page of a collection.
type PageRequest struct {
	Page   int
	Size   int
	SortBy string
	Dir    SortDir
}

// Page is one decoded page of canonical entities.
type Page[T any] struct {
	Items  []T
	Cursor Cursor
}
