package shared

import (
	"net/http"
	"strconv"
)

// Pagination carries page/limit parameters parsed from the query string.
type Pagination struct {
	Page  int
	Limit int
}

// Offset returns the row offset for the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// PageMeta describes a paginated response envelope.
type PageMeta struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	Count      int `json:"count"`
	TotalItems int `json:"totalItems"`
}

// NewPageMeta computes pagination metadata for a result set.
func NewPageMeta(p Pagination, count, totalItems int) PageMeta {
	totalPages := 0
	if p.Limit > 0 {
		totalPages = (totalItems + p.Limit - 1) / p.Limit
	}
	return PageMeta{Current: p.Page, Total: totalPages, Count: count, TotalItems: totalItems}
}

// ParsePagination reads page/limit query parameters with sane bounds.
func ParsePagination(r *http.Request) Pagination {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	return Pagination{Page: page, Limit: limit}
}
