package api

import (
	"net/http"
	"strconv"
)

// The query endpoints list in two shapes: the alert listing is paginated
// (page/per_page plus a total count), while the ledger and execution-link
// feeds are bounded newest-first slices (limit). Both query forms are
// parsed here.

const (
	defaultPage    = 1
	defaultPerPage = 50
	maxPerPage     = 200

	maxFeedLimit = 500
)

// PaginationParams holds the parsed page/per_page pair for the alert
// listing.
type PaginationParams struct {
	Page    int
	PerPage int
}

// ParsePagination reads page and per_page from the query string. Missing,
// malformed, or non-positive values fall back to page=1 and per_page=50;
// per_page is clamped to 200.
func ParsePagination(r *http.Request) PaginationParams {
	p := PaginationParams{Page: defaultPage, PerPage: defaultPerPage}

	if n, ok := queryInt(r, "page"); ok {
		p.Page = n
	}
	if n, ok := queryInt(r, "per_page"); ok {
		p.PerPage = n
		if p.PerPage > maxPerPage {
			p.PerPage = maxPerPage
		}
	}

	return p
}

// ParseLimit reads the ?limit= bound used by the newest-first feeds.
// Missing or malformed values fall back to def; values above 500 clamp
// to 500.
func ParseLimit(r *http.Request, def int) int {
	n, ok := queryInt(r, "limit")
	if !ok {
		return def
	}
	if n > maxFeedLimit {
		return maxFeedLimit
	}
	return n
}

// queryInt reads one positive integer query parameter.
func queryInt(r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Offset returns the row offset of the current page.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// TotalPages returns how many pages the given row count spans.
func (p PaginationParams) TotalPages(total int64) int {
	if p.PerPage <= 0 {
		return 0
	}
	pages := int(total) / p.PerPage
	if int(total)%p.PerPage != 0 {
		pages++
	}
	return pages
}
