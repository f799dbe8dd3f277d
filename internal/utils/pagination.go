// Package utils holds small helpers shared by the handlers and services,
// independent of the farm domain.
package utils

import "strconv"

// AtoiDefault parses s, returning def when s is empty or not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Page is a normalized page request plus the totals of its result.
type Page struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// NewPage clamps page to >= 1 and limit to [1, max], using def for a
// non-positive limit. A max <= 0 disables the cap.
func NewPage(page, limit, def, max int) Page {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = def
	}
	if max > 0 && limit > max {
		limit = max
	}
	return Page{Page: page, Limit: limit}
}

// Offset is the number of rows before this page.
func (p Page) Offset() int { return (p.Page - 1) * p.Limit }

// WithTotal fills Total and the ceiling page count.
func (p Page) WithTotal(total int64) Page {
	p.Total = total
	if p.Limit > 0 {
		p.Pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return p
}
