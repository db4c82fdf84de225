// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Page is a normalized 1-based page request.
type Page struct {
	Number int // 1-based
	Size   int
}

// Offset returns the row offset of the page.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// ParsePage reads raw page/limit values, falling back to 1 and def, and
// clamps limit into [1, max].
func ParsePage(page, limit string, def, max int) Page {
	p := Page{
		Number: AtoiDefault(strings.TrimSpace(page), 1),
		Size:   AtoiDefault(strings.TrimSpace(limit), def),
	}
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = def
	}
	if max > 0 && p.Size > max {
		p.Size = max
	}
	return p
}

// PageCount returns the number of pages needed to show total rows.
func PageCount(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
