package pagination

import (
	"fmt"
	"strconv"
)

// Params represents pagination query parameters
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// Constants
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
	MinLimit     = 1
)

// Parse reads page and limit query values. Both empty means no
// pagination and returns nil. Out of range values are clamped.
func Parse(pageStr, limitStr string) (*Params, error) {
	if pageStr == "" && limitStr == "" {
		return nil, nil
	}

	page := DefaultPage
	limit := DefaultLimit

	if pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil {
			return nil, fmt.Errorf("invalid page parameter: %w", err)
		}
		if p > 1 {
			page = p
		}
	}

	if limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, fmt.Errorf("invalid limit parameter: %w", err)
		}
		switch {
		case l < MinLimit:
			limit = MinLimit
		case l > MaxLimit:
			limit = MaxLimit
		default:
			limit = l
		}
	}

	return &Params{Page: page, Limit: limit, Offset: (page - 1) * limit}, nil
}

// CalculateTotalPages calculates total pages from total count and limit
func CalculateTotalPages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	totalPages := total / limit
	if total%limit > 0 {
		totalPages++
	}
	return totalPages
}

// Window returns the page of items p selects. A nil p returns items unchanged.
func Window[T any](items []T, p *Params) []T {
	if p == nil {
		return items
	}
	if p.Offset >= len(items) {
		return []T{}
	}
	end := p.Offset + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[p.Offset:end]
}
