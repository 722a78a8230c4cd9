package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Validation errors for search queries. Neither triggers an embedding call.
var (
	ErrEmptyQuery   = errors.New("query cannot be empty")
	ErrQueryTooLong = errors.New("query too long")
)

// SearchQuery represents a search request.
type SearchQuery struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// QueryLimits bounds a SearchQuery during validation.
type QueryLimits struct {
	DefaultLimit   int
	MaxLimit       int
	MaxQueryLength int // in characters; 0 disables the check
}

// Validate rejects over-long or blank text, trims the query and normalizes the limit.
// The length cap applies to the query as sent, surrounding whitespace included.
func (q *SearchQuery) Validate(l QueryLimits) error {
	if n := utf8.RuneCountInString(q.Query); l.MaxQueryLength > 0 && n > l.MaxQueryLength {
		return fmt.Errorf("%w: %d characters, limit is %d", ErrQueryTooLong, n, l.MaxQueryLength)
	}
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return ErrEmptyQuery
	}
	if q.Limit <= 0 {
		q.Limit = l.DefaultLimit
	}
	if q.Limit <= 0 {
		q.Limit = 3
	}
	if l.MaxLimit > 0 && q.Limit > l.MaxLimit {
		q.Limit = l.MaxLimit
	}
	return nil
}

// IsValidationError reports whether err is a query validation failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyQuery) || errors.Is(err, ErrQueryTooLong)
}
