package gorm

import (
	"database/sql"
	"net/http"
	"strconv"
)

// sqlNullString creates a sql.NullString from a string.
func sqlNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// sqlNullInt64 creates a sql.NullInt64, treating zero as present.
func sqlNullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}

// MaxPaginationLimit is the maximum allowed limit for pagination queries.
// This protects against resource exhaustion from excessively large requests.
const MaxPaginationLimit = 1000

// ParseLimitParam parses the "limit" query parameter from an HTTP request.
// Returns defaultLimit if the parameter is missing or invalid, capped at
// MaxPaginationLimit.
func ParseLimitParam(r *http.Request, defaultLimit int) int {
	limit := defaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > MaxPaginationLimit {
		return MaxPaginationLimit
	}
	return limit
}
