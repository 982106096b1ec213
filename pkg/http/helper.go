package http

import (
	"net/http"
	"strconv"
	"time"

	"eventmarket/pkg/config"
	apperrors "eventmarket/pkg/errors"
)

func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit := 0
	if s := query.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid limit parameter: " + s)
		}
		limit = v
	}

	var offset int64 = 0
	if s := query.Get("offset"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid offset parameter: " + s)
		}
		offset = v
	}

	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	return limit, offset, nil
}

// ExtractDuration reads a Go duration ("30s", "2m") from the query string.
// A missing parameter yields fallback.
func ExtractDuration(r *http.Request, name string, fallback time.Duration) (time.Duration, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, apperrors.InvalidInput("invalid " + name + " parameter: " + s)
	}
	return d, nil
}
