package common

import (
	"net/http"
	"strconv"
)

// ListParams carries cursor pagination parameters for the query boundary.
// Cursors are opaque to callers; limits are clamped to configured bounds.
type ListParams struct {
	Limit  int32
	Cursor string
}

// ExtractListParams reads limit and cursor from the request query string.
// Out-of-range limits are clamped rather than rejected.
func ExtractListParams(r *http.Request, defaultLimit, maxLimit int32) ListParams {
	params := ListParams{
		Limit:  defaultLimit,
		Cursor: r.URL.Query().Get("cursor"),
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 32); err == nil && n > 0 {
			params.Limit = int32(n)
		}
	}
	if params.Limit > maxLimit {
		params.Limit = maxLimit
	}

	return params
}
