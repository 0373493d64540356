package utils

import (
	"net/http"
	"strconv"
	"strings"
)

type QueryOptions struct {
	Page    int
	Limit   int
	Refresh bool
	Search  string
}

func ParseQueryOptions(r *http.Request) QueryOptions {
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = 0
	}

	return QueryOptions{
		Page:    page,
		Limit:   limit,
		Refresh: ForceFlag(r),
		Search:  q.Get("search"),
	}
}

// ForceFlag reports whether the request asks to bypass the cache with
// ?refresh=1 or ?refresh=true.
func ForceFlag(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("refresh"))
	return err == nil && v
}

// Paginate returns page opts.Page of items. A zero limit returns everything.
func Paginate[T any](items []T, opts QueryOptions) []T {
	if opts.Limit <= 0 {
		return items
	}
	start := (opts.Page - 1) * opts.Limit
	if start >= len(items) {
		return []T{}
	}
	end := min(start+opts.Limit, len(items))
	return items[start:end]
}

func ContainsIgnoreCase(str, substr string) bool {
	return strings.Contains(strings.ToLower(str), strings.ToLower(substr))
}
