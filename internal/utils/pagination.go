// Package utils holds pagination helpers shared by the bridge handlers and
// the café API client.
package utils

import (
	"net/url"
	"strconv"
	"strings"
)

// Page bounds for paginated collection endpoints.
const (
	MaxPage     = 10000
	MaxPageSize = 100
)

// ParsePage converts a page query value to a page number in [1, MaxPage].
// Blank or unparsable input yields 1.
//
//	utils.ParsePage("3")   // 3
//	utils.ParsePage(" 0")  // 1
//	utils.ParsePage("abc") // 1
func ParsePage(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 1
	}
	return clamp(n, 1, MaxPage)
}

// PageQuery builds the page+size query of a paginated endpoint, clamping
// page to [1, MaxPage] and size to [1, MaxPageSize].
func PageQuery(page, size int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(clamp(page, 1, MaxPage)))
	q.Set("size", strconv.Itoa(clamp(size, 1, MaxPageSize)))
	return q
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
