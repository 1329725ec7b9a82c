package document

import (
	"net/url"
	"strconv"

	"github.com/roach88/jsonapi/internal/queryir"
)

// DefaultPageLimit is the page size when page[limit] is absent.
const DefaultPageLimit = 10

// Paginator implements page[offset] / page[limit] pagination.
type Paginator struct {
	Offset int
	Limit  int
}

// NewPaginator reads page[offset] and page[limit] from a request.
// Non-integer values fall back to offset 0 and defaultLimit.
func NewPaginator(req *queryir.Request, defaultLimit int) Paginator {
	return Paginator{
		Offset: req.PageInt("offset", 0),
		Limit:  req.PageInt("limit", defaultLimit),
	}
}

// Enabled reports whether the window applies. A negative offset or a limit
// below one disables pagination: all records are returned.
func (p Paginator) Enabled() bool {
	return p.Offset >= 0 && p.Limit >= 1
}

// LastOffset returns the offset of the last page for total records.
func LastOffset(total, limit int) int {
	if limit < 1 {
		return 0
	}
	return max(0, (max(total-1, 0)/limit)*limit)
}

// Links returns self, first and last links, plus prev and next when those
// pages exist. Each link is u with page[offset] and page[limit] rewritten;
// other query parameters are kept. Returns nil when pagination is disabled.
func (p Paginator) Links(u *url.URL, total int) Links {
	if !p.Enabled() {
		return nil
	}

	last := LastOffset(total, p.Limit)
	links := Links{
		"self":  p.url(u, p.Offset),
		"first": p.url(u, 0),
		"last":  p.url(u, last),
	}
	if prev := p.Offset - p.Limit; prev >= 0 {
		links["prev"] = p.url(u, prev)
	}
	if next := p.Offset + p.Limit; next <= last {
		links["next"] = p.url(u, next)
	}
	return links
}

// Meta returns {total, limit, offset}, or nil when pagination is disabled.
func (p Paginator) Meta(total int) Meta {
	if !p.Enabled() {
		return nil
	}
	return Meta{"total": total, "limit": p.Limit, "offset": p.Offset}
}

func (p Paginator) url(u *url.URL, offset int) string {
	q := u.Query()
	q.Set("page[offset]", strconv.Itoa(offset))
	q.Set("page[limit]", strconv.Itoa(p.Limit))

	out := *u
	out.RawQuery = q.Encode()
	out.Fragment = ""
	return out.String()
}
