package jsonapi

import (
	"fmt"
	"net/url"
	"strconv"
)

// Page describes an offset-paginated slice of a collection.
// The total size is not known; a full page implies a next one may exist.
type Page struct {
	Limit   int    // Requested page size
	Offset  int    // Items skipped
	Count   int    // Items in this page
	BaseURL string // Collection URL used for links, query included
}

// ParsePage extracts limit and offset from the query.
// Accepts page[limit]/page[offset] and plain limit/offset.
func ParsePage(query url.Values, defaultLimit, maxLimit int) (limit, offset int, err error) {
	limit, offset = defaultLimit, 0

	parse := func(names ...string) (int, bool, error) {
		for _, name := range names {
			v := query.Get(name)
			if v == "" {
				continue
			}
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return 0, false, fmt.Errorf("%s must be a non-negative integer", name)
			}
			return n, true, nil
		}
		return 0, false, nil
	}

	if n, ok, err := parse("page[limit]", "limit"); err != nil {
		return 0, 0, err
	} else if ok && n > 0 {
		limit = n
	}
	if n, ok, err := parse("page[offset]", "offset"); err != nil {
		return 0, 0, err
	} else if ok {
		offset = n
	}

	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, offset, nil
}

// HasPrev returns true if there is a previous page.
func (p *Page) HasPrev() bool {
	return p.Offset > 0
}

// HasNext returns true when the page is full.
func (p *Page) HasNext() bool {
	return p.Limit > 0 && p.Count >= p.Limit
}

// Links generates pagination links.
func (p *Page) Links() *Links {
	if p.BaseURL == "" {
		return nil
	}
	links := &Links{Self: p.buildURL(p.Offset)}
	if p.HasPrev() {
		prev := p.Offset - p.Limit
		if prev < 0 {
			prev = 0
		}
		links.Prev = p.buildURL(prev)
	}
	if p.HasNext() {
		links.Next = p.buildURL(p.Offset + p.Limit)
	}
	return links
}

func (p *Page) buildURL(offset int) string {
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return p.BaseURL
	}

	q := u.Query()
	q.Del("limit")
	q.Del("offset")
	q.Set("page[limit]", strconv.Itoa(p.Limit))
	q.Set("page[offset]", strconv.Itoa(offset))
	u.RawQuery = q.Encode()

	return u.String()
}

// Meta returns pagination metadata.
func (p *Page) Meta() Meta {
	return Meta{
		"limit":  p.Limit,
		"offset": p.Offset,
		"count":  p.Count,
	}
}
