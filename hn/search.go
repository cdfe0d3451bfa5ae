package hn

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Search queries Algolia. SortBy "date" uses the date-sorted endpoint; anything else,
// including the empty string, is sorted by relevance.
func (c *Client) Search(ctx context.Context, p SearchParams) (*SearchResult, error) {
	hitsPerPage := p.HitsPerPage
	if hitsPerPage <= 0 {
		hitsPerPage = defaultHitsPerPage
	}

	endpoint := "search"
	if p.SortBy == SortDate {
		endpoint = "search_by_date"
	}

	q := url.Values{}
	q.Set("query", p.Query)
	q.Set("page", strconv.Itoa(p.Page))
	q.Set("hitsPerPage", strconv.Itoa(hitsPerPage))
	if p.Tags != "" {
		q.Set("tags", p.Tags)
	}
	if p.NumericFilters != "" {
		q.Set("numericFilters", p.NumericFilters)
	}

	var result SearchResult
	ok, err := c.getJSON(ctx, fmt.Sprintf("%s/%s?%s", c.searchBase, endpoint, q.Encode()), &result)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", p.Query, err)
	}
	if !ok {
		return &SearchResult{Hits: []SearchHit{}, HitsPerPage: hitsPerPage}, nil
	}
	if result.Hits == nil {
		result.Hits = []SearchHit{}
	}
	return &result, nil
}
