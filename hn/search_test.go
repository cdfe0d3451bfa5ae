package hn

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSearchJSON = `{
  "hits": [{
    "objectID": "12345",
    "title": "Show HN: A New Way to Build Things",
    "url": "https://example.com/article",
    "author": "pg",
    "points": 150,
    "num_comments": 42,
    "created_at": "2024-01-01T00:00:00.000Z",
    "_tags": ["story", "author_pg", "story_12345"]
  }],
  "nbHits": 1,
  "page": 0,
  "nbPages": 1,
  "hitsPerPage": 20
}`

func TestSearchRouting(t *testing.T) {
	tests := []struct {
		sortBy string
		path   string
	}{
		{sortBy: "", path: "/algolia/search"},
		{sortBy: SortRelevance, path: "/algolia/search"},
		{sortBy: "popularity", path: "/algolia/search"},
		{sortBy: SortDate, path: "/algolia/search_by_date"},
	}
	for _, tt := range tests {
		t.Run(tt.sortBy, func(t *testing.T) {
			f, c := newFakeAPI(t)
			f.set("/algolia/search", http.StatusOK, sampleSearchJSON)
			f.set("/algolia/search_by_date", http.StatusOK, sampleSearchJSON)

			_, err := c.Search(context.Background(), SearchParams{Query: "rust", SortBy: tt.sortBy})
			require.NoError(t, err)
			assert.Equal(t, 1, f.hitCount(tt.path))
			assert.Equal(t, 1, f.totalHits())
		})
	}
}

func TestSearchParams(t *testing.T) {
	f, c := newFakeAPI(t)
	f.set("/algolia/search", http.StatusOK, sampleSearchJSON)
	ctx := context.Background()

	res, err := c.Search(ctx, SearchParams{Query: "go generics"})
	require.NoError(t, err)
	q := f.query("/algolia/search")
	assert.Equal(t, "go generics", q.Get("query"))
	assert.Equal(t, "0", q.Get("page"))
	assert.Equal(t, "20", q.Get("hitsPerPage"))
	assert.False(t, q.Has("tags"))
	assert.False(t, q.Has("numericFilters"))

	require.Len(t, res.Hits, 1)
	hit := res.Hits[0]
	assert.Equal(t, "12345", hit.ObjectID)
	assert.Equal(t, "pg", hit.Author)
	require.NotNil(t, hit.Points)
	assert.Equal(t, 150, *hit.Points)
	require.NotNil(t, hit.NumComments)
	assert.Equal(t, 42, *hit.NumComments)
	assert.Equal(t, []string{"story", "author_pg", "story_12345"}, hit.Tags)
	assert.Equal(t, 1, res.NbHits)
	assert.Equal(t, 1, res.NbPages)

	_, err = c.Search(ctx, SearchParams{
		Query: "go", Tags: "story", NumericFilters: "points>100", Page: 2, HitsPerPage: 50,
	})
	require.NoError(t, err)
	q = f.query("/algolia/search")
	assert.Equal(t, "story", q.Get("tags"))
	assert.Equal(t, "points>100", q.Get("numericFilters"))
	assert.Equal(t, "2", q.Get("page"))
	assert.Equal(t, "50", q.Get("hitsPerPage"))
}

func TestSearchSoftFail(t *testing.T) {
	f, c := newFakeAPI(t)
	f.set("/algolia/search_by_date", http.StatusOK, `<html>not json</html>`)
	ctx := context.Background()

	for _, p := range []SearchParams{
		{Query: "x", HitsPerPage: 7},
		{Query: "x", HitsPerPage: 7, SortBy: SortDate},
	} {
		res, err := c.Search(ctx, p)
		require.NoError(t, err)
		assert.Zero(t, res.NbHits)
		assert.NotNil(t, res.Hits)
		assert.Empty(t, res.Hits)
		assert.Equal(t, 7, res.HitsPerPage)
	}
}

func TestSearchTransportFault(t *testing.T) {
	c := NewClient(WithDoer(failingDoer{match: "search"}))

	res, err := c.Search(context.Background(), SearchParams{Query: "x"})
	assert.Error(t, err)
	assert.Nil(t, res)
}
