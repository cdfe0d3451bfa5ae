package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielmmetz/hn-tools/hn"
	"github.com/danielmmetz/hn-tools/readability"
)

const (
	defaultCommentDepth = 3
	maxCommentDepth     = 10
	defaultStoryLimit   = 30
	maxStoryLimit       = 100
	defaultHitsPerPage  = 20
	maxHitsPerPage      = 100
)

type storySummary struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url,omitempty"`
	By          string `json:"by"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	Time        int64  `json:"time"`
}

type storiesPayload struct {
	Category hn.Category    `json:"category"`
	Count    int            `json:"count"`
	Stories  []storySummary `json:"stories"`
}

type searchHit struct {
	ID          string   `json:"id"`
	Title       string   `json:"title,omitempty"`
	URL         string   `json:"url,omitempty"`
	Author      string   `json:"author"`
	Points      *int     `json:"points"`
	NumComments *int     `json:"numComments"`
	CreatedAt   string   `json:"createdAt"`
	Tags        []string `json:"tags"`
	StoryText   string   `json:"storyText,omitempty"`
	CommentText string   `json:"commentText,omitempty"`
}

type searchPayload struct {
	Query      string      `json:"query"`
	TotalHits  int         `json:"totalHits"`
	Page       int         `json:"page"`
	TotalPages int         `json:"totalPages"`
	Hits       []searchHit `json:"hits"`
}

type articlePayload struct {
	ID      int    `json:"id"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Byline  string `json:"byline,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
	Content string `json:"content"`
}

func itemMissing(id int) error { return notFound("Item %d does not exist", id) }

func (r *Registry) registerReadTools() {
	idParam := Param{Name: "id", Type: "integer", Required: true, Description: "Item id"}

	r.add(&Tool{
		Name:        "hn_get_item",
		Description: "Fetch a single story, comment, job, poll or poll option by id.",
		Params:      []Param{idParam},
		call:        r.getItem,
	})
	r.add(&Tool{
		Name:        "hn_get_item_with_comments",
		Description: "Fetch an item together with its comment tree, up to the given depth.",
		Params: []Param{
			idParam,
			{Name: "depth", Type: "integer", Description: fmt.Sprintf("Comment levels to expand, 1-%d (default %d)", maxCommentDepth, defaultCommentDepth)},
		},
		call: r.getItemWithComments,
	})
	r.add(&Tool{
		Name:        "hn_get_user",
		Description: "Fetch a user's public profile.",
		Params:      []Param{{Name: "username", Type: "string", Required: true, Description: "Case-sensitive user id"}},
		call:        r.getUser,
	})
	categories := make([]string, 0, len(hn.Categories()))
	for _, c := range hn.Categories() {
		categories = append(categories, string(c))
	}
	r.add(&Tool{
		Name:        "hn_get_stories",
		Description: "List stories from one of the front-page rankings.",
		Params: []Param{
			{Name: "category", Type: "string", Description: "One of " + strings.Join(categories, ", ") + " (default top)"},
			{Name: "limit", Type: "integer", Description: fmt.Sprintf("Stories to return, 1-%d (default %d)", maxStoryLimit, defaultStoryLimit)},
		},
		call: r.getStories,
	})
	r.add(&Tool{
		Name:        "hn_search",
		Description: "Full-text search over stories and comments.",
		Params: []Param{
			{Name: "query", Type: "string", Required: true, Description: "Search terms"},
			{Name: "sortBy", Type: "string", Description: "relevance or date (default relevance)"},
			{Name: "tags", Type: "string", Description: "Tag filter, e.g. story, comment, author_pg"},
			{Name: "page", Type: "integer", Description: "Zero-based page (default 0)"},
			{Name: "hitsPerPage", Type: "integer", Description: fmt.Sprintf("Hits per page, 1-%d (default %d)", maxHitsPerPage, defaultHitsPerPage)},
			{Name: "numericFilters", Type: "string", Description: "Numeric filter, e.g. points>100"},
		},
		call: r.search,
	})
	r.add(&Tool{
		Name:        "hn_get_updates",
		Description: "List recently changed items and profiles.",
		Params:      []Param{},
		call:        r.getUpdates,
	})
	if r.deps.Articles != nil {
		r.add(&Tool{
			Name:        "hn_get_article",
			Description: "Fetch the page a story links to and return its reader-mode content.",
			Params:      []Param{idParam},
			call:        r.getArticle,
		})
	}
}

type idArgs struct {
	ID int `json:"id"`
}

func (r *Registry) getItem(ctx context.Context, args json.RawMessage) (any, error) {
	var p idArgs
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if err := checkID("id", p.ID); err != nil {
		return nil, err
	}

	item, err := r.deps.Reader.GetItem(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", p.ID, err)
	}
	if item == nil {
		return nil, itemMissing(p.ID)
	}
	return item, nil
}

func (r *Registry) getItemWithComments(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		ID    int  `json:"id"`
		Depth *int `json:"depth"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if err := checkID("id", p.ID); err != nil {
		return nil, err
	}
	depth := intArg(p.Depth, defaultCommentDepth)
	if err := checkRange("depth", depth, 1, maxCommentDepth); err != nil {
		return nil, err
	}

	item, err := r.deps.Reader.GetItemWithComments(ctx, p.ID, depth)
	if err != nil {
		return nil, fmt.Errorf("get item %d with comments: %w", p.ID, err)
	}
	if item == nil {
		return nil, itemMissing(p.ID)
	}
	return item, nil
}

func (r *Registry) getUser(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		Username string `json:"username"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if p.Username == "" {
		return nil, invalid("username is required")
	}

	user, err := r.deps.Reader.GetUser(ctx, p.Username)
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", p.Username, err)
	}
	if user == nil {
		return nil, notFound("User %q does not exist", p.Username)
	}
	return user, nil
}

func (r *Registry) getStories(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		Category string `json:"category"`
		Limit    *int   `json:"limit"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	category := hn.CategoryTop
	if p.Category != "" {
		category = hn.Category(p.Category)
	}
	if !category.Valid() {
		return nil, invalid("category must be one of %v", hn.Categories())
	}
	limit := intArg(p.Limit, defaultStoryLimit)
	if err := checkRange("limit", limit, 1, maxStoryLimit); err != nil {
		return nil, err
	}

	stories, err := r.deps.Reader.GetStories(ctx, category, limit)
	if err != nil {
		return nil, fmt.Errorf("get %s stories: %w", category, err)
	}
	out := storiesPayload{Category: category, Count: len(stories), Stories: make([]storySummary, 0, len(stories))}
	for _, s := range stories {
		out.Stories = append(out.Stories, storySummary{
			ID:          s.ID,
			Title:       s.Title,
			URL:         s.URL,
			By:          s.By,
			Score:       s.Score,
			Descendants: s.Descendants,
			Time:        s.Time,
		})
	}
	return out, nil
}

func (r *Registry) search(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		Query          string `json:"query"`
		SortBy         string `json:"sortBy"`
		Tags           string `json:"tags"`
		Page           *int   `json:"page"`
		HitsPerPage    *int   `json:"hitsPerPage"`
		NumericFilters string `json:"numericFilters"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Query) == "" {
		return nil, invalid("query is required")
	}
	sortBy := hn.SortRelevance
	if p.SortBy != "" {
		sortBy = p.SortBy
	}
	if sortBy != hn.SortRelevance && sortBy != hn.SortDate {
		return nil, invalid("sortBy must be %q or %q", hn.SortRelevance, hn.SortDate)
	}
	page := intArg(p.Page, 0)
	if page < 0 {
		return nil, invalid("page must not be negative")
	}
	hitsPerPage := intArg(p.HitsPerPage, defaultHitsPerPage)
	if err := checkRange("hitsPerPage", hitsPerPage, 1, maxHitsPerPage); err != nil {
		return nil, err
	}

	res, err := r.deps.Reader.Search(ctx, hn.SearchParams{
		Query:          p.Query,
		SortBy:         sortBy,
		Tags:           p.Tags,
		Page:           page,
		HitsPerPage:    hitsPerPage,
		NumericFilters: p.NumericFilters,
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", p.Query, err)
	}
	out := searchPayload{
		Query:      p.Query,
		TotalHits:  res.NbHits,
		Page:       res.Page,
		TotalPages: res.NbPages,
		Hits:       make([]searchHit, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		tags := h.Tags
		if tags == nil {
			tags = []string{}
		}
		out.Hits = append(out.Hits, searchHit{
			ID:          h.ObjectID,
			Title:       h.Title,
			URL:         h.URL,
			Author:      h.Author,
			Points:      h.Points,
			NumComments: h.NumComments,
			CreatedAt:   h.CreatedAt,
			Tags:        tags,
			StoryText:   h.StoryText,
			CommentText: h.CommentText,
		})
	}
	return out, nil
}

func (r *Registry) getUpdates(ctx context.Context, _ json.RawMessage) (any, error) {
	updates, err := r.deps.Reader.GetUpdates(ctx)
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	return updates, nil
}

func (r *Registry) getArticle(ctx context.Context, args json.RawMessage) (any, error) {
	var p idArgs
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if err := checkID("id", p.ID); err != nil {
		return nil, err
	}

	item, err := r.deps.Reader.GetItem(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", p.ID, err)
	}
	if item == nil {
		return nil, itemMissing(p.ID)
	}
	if item.URL == "" {
		return nil, invalid("Item %d does not link to an article", p.ID)
	}

	article, err := r.deps.Articles.Extract(ctx, item.URL)
	if err != nil {
		return nil, articleError(p.ID, item.URL, err)
	}
	return articlePayload{
		ID:      p.ID,
		URL:     article.URL,
		Title:   article.Title,
		Byline:  article.Byline,
		Excerpt: article.Excerpt,
		Content: article.Content,
	}, nil
}

// articleError classifies an extraction failure. Only transport faults and server
// errors on the article's host stay retryable.
func articleError(id int, articleURL string, err error) error {
	var statusErr *readability.StatusError
	switch {
	case errors.Is(err, readability.ErrUnsupportedURL):
		return invalid("Item %d links to an unsupported URL: %s", id, articleURL)
	case errors.Is(err, readability.ErrTooLarge):
		return invalid("Article for item %d is too large to extract", id)
	case errors.Is(err, readability.ErrNoContent):
		return notFound("No readable content at %s", articleURL)
	case errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 &&
		statusErr.StatusCode != http.StatusTooManyRequests:
		return notFound("Article for item %d returned status %d", id, statusErr.StatusCode)
	}
	return fmt.Errorf("extract article for item %d: %w", id, err)
}
