package hn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultAPIBase    = "https://hacker-news.firebaseio.com/v0"
	DefaultSearchBase = "https://hn.algolia.com/api/v1"

	defaultConcurrency = 10
	defaultHitsPerPage = 20

	sharedFetchTimeout = 15 * time.Second
)

// Doer performs a single HTTP round trip. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client reads from the Hacker News Firebase API and the Algolia search API.
// It never mutates remote state.
//
// Every read soft-fails: a missing, non-success or unparseable response yields the
// zero value for the call (nil item, empty list, empty page). Only a failed round trip
// is returned as an error.
type Client struct {
	http       Doer
	apiBase    string
	searchBase string
	sem        chan struct{}
	sf         singleflight.Group
}

type Option func(*Client)

// WithDoer replaces the HTTP transport.
func WithDoer(d Doer) Option {
	return func(c *Client) { c.http = d }
}

func WithAPIBase(base string) Option {
	return func(c *Client) { c.apiBase = base }
}

func WithSearchBase(base string) Option {
	return func(c *Client) { c.searchBase = base }
}

// WithMaxConcurrency caps the number of requests in flight at once.
func WithMaxConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.sem = make(chan struct{}, n)
		}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		http:       &http.Client{Timeout: 15 * time.Second},
		apiBase:    DefaultAPIBase,
		searchBase: DefaultSearchBase,
		sem:        make(chan struct{}, defaultConcurrency),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() { <-c.sem }

// getJSON decodes the body at rawURL into v and reports whether there was anything to decode.
func (c *Client) getJSON(ctx context.Context, rawURL string, v any) (bool, error) {
	if err := c.acquire(ctx); err != nil {
		return false, err
	}
	defer c.release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("hn: unexpected status", "url", rawURL, "status", resp.StatusCode)
		return false, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", rawURL, err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return false, nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		slog.Warn("hn: malformed response", "url", rawURL, "error", err)
		return false, nil
	}
	return true, nil
}

// GetItem fetches a single item by ID. A missing item is returned as nil.
// Concurrent callers asking for the same ID share one request. The shared request
// outlives any single caller's cancellation, bounded by sharedFetchTimeout; a
// cancelled caller stops waiting for it.
func (c *Client) GetItem(ctx context.Context, id int) (*Item, error) {
	ch := c.sf.DoChan("item-"+strconv.Itoa(id), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()

		var item Item
		ok, err := c.getJSON(fctx, fmt.Sprintf("%s/item/%d.json", c.apiBase, id), &item)
		if err != nil || !ok || item.ID == 0 {
			return (*Item)(nil), err
		}
		return &item, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("get item %d: %w", id, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("get item %d: %w", id, res.Err)
		}
		return res.Val.(*Item), nil
	}
}

// GetItems fetches items concurrently and returns them in the order of ids.
// Missing items are left as nil entries.
func (c *Client) GetItems(ctx context.Context, ids []int) ([]*Item, error) {
	results := make([]*Item, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			item, err := c.GetItem(gctx, id)
			if err != nil {
				return err
			}
			results[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// GetUser fetches a user profile. A missing user is returned as nil.
func (c *Client) GetUser(ctx context.Context, username string) (*User, error) {
	var user User
	ok, err := c.getJSON(ctx, fmt.Sprintf("%s/user/%s.json", c.apiBase, url.PathEscape(username)), &user)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", username, err)
	}
	if !ok || user.ID == "" {
		return nil, nil
	}
	return &user, nil
}

// StoryIDs returns the ordered ID list of a story category.
func (c *Client) StoryIDs(ctx context.Context, category Category) ([]int, error) {
	endpoint, ok := categoryEndpoints[category]
	if !ok {
		return nil, fmt.Errorf("unknown story category %q", category)
	}

	var ids []int
	if _, err := c.getJSON(ctx, fmt.Sprintf("%s/%s.json", c.apiBase, endpoint), &ids); err != nil {
		return nil, fmt.Errorf("get %s ids: %w", category, err)
	}
	if ids == nil {
		ids = []int{}
	}
	return ids, nil
}

// GetStories fetches up to limit items of a category, in list order.
// Missing and deleted items are dropped, so fewer than limit may come back.
func (c *Client) GetStories(ctx context.Context, category Category, limit int) ([]*Item, error) {
	ids, err := c.StoryIDs(ctx, category)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		limit = 0
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	items, err := c.GetItems(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get %s stories: %w", category, err)
	}

	stories := make([]*Item, 0, len(items))
	for _, item := range items {
		if item == nil || item.Deleted {
			continue
		}
		stories = append(stories, item)
	}
	return stories, nil
}

// GetUpdates returns the recently changed items and profiles.
func (c *Client) GetUpdates(ctx context.Context) (*Updates, error) {
	var updates Updates
	if _, err := c.getJSON(ctx, c.apiBase+"/updates.json", &updates); err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	if updates.Items == nil {
		updates.Items = []int{}
	}
	if updates.Profiles == nil {
		updates.Profiles = []string{}
	}
	return &updates, nil
}
